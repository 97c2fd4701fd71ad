package app

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func newUUID() string {
	return uuid.NewString()
}

// newOrderNumber is globally unique and free of underscores so it can be embedded
// in payment references.
func newOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}
