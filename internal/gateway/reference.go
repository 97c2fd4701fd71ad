package gateway

import (
	"fmt"
	"strings"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/oklog/ulid/v2"
)

// NewReference builds {gateway}_{orderNumber}_{suffix}. Neither the gateway id
// nor the order number may contain an underscore.
func NewReference(gatewayID, orderNumber string) string {
	return fmt.Sprintf("%s_%s_%s", gatewayID, orderNumber, ulid.Make().String())
}

// ParseReference recovers the gateway id and order number from a reference.
func ParseReference(ref string) (gatewayID, orderNumber string, err error) {
	parts := strings.SplitN(ref, "_", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: %q", domain.ErrInvalidReference, ref)
	}
	return parts[0], parts[1], nil
}
