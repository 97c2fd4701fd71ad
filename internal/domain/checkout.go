package domain

import "fmt"

// CheckoutStage is a state of the checkout state machine.
type CheckoutStage string

const (
	StageValidating CheckoutStage = "validating"
	StageReserving  CheckoutStage = "reserving"
	StagePricing    CheckoutStage = "pricing"
	StageCommitting CheckoutStage = "committing"
	StageCompleted  CheckoutStage = "completed"
)

// CheckoutError is the Failed state: it records the stage that was running.
type CheckoutError struct {
	Stage CheckoutStage
	Err   error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout failed while %s: %v", e.Stage, e.Err)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}
