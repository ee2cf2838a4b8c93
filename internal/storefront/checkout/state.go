package checkout

import "fmt"

type State string

const (
	StateDrafting              State = "drafting"
	StateAwaitingPaymentMethod State = "awaiting_payment_method"
	StateCreatingIntent        State = "creating_intent"
	StateConfirmingPayment     State = "confirming_payment"
	StatePaid                  State = "paid"
	StateRecordingPayment      State = "recording_payment"
	StateCreatingInvoice       State = "creating_invoice"
	StateComplete              State = "complete"
	StateFailed                State = "failed"
)

var forward = map[State]State{
	StateDrafting:              StateAwaitingPaymentMethod,
	StateAwaitingPaymentMethod: StateCreatingIntent,
	StateCreatingIntent:        StateConfirmingPayment,
	StateConfirmingPayment:     StatePaid,
	StatePaid:                  StateRecordingPayment,
	StateRecordingPayment:      StateCreatingInvoice,
	StateCreatingInvoice:       StateComplete,
}

func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// canTransition allows one step forward, or Failed from any non-terminal
// state.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return forward[from] == to
}

type FailureKind string

const (
	FailureRetryable       FailureKind = "retryable"
	FailureSupportRequired FailureKind = "support_required"
)

// Failure explains why an order stopped. Support-required failures happen
// after money moved.
type Failure struct {
	Step   State
	Kind   FailureKind
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("checkout failed at %s: %s: %v", f.Step, f.Reason, f.Err)
	}
	return fmt.Sprintf("checkout failed at %s: %s", f.Step, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Retryable() bool { return f.Kind == FailureRetryable }
