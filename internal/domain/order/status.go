package order

import "fmt"

// Status is the canonical tagged enum for the order lifecycle. Presentation
// concerns (labels, badge colors) live in the UI layer, not here.
type Status string

const (
	// StatusPendingWhatsApp is the initial state: the order was placed and is
	// waiting for the WhatsApp confirmation flow.
	StatusPendingWhatsApp Status = "pending_whatsapp"
	StatusConfirmed       Status = "confirmed"
	StatusPreparing       Status = "preparing"
	StatusShipped         Status = "shipped"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// Valid reports whether s is one of the lifecycle values.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingWhatsApp, StatusConfirmed, StatusPreparing,
		StatusShipped, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further lifecycle transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// next maps each state to its single happy-path successor. Skipping states is
// never allowed.
var next = map[Status]Status{
	StatusPendingWhatsApp: StatusConfirmed,
	StatusConfirmed:       StatusPreparing,
	StatusPreparing:       StatusShipped,
	StatusShipped:         StatusCompleted,
}

// cancellable lists the states cancellation is reachable from. Once shipped,
// reversal is a return/refund process handled outside this engine.
var cancellable = map[Status]bool{
	StatusPendingWhatsApp: true,
	StatusConfirmed:       true,
	StatusPreparing:       true,
}

// InvalidTransitionError reports a rejected lifecycle transition. From and To
// let staff UIs distinguish "already in that state" from "not allowed".
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("order is already %s", e.From)
	}
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// checkTransition validates a forward step along the happy path.
func checkTransition(from, to Status) error {
	if next[from] != to {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// checkCancel validates that cancellation is reachable from the current
// state.
func checkCancel(from Status) error {
	if !cancellable[from] {
		return &InvalidTransitionError{From: from, To: StatusCancelled}
	}
	return nil
}
