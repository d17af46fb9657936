// Package lifecycle defines the legal states and transitions of a tracked
// transaction. Every status mutation in the controller goes through Legal, so
// a record can only ever move forward along the graph.
package lifecycle

import "fmt"

// ErrIllegalTransition is returned when a status change is not on the graph
var ErrIllegalTransition = fmt.Errorf("illegal status transition")

// Status is the lifecycle state of a transaction record
type Status string

const (
	// StatusUnapproved is the initial state of every locally created draft
	StatusUnapproved Status = "unapproved"
	// StatusApproved means the approval pipeline has picked the record up
	StatusApproved Status = "approved"
	// StatusSigned means the signing capability produced a raw transaction
	StatusSigned Status = "signed"
	// StatusSubmitted means the raw transaction was broadcast to the network
	StatusSubmitted Status = "submitted"
	// StatusConfirmed means the transaction was included in a block
	StatusConfirmed Status = "confirmed"
	// StatusRejected means the user declined the draft
	StatusRejected Status = "rejected"
	// StatusCancelled means the draft was withdrawn before broadcast
	StatusCancelled Status = "cancelled"
	// StatusFailed means an operation on the record failed; the record
	// carries the causing error
	StatusFailed Status = "failed"
	// StatusCancelSubmitted marks a broadcast fee-bump cancellation record
	StatusCancelSubmitted Status = "cancelSubmitted"
	// StatusAccelerateSubmitted marks a broadcast fee-bump speed-up record
	StatusAccelerateSubmitted Status = "accelerateSubmitted"
	// StatusReceiving marks a reconciled incoming transaction with few
	// confirmations
	StatusReceiving Status = "receiving"
)

// transitions is the forward graph. Statuses absent from the map, or mapped
// to an empty set, are terminal.
var transitions = map[Status][]Status{
	StatusUnapproved: {StatusApproved, StatusRejected, StatusCancelled, StatusFailed},
	StatusApproved:   {StatusSigned, StatusCancelled, StatusFailed},
	StatusSigned:     {StatusSubmitted, StatusFailed},
	StatusSubmitted:  {StatusConfirmed, StatusFailed},
	StatusReceiving:  {},
	StatusConfirmed:  {},
	StatusRejected:   {},
	StatusCancelled:  {},
	StatusFailed:     {},

	// Fee-bump replacement records are created directly in these statuses;
	// they never transition afterwards.
	StatusCancelSubmitted:     {},
	StatusAccelerateSubmitted: {},
}

// Known reports whether s is a status the controller understands
func Known(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// Legal reports whether a record may move from one status to the other
func Legal(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s
func Terminal(s Status) bool {
	return Known(s) && len(transitions[s]) == 0
}

// Next returns the statuses reachable from s, useful for exercising the
// graph in tests
func Next(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}
