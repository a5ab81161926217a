package lifecycle

import "fmt"

// State of a channel. Transitions only move forward:
//
//	Uninitialized -> Opening -> Mapped -> Closing -> Closed
//
// An Opening failure goes straight to Closed, and Close before Start moves
// Uninitialized to Closed.
type State int32

const (
	Uninitialized State = iota
	Opening
	Mapped
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Opening:
		return "opening"
	case Mapped:
		return "mapped"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// close reasons, recorded in the audit journal
const (
	reasonExplicit    = "explicit"
	reasonFinalized   = "owner-released"
	reasonProcessExit = "process-exit"
	reasonOpenFailed  = "open-failed"
)

// audit event names
const (
	eventOpening        = "opening"
	eventProducerFailed = "producer-start-failed"
	eventMapped         = "mapped"
	eventOpenFailed     = "open-failed"
	eventClosing        = "closing"
	eventClosed         = "closed"
)
