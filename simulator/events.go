package simulator

import (
	"encoding/json"
	"fmt"
)

// EventKind represents the type of trace event
type EventKind int

const (
	EventKindRan EventKind = iota
	EventKindWaitedForIO
	EventKindIOCompleted
	EventKindCompleted
	EventKindPromoted
)

func (ek EventKind) String() string {
	switch ek {
	case EventKindRan:
		return "ran"
	case EventKindWaitedForIO:
		return "waited_for_io"
	case EventKindIOCompleted:
		return "io_completed"
	case EventKindCompleted:
		return "completed"
	case EventKindPromoted:
		return "promoted"
	default:
		return "unknown"
	}
}

// ParseEventKind parses a string into EventKind
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "ran":
		return EventKindRan, nil
	case "waited_for_io":
		return EventKindWaitedForIO, nil
	case "io_completed":
		return EventKindIOCompleted, nil
	case "completed":
		return EventKindCompleted, nil
	case "promoted":
		return EventKindPromoted, nil
	default:
		return EventKindRan, fmt.Errorf("invalid event kind: %s", s)
	}
}

// MarshalJSON implements json.Marshaler for EventKind
func (ek EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(ek.String())
}

// UnmarshalJSON implements json.Unmarshaler for EventKind
func (ek *EventKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEventKind(s)
	if err != nil {
		return err
	}
	*ek = parsed
	return nil
}

// TraceEvent is one scheduling decision. Only the fields relevant to Kind are
// meaningful: Amount for Ran/WaitedForIO, CompletionTime for Completed and
// NewPriority for Promoted. Tick and Clock are stamped by the simulator.
type TraceEvent struct {
	Kind           EventKind `json:"kind"`
	ID             int       `json:"id"`
	Amount         int       `json:"amount"`
	CompletionTime int       `json:"completionTime"`
	NewPriority    int       `json:"newPriority"`
	Tick           int       `json:"tick"`
	Clock          int       `json:"clock"`
}

func NewRanEvent(id, amount int) TraceEvent {
	return TraceEvent{Kind: EventKindRan, ID: id, Amount: amount}
}

func NewWaitedForIOEvent(id, amount int) TraceEvent {
	return TraceEvent{Kind: EventKindWaitedForIO, ID: id, Amount: amount}
}

func NewIOCompletedEvent(id int) TraceEvent {
	return TraceEvent{Kind: EventKindIOCompleted, ID: id}
}

func NewCompletedEvent(id, completionTime int) TraceEvent {
	return TraceEvent{Kind: EventKindCompleted, ID: id, CompletionTime: completionTime}
}

func NewPromotedEvent(id, newPriority int) TraceEvent {
	return TraceEvent{Kind: EventKindPromoted, ID: id, NewPriority: newPriority}
}

// Equal compares the scheduling content of two events, ignoring Tick and Clock
func (e TraceEvent) Equal(other TraceEvent) bool {
	return e.Kind == other.Kind &&
		e.ID == other.ID &&
		e.Amount == other.Amount &&
		e.CompletionTime == other.CompletionTime &&
		e.NewPriority == other.NewPriority
}

// String renders the event the way a console trace prints it
func (e TraceEvent) String() string {
	switch e.Kind {
	case EventKindRan:
		return fmt.Sprintf("Running process %d for %d time units", e.ID, e.Amount)
	case EventKindWaitedForIO:
		return fmt.Sprintf("Process %d is waiting for I/O for %d time units", e.ID, e.Amount)
	case EventKindIOCompleted:
		return fmt.Sprintf("Process %d has completed I/O", e.ID)
	case EventKindCompleted:
		return fmt.Sprintf("Process %d has completed at time %d", e.ID, e.CompletionTime)
	case EventKindPromoted:
		return fmt.Sprintf("Process %d has been transferred to the high-priority queue (priority %d)", e.ID, e.NewPriority)
	default:
		return fmt.Sprintf("Unknown event for process %d", e.ID)
	}
}

// TraceSink receives every trace event in emission order
type TraceSink interface {
	Record(event TraceEvent)
}

// TraceSinkFunc adapts a function to TraceSink
type TraceSinkFunc func(event TraceEvent)

// Record implements TraceSink
func (f TraceSinkFunc) Record(event TraceEvent) {
	f(event)
}
