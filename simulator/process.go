package simulator

import (
	"encoding/json"
	"fmt"
)

// ProcessState is the lifecycle state of a simulated process
type ProcessState int

const (
	ProcessReady ProcessState = iota
	ProcessRunning
	ProcessWaiting // On the I/O queue
	ProcessTerminated
)

func (ps ProcessState) String() string {
	switch ps {
	case ProcessReady:
		return "ready"
	case ProcessRunning:
		return "running"
	case ProcessWaiting:
		return "waiting"
	case ProcessTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ParseProcessState parses a string into ProcessState
func ParseProcessState(s string) (ProcessState, error) {
	switch s {
	case "ready":
		return ProcessReady, nil
	case "running":
		return ProcessRunning, nil
	case "waiting":
		return ProcessWaiting, nil
	case "terminated":
		return ProcessTerminated, nil
	default:
		return ProcessReady, fmt.Errorf("invalid process state: %s", s)
	}
}

// MarshalJSON implements json.Marshaler for ProcessState
func (ps ProcessState) MarshalJSON() ([]byte, error) {
	return json.Marshal(ps.String())
}

// UnmarshalJSON implements json.Unmarshaler for ProcessState
func (ps *ProcessState) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseProcessState(s)
	if err != nil {
		return err
	}
	*ps = parsed
	return nil
}

// ProcessRecord is the mutable state of one simulated process.
// Records live in the simulator's records table; queues refer to them by handle.
type ProcessRecord struct {
	ID             int          `json:"id"`
	ArrivalTime    int          `json:"arrivalTime"`
	BurstTime      int          `json:"burstTime"`
	Priority       int          `json:"priority"`
	RunTime        int          `json:"runTime"` // CPU time while ready/running, I/O time while waiting
	State          ProcessState `json:"state"`
	CompletionTime int          `json:"completionTime"` // Clock at termination (0 until then)
}

func newProcessRecord(d ProcessDescriptor) ProcessRecord {
	state := ProcessReady
	if d.StartInIO {
		state = ProcessWaiting
	}
	return ProcessRecord{
		ID:          d.ID,
		ArrivalTime: d.ArrivalTime,
		BurstTime:   d.BurstTime,
		Priority:    d.Priority,
		RunTime:     0,
		State:       state,
	}
}

// Remaining returns the time still needed to reach BurstTime
func (p *ProcessRecord) Remaining() int {
	return p.BurstTime - p.RunTime
}

// IsTerminated returns true once the process has completed
func (p *ProcessRecord) IsTerminated() bool {
	return p.State == ProcessTerminated
}

func (p *ProcessRecord) String() string {
	return fmt.Sprintf("Process(id=%d, state=%s, run=%d/%d, prio=%d)",
		p.ID, p.State, p.RunTime, p.BurstTime, p.Priority)
}

// advance runs the process for slice time units and records it
func (s *Simulator) advance(h int, slice int) {
	p := &s.records[h]
	p.RunTime += slice
	s.emit(NewRanEvent(p.ID, slice))
}

// markWaiting records that the process spent slice time units waiting for I/O.
// I/O progress itself is applied separately by advance.
func (s *Simulator) markWaiting(h int, slice int) {
	s.emit(NewWaitedForIOEvent(s.records[h].ID, slice))
}
