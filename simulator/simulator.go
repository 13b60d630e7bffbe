package simulator

import (
	"errors"
	"fmt"
)

// Simulator is a PURE discrete event simulator with NO concurrency primitives.
// All state is accessed single-threaded via the Step() method.
// The caller (cmd/server) manages pacing, pause/resume, and threading.
type Simulator struct {
	config  SimConfig
	records []ProcessRecord // Records table, indexed by handle
	index   map[int]int     // Process ID -> handle
	ready   *ProcessQueue
	io      *ProcessQueue
	clock   int
	ticks   int
	trace   []TraceEvent
	sinks   []TraceSink
	metrics *Metrics
	aborted error // Set once a step fails; the simulator refuses further steps

	// Event logging callback (optional, for UI/debugging)
	LogEvent func(msg string)
}

// Result is the outcome of a complete run
type Result struct {
	FinalClock int             `json:"finalClock"`
	Ticks      int             `json:"ticks"`
	Trace      []TraceEvent    `json:"trace"`
	Processes  []ProcessRecord `json:"processes"`
	Metrics    *Metrics        `json:"metrics"`
}

// NewSimulator validates the config, builds the records table and places every
// process on its initial queue in descriptor order.
func NewSimulator(config SimConfig) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Own the descriptor slice so later caller edits don't leak into Reset
	config.Processes = append([]ProcessDescriptor(nil), config.Processes...)

	records := make([]ProcessRecord, 0, len(config.Processes))
	index := make(map[int]int, len(config.Processes))
	ready := NewProcessQueue("ready")
	io := NewProcessQueue("io")
	for _, d := range config.Processes {
		h := len(records)
		records = append(records, newProcessRecord(d))
		index[d.ID] = h
		if d.StartInIO {
			io.Enqueue(h)
		} else {
			ready.Enqueue(h)
		}
	}

	sim := &Simulator{
		config:  config,
		records: records,
		index:   index,
		ready:   ready,
		io:      io,
		clock:   0,
		ticks:   0,
		trace:   make([]TraceEvent, 0),
		sinks:   make([]TraceSink, 0),
		metrics: NewMetrics(records),
	}
	sim.metrics.Update(0, 0, ready.Len(), io.Len())
	return sim, nil
}

// Simulate runs config to completion and returns the final clock, the ordered trace and metrics
func Simulate(config SimConfig) (*Result, error) {
	sim, err := NewSimulator(config)
	if err != nil {
		return nil, err
	}
	if _, err := sim.Run(); err != nil {
		return nil, err
	}
	return sim.Result(), nil
}

// Reset rebuilds the simulation from its config, keeping LogEvent and sinks
func (s *Simulator) Reset() error {
	newSim, err := NewSimulator(s.config)
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}

	logEvent := s.LogEvent
	sinks := s.sinks

	*s = *newSim

	s.LogEvent = logEvent
	s.sinks = sinks
	return nil
}

// AddSink registers a sink that receives every subsequent trace event
func (s *Simulator) AddSink(sink TraceSink) {
	s.sinks = append(s.sinks, sink)
}

// Step runs one tick. It is a no-op once both queues are empty and returns
// the same error forever after a failed step.
func (s *Simulator) Step() error {
	if s.aborted != nil {
		return s.aborted
	}
	if s.IsDone() {
		return nil
	}
	if s.config.MaxTicks > 0 && s.ticks >= s.config.MaxTicks {
		s.aborted = fmt.Errorf("%w: %d ticks at t=%d with %d ready and %d waiting",
			ErrTickLimitExceeded, s.ticks, s.clock, s.ready.Len(), s.io.Len())
		s.logEvent("[t=%d] ABORTED: %v", s.clock, s.aborted)
		return s.aborted
	}

	if s.ticks == 0 {
		s.logEvent("[t=%d] START: %d processes (ready=%d, io=%d, slice=%d, cst=%d, aging=%d, dispatch=%s)",
			s.clock, len(s.records), s.ready.Len(), s.io.Len(),
			s.config.TimeSlice, s.config.CSTPenalty, s.config.AgingThreshold, s.config.DispatchPolicy)
	}

	prevClock := s.clock
	err := s.tick()
	if err == nil {
		err = s.checkInvariants(prevClock)
	}
	if err != nil {
		s.aborted = err
		s.logEvent("[t=%d] ABORTED: %v", s.clock, err)
		var v *InvariantViolation
		if errors.As(err, &v) {
			s.logEvent("[t=%d] STATE DUMP: %s", s.clock, v.Dump)
		}
		return err
	}

	s.metrics.Update(s.clock, s.ticks, s.ready.Len(), s.io.Len())
	if s.IsDone() {
		s.logEvent("[t=%d] DONE: all %d processes completed in %d ticks", s.clock, len(s.records), s.ticks)
	}
	return nil
}

// Run ticks until both queues are empty and returns the final clock
func (s *Simulator) Run() (int, error) {
	for !s.IsDone() {
		if err := s.Step(); err != nil {
			return s.clock, err
		}
	}
	return s.clock, nil
}

// StepN runs at most n ticks and returns how many ran
func (s *Simulator) StepN(n int) (int, error) {
	ran := 0
	for ran < n && !s.IsDone() {
		if err := s.Step(); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

// IsDone returns true once both queues are empty
func (s *Simulator) IsDone() bool {
	return s.ready.IsEmpty() && s.io.IsEmpty()
}

// Err returns the error that aborted the simulation, if any
func (s *Simulator) Err() error {
	return s.aborted
}

// Config returns a copy of the current configuration
func (s *Simulator) Config() SimConfig {
	config := s.config
	config.Processes = append([]ProcessDescriptor(nil), s.config.Processes...)
	return config
}

// VirtualTime returns the current simulation clock
func (s *Simulator) VirtualTime() int {
	return s.clock
}

// Ticks returns the number of ticks run so far
func (s *Simulator) Ticks() int {
	return s.ticks
}

// Trace returns a copy of every event emitted so far
func (s *Simulator) Trace() []TraceEvent {
	trace := make([]TraceEvent, len(s.trace))
	copy(trace, s.trace)
	return trace
}

// TraceSince returns a copy of the events after the first n
func (s *Simulator) TraceSince(n int) []TraceEvent {
	if n < 0 {
		n = 0
	}
	if n >= len(s.trace) {
		return []TraceEvent{}
	}
	trace := make([]TraceEvent, len(s.trace)-n)
	copy(trace, s.trace[n:])
	return trace
}

// Metrics returns a copy of current metrics
func (s *Simulator) Metrics() *Metrics {
	return s.metrics.Clone()
}

// Process returns a copy of the record for id
func (s *Simulator) Process(id int) (ProcessRecord, bool) {
	h, ok := s.index[id]
	if !ok {
		return ProcessRecord{}, false
	}
	return s.records[h], true
}

// Processes returns a copy of every record in descriptor order
func (s *Simulator) Processes() []ProcessRecord {
	records := make([]ProcessRecord, len(s.records))
	copy(records, s.records)
	return records
}

// ReadyQueue returns the process IDs on the ready queue, head first
func (s *Simulator) ReadyQueue() []int {
	return s.queueIDs(s.ready)
}

// IOQueue returns the process IDs on the I/O queue, head first
func (s *Simulator) IOQueue() []int {
	return s.queueIDs(s.io)
}

func (s *Simulator) queueIDs(q *ProcessQueue) []int {
	ids := make([]int, 0, q.Len())
	for _, h := range q.handles {
		ids = append(ids, s.records[h].ID)
	}
	return ids
}

// Result returns the run outcome so far
func (s *Simulator) Result() *Result {
	return &Result{
		FinalClock: s.clock,
		Ticks:      s.ticks,
		Trace:      s.Trace(),
		Processes:  s.Processes(),
		Metrics:    s.Metrics(),
	}
}

// State returns the current simulator state
func (s *Simulator) State() map[string]interface{} {
	state := map[string]interface{}{
		"virtualTime":    s.clock,
		"ticks":          s.ticks,
		"readyQueue":     s.ReadyQueue(),
		"ioQueue":        s.IOQueue(),
		"processes":      s.Processes(),
		"traceLength":    len(s.trace),
		"done":           s.IsDone(),
		"timeSlice":      s.config.TimeSlice,
		"cstPenalty":     s.config.CSTPenalty,
		"agingThreshold": s.config.AgingThreshold,
		"dispatchPolicy": s.config.DispatchPolicy.String(),
	}
	if s.aborted != nil {
		state["error"] = s.aborted.Error()
	}
	return state
}

// emit stamps an event with the current tick and clock and delivers it
func (s *Simulator) emit(event TraceEvent) {
	event.Tick = s.ticks
	event.Clock = s.clock
	s.trace = append(s.trace, event)
	for _, sink := range s.sinks {
		sink.Record(event)
	}
}

// logEvent sends a log message to the LogEvent callback, if set
func (s *Simulator) logEvent(format string, args ...interface{}) {
	if s.LogEvent == nil {
		return
	}
	s.LogEvent(fmt.Sprintf(format, args...))
}
