package simulator

import (
	"encoding/json"
	"fmt"
)

// tick performs one scheduling round:
//  1. move processes whose I/O is done back to the ready queue
//  2. dispatch one ready process (or charge the idle penalty)
//  3. give every process on the I/O queue one slice of I/O progress
func (s *Simulator) tick() error {
	s.ticks++

	s.sweepIO()

	if h, ok := s.selectReady(); ok {
		if err := s.dispatch(h); err != nil {
			return err
		}
	} else {
		s.clock += s.config.CSTPenalty
		s.metrics.RecordIdle(s.config.CSTPenalty)
		s.logEvent("[t=%d] IDLE: ready queue empty, charged cst penalty %d", s.clock, s.config.CSTPenalty)
	}

	s.serviceIO()
	return nil
}

// sweepIO visits the whole I/O queue once and moves every process whose
// I/O time has reached its burst back to the ready queue, in I/O queue order.
func (s *Simulator) sweepIO() {
	done := s.io.Sweep(func(h int) bool {
		p := &s.records[h]
		return p.RunTime == p.BurstTime
	})
	for _, h := range done {
		s.records[h].State = ProcessReady
		s.ready.Enqueue(h)
		s.emit(NewIOCompletedEvent(s.records[h].ID))
	}
}

// selectReady removes the next process to run from the ready queue
func (s *Simulator) selectReady() (int, bool) {
	if s.config.DispatchPolicy != DispatchPriority {
		return s.ready.Dequeue()
	}

	best := -1
	for i, h := range s.ready.handles {
		if best < 0 || s.records[h].Priority < s.records[s.ready.handles[best]].Priority {
			best = i
		}
	}
	return s.ready.RemoveAt(best)
}

// dispatch runs one process for at most one time slice
func (s *Simulator) dispatch(h int) error {
	p := &s.records[h]
	p.State = ProcessRunning
	slice := s.config.TimeSlice

	// Completion is checked before aging: reaching the burst exactly at the
	// aging threshold terminates the process without a promotion.
	if p.RunTime+slice >= p.BurstTime {
		remaining := p.Remaining()
		s.advance(h, remaining)
		s.clock += remaining
		s.metrics.RecordDispatch(p.ID, remaining)

		p.State = ProcessTerminated
		p.CompletionTime = s.clock
		s.emit(NewCompletedEvent(p.ID, s.clock))
		s.metrics.RecordCompletion(p.ID, s.clock)
		s.logEvent("[t=%d] COMPLETED: process %d (burst=%d, priority=%d)", s.clock, p.ID, p.BurstTime, p.Priority)
		return nil
	}

	s.advance(h, slice)
	s.clock += slice
	s.metrics.RecordDispatch(p.ID, slice)

	p.State = ProcessReady
	s.ready.Enqueue(h)

	if p.RunTime >= s.config.AgingThreshold {
		// Nothing was enqueued since p, so it must still be the tail
		tail, ok := s.ready.PopTail()
		if !ok || tail != h {
			return s.violation(fmt.Sprintf("aging expected process %d at ready queue tail, found handle %d", p.ID, tail))
		}
		p.Priority--
		s.ready.Enqueue(h)
		s.emit(NewPromotedEvent(p.ID, p.Priority))
		s.metrics.RecordPromotion(p.ID, p.Priority)
		s.logEvent("[t=%d] PROMOTED: process %d -> priority %d (run=%d, threshold=%d)",
			s.clock, p.ID, p.Priority, p.RunTime, s.config.AgingThreshold)
	}
	return nil
}

// serviceIO applies one slice of I/O progress to every waiting process.
// Progress is capped at the remaining burst so the completion sweep, which
// tests for equality, always finds the process. WaitedForIO still reports the
// whole slice: that is the time spent on the queue and what the clock charges.
func (s *Simulator) serviceIO() {
	if s.io.IsEmpty() {
		return
	}

	slice := s.config.TimeSlice
	handles := s.io.Handles()
	ids := make([]int, 0, len(handles))
	for _, h := range handles {
		p := &s.records[h]
		s.markWaiting(h, slice)
		s.advance(h, min(slice, p.Remaining()))
		ids = append(ids, p.ID)
	}

	cost := slice + s.config.CSTPenalty
	s.clock += cost
	s.metrics.RecordIOTick(ids, cost)
}

// checkInvariants validates queue membership and record bounds at a tick boundary
func (s *Simulator) checkInvariants(prevClock int) error {
	if s.clock < prevClock {
		return s.violation(fmt.Sprintf("clock went backwards: %d -> %d", prevClock, s.clock))
	}

	owner := make(map[int]string, len(s.records))
	for _, q := range []*ProcessQueue{s.ready, s.io} {
		want := ProcessReady
		if q == s.io {
			want = ProcessWaiting
		}
		for _, h := range q.handles {
			if h < 0 || h >= len(s.records) {
				return s.violation(fmt.Sprintf("%s queue holds unknown handle %d", q.Name(), h))
			}
			if prev, dup := owner[h]; dup {
				return s.violation(fmt.Sprintf("process %d is in both %s and %s queues", s.records[h].ID, prev, q.Name()))
			}
			owner[h] = q.Name()
			if s.records[h].State != want {
				return s.violation(fmt.Sprintf("process %d on %s queue has state %s", s.records[h].ID, q.Name(), s.records[h].State))
			}
		}
	}

	for h := range s.records {
		p := &s.records[h]
		if p.RunTime < 0 || p.RunTime > p.BurstTime {
			return s.violation(fmt.Sprintf("process %d run time %d outside [0, %d]", p.ID, p.RunTime, p.BurstTime))
		}
		_, queued := owner[h]
		if !p.IsTerminated() && !queued {
			return s.violation(fmt.Sprintf("process %d (%s) is not on any queue", p.ID, p.State))
		}
	}
	return nil
}

// violation builds an InvariantViolation with a full state dump
func (s *Simulator) violation(reason string) *InvariantViolation {
	dump, err := json.Marshal(s.State())
	if err != nil {
		dump = []byte(fmt.Sprintf("state dump failed: %v", err))
	}
	return &InvariantViolation{
		Tick:   s.ticks,
		Clock:  s.clock,
		Reason: reason,
		Dump:   string(dump),
	}
}
