package simulator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// withoutStamps drops Tick and Clock so traces can be compared by content
func withoutStamps(trace []TraceEvent) []TraceEvent {
	out := make([]TraceEvent, len(trace))
	for i, e := range trace {
		e.Tick = 0
		e.Clock = 0
		out[i] = e
	}
	return out
}

func eventsOfKind(trace []TraceEvent, kind EventKind) []TraceEvent {
	out := make([]TraceEvent, 0)
	for _, e := range trace {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func runConfig(t *testing.T, config SimConfig) *Simulator {
	t.Helper()
	sim, err := NewSimulator(config)
	require.NoError(t, err)
	_, err = sim.Run()
	require.NoError(t, err)
	require.True(t, sim.IsDone())
	return sim
}

// Single process, no I/O: two full slices then the remainder
func TestScheduler_SingleProcessRunsToCompletion(t *testing.T) {
	config := SimConfig{
		TimeSlice:      2,
		CSTPenalty:     1,
		AgingThreshold: 5,
		Processes:      []ProcessDescriptor{{ID: 1, BurstTime: 5, Priority: 1}},
	}

	sim := runConfig(t, config)

	require.Equal(t, []TraceEvent{
		NewRanEvent(1, 2),
		NewRanEvent(1, 2),
		NewRanEvent(1, 1),
		NewCompletedEvent(1, 5),
	}, withoutStamps(sim.Trace()))
	require.Equal(t, 5, sim.VirtualTime())
	require.Equal(t, 3, sim.Ticks())

	// Reaching the burst exactly at the aging threshold is a completion, not a promotion
	require.Empty(t, eventsOfKind(sim.Trace(), EventKindPromoted))
	p, ok := sim.Process(1)
	require.True(t, ok)
	require.Equal(t, 1, p.Priority)
	require.Equal(t, 5, p.RunTime)
	require.Equal(t, ProcessTerminated, p.State)
	require.Equal(t, 5, p.CompletionTime)
}

func TestScheduler_ThreeProcessRoundRobinWithAging(t *testing.T) {
	sim := runConfig(t, DefaultConfig())

	require.Equal(t, []TraceEvent{
		NewRanEvent(1, 2),
		NewRanEvent(2, 2),
		NewRanEvent(3, 2),
		NewRanEvent(1, 2),
		NewRanEvent(2, 2),
		NewRanEvent(3, 2),
		NewRanEvent(1, 1),
		NewCompletedEvent(1, 13),
		NewRanEvent(2, 2),
		NewPromotedEvent(2, 1),
		NewRanEvent(3, 2),
		NewPromotedEvent(3, 2),
		NewRanEvent(2, 2),
		NewPromotedEvent(2, 0),
		NewRanEvent(3, 2),
		NewPromotedEvent(3, 1),
		NewRanEvent(2, 2),
		NewCompletedEvent(2, 23),
		NewRanEvent(3, 2),
		NewPromotedEvent(3, 0),
		NewRanEvent(3, 2),
		NewPromotedEvent(3, -1),
		NewRanEvent(3, 2),
		NewPromotedEvent(3, -2),
		NewRanEvent(3, 1),
		NewCompletedEvent(3, 30),
	}, withoutStamps(sim.Trace()))
	require.Equal(t, 30, sim.VirtualTime())
	require.Equal(t, 16, sim.Ticks())

	completed := eventsOfKind(sim.Trace(), EventKindCompleted)
	require.Equal(t, 1, completed[0].ID, "burst-5 process completes first")

	// Every process with burst > threshold is promoted before it completes
	for _, id := range []int{2, 3} {
		firstPromotion, completion := -1, -1
		for i, e := range sim.Trace() {
			if e.ID != id {
				continue
			}
			if e.Kind == EventKindPromoted && firstPromotion < 0 {
				firstPromotion = i
			}
			if e.Kind == EventKindCompleted {
				completion = i
			}
		}
		require.GreaterOrEqual(t, firstPromotion, 0, "process %d never promoted", id)
		require.Less(t, firstPromotion, completion, "process %d promoted after completion", id)
	}
	for _, e := range sim.Trace() {
		require.False(t, e.Kind == EventKindPromoted && e.ID == 1, "burst-5 process must never be promoted")
	}

	m := sim.Metrics()
	require.Equal(t, 7, m.TotalPromotions)
	require.Equal(t, 0, m.PerProcess[2].FinalPriority)
	require.Equal(t, -2, m.PerProcess[3].FinalPriority)
}

func TestScheduler_PriorityDispatchPrefersLowestPriority(t *testing.T) {
	config := DefaultConfig()
	config.DispatchPolicy = DispatchPriority

	sim := runConfig(t, config)

	completed := withoutStamps(eventsOfKind(sim.Trace(), EventKindCompleted))
	require.Equal(t, []TraceEvent{
		NewCompletedEvent(1, 5),
		NewCompletedEvent(2, 15),
		NewCompletedEvent(3, 30),
	}, completed)
	require.Equal(t, 30, sim.VirtualTime())

	// Process 1 holds the CPU until it is done
	ran := eventsOfKind(sim.Trace(), EventKindRan)
	for i := 0; i < 3; i++ {
		require.Equal(t, 1, ran[i].ID)
	}
}

func TestScheduler_PriorityDispatchTiesKeepQueueOrder(t *testing.T) {
	config := SimConfig{
		TimeSlice:      1,
		CSTPenalty:     0,
		AgingThreshold: 100,
		DispatchPolicy: DispatchPriority,
		Processes: []ProcessDescriptor{
			{ID: 1, BurstTime: 2, Priority: 5},
			{ID: 2, BurstTime: 2, Priority: 5},
		},
	}

	sim := runConfig(t, config)

	require.Equal(t, []TraceEvent{
		NewRanEvent(1, 1),
		NewRanEvent(2, 1),
		NewRanEvent(1, 1),
		NewCompletedEvent(1, 3),
		NewRanEvent(2, 1),
		NewCompletedEvent(2, 4),
	}, withoutStamps(sim.Trace()))
}

// Empty ready queue with a non-empty I/O queue: the idle penalty and the I/O
// cost are both charged in the same tick.
func TestScheduler_IdleTickChargesPenaltyAndIOCost(t *testing.T) {
	config := SimConfig{
		TimeSlice:      2,
		CSTPenalty:     1,
		AgingThreshold: 5,
		Processes:      []ProcessDescriptor{{ID: 1, BurstTime: 4, Priority: 1, StartInIO: true}},
	}

	sim, err := NewSimulator(config)
	require.NoError(t, err)
	require.Empty(t, sim.ReadyQueue())
	require.Equal(t, []int{1}, sim.IOQueue())

	require.NoError(t, sim.Step())
	require.Equal(t, 1+(2+1), sim.VirtualTime())
	require.Equal(t, []TraceEvent{
		{Kind: EventKindWaitedForIO, ID: 1, Amount: 2, Tick: 1, Clock: 1},
		{Kind: EventKindRan, ID: 1, Amount: 2, Tick: 1, Clock: 1},
	}, sim.Trace())

	_, err = sim.Run()
	require.NoError(t, err)
	require.Equal(t, []TraceEvent{
		NewWaitedForIOEvent(1, 2),
		NewRanEvent(1, 2),
		NewWaitedForIOEvent(1, 2),
		NewRanEvent(1, 2),
		NewIOCompletedEvent(1),
		NewRanEvent(1, 0),
		NewCompletedEvent(1, 8),
	}, withoutStamps(sim.Trace()))
	require.Equal(t, 8, sim.VirtualTime())

	m := sim.Metrics()
	require.Equal(t, 2, m.IdleTime)
	require.Equal(t, 6, m.IOServiceTime)
	require.Equal(t, 0, m.CPUBusyTime)
	require.Equal(t, 2, m.PerProcess[1].IOTicks)
}

// RunTime is shared between CPU and I/O accounting and is never reset: a
// process that finishes its I/O has nothing left to run and completes on its
// first dispatch with a zero-length run.
func TestScheduler_RunTimeSharedBetweenIOAndCPU(t *testing.T) {
	config := SimConfig{
		TimeSlice:      2,
		CSTPenalty:     1,
		AgingThreshold: 5,
		Processes: []ProcessDescriptor{
			{ID: 1, BurstTime: 3, Priority: 1},
			{ID: 2, BurstTime: 2, Priority: 1, StartInIO: true},
		},
	}

	sim := runConfig(t, config)

	require.Equal(t, []TraceEvent{
		NewRanEvent(1, 2),
		NewWaitedForIOEvent(2, 2),
		NewRanEvent(2, 2),
		NewIOCompletedEvent(2),
		NewRanEvent(1, 1),
		NewCompletedEvent(1, 6),
		NewRanEvent(2, 0),
		NewCompletedEvent(2, 6),
	}, withoutStamps(sim.Trace()))
	require.Equal(t, 6, sim.VirtualTime())

	p2, _ := sim.Process(2)
	require.Equal(t, 2, p2.RunTime)
	require.Equal(t, 6, p2.CompletionTime)
}

// I/O progress is capped at the remaining burst so the equality sweep finds
// bursts that are not multiples of the slice. The wait still reports the full
// slice on the final I/O tick.
func TestScheduler_IOProgressCappedAtBurst(t *testing.T) {
	config := SimConfig{
		TimeSlice:      2,
		CSTPenalty:     0,
		AgingThreshold: 10,
		Processes:      []ProcessDescriptor{{ID: 1, BurstTime: 3, StartInIO: true}},
	}

	stepped, err := NewSimulator(config)
	require.NoError(t, err)
	require.NoError(t, stepped.Step())
	require.NoError(t, stepped.Step())
	last := stepped.Trace()[len(stepped.Trace())-2:]
	require.Equal(t, NewWaitedForIOEvent(1, 2), withoutStamps(last)[0])
	require.Equal(t, NewRanEvent(1, 1), withoutStamps(last)[1])
	p, _ := stepped.Process(1)
	require.Equal(t, 3, p.RunTime, "progress is clamped while the wait is not")
	require.Equal(t, 4, stepped.VirtualTime(), "the clock charges the full slice")

	sim := runConfig(t, config)

	require.Equal(t, []TraceEvent{
		NewWaitedForIOEvent(1, 2),
		NewRanEvent(1, 2),
		NewWaitedForIOEvent(1, 2),
		NewRanEvent(1, 1),
		NewIOCompletedEvent(1),
		NewRanEvent(1, 0),
		NewCompletedEvent(1, 4),
	}, withoutStamps(sim.Trace()))
}

func TestScheduler_IOSweepPreservesOrder(t *testing.T) {
	config := SimConfig{
		TimeSlice:      2,
		CSTPenalty:     0,
		AgingThreshold: 100,
		Processes: []ProcessDescriptor{
			{ID: 1, BurstTime: 2, StartInIO: true},
			{ID: 2, BurstTime: 4, StartInIO: true},
			{ID: 3, BurstTime: 2, StartInIO: true},
		},
	}

	sim, err := NewSimulator(config)
	require.NoError(t, err)

	require.NoError(t, sim.Step())
	require.Equal(t, []int{1, 2, 3}, sim.IOQueue())

	// Tick 2 sweeps 1 and 3 out, leaving 2 behind; 1 is dispatched at once
	require.NoError(t, sim.Step())
	require.Equal(t, []int{3}, sim.ReadyQueue())
	require.Equal(t, []int{2}, sim.IOQueue())

	_, err = sim.Run()
	require.NoError(t, err)

	ioDone := withoutStamps(eventsOfKind(sim.Trace(), EventKindIOCompleted))
	require.Equal(t, []TraceEvent{NewIOCompletedEvent(1), NewIOCompletedEvent(3), NewIOCompletedEvent(2)}, ioDone)

	completed := withoutStamps(eventsOfKind(sim.Trace(), EventKindCompleted))
	require.Equal(t, []TraceEvent{NewCompletedEvent(1, 2), NewCompletedEvent(3, 4), NewCompletedEvent(2, 4)}, completed)
}

func TestScheduler_PromotionAppliedBeforeCompletionOnly(t *testing.T) {
	config := SimConfig{
		TimeSlice:      2,
		CSTPenalty:     0,
		AgingThreshold: 4,
		Processes:      []ProcessDescriptor{{ID: 1, BurstTime: 6, Priority: 3}},
	}

	sim := runConfig(t, config)

	require.Equal(t, []TraceEvent{
		NewRanEvent(1, 2),
		NewRanEvent(1, 2),
		NewPromotedEvent(1, 2),
		NewRanEvent(1, 2),
		NewCompletedEvent(1, 6),
	}, withoutStamps(sim.Trace()))
}

func TestScheduler_ZeroBurstCompletesImmediately(t *testing.T) {
	config := DefaultConfig()
	config.Processes = []ProcessDescriptor{{ID: 4, BurstTime: 0}}

	sim := runConfig(t, config)

	require.Equal(t, []TraceEvent{NewRanEvent(4, 0), NewCompletedEvent(4, 0)}, withoutStamps(sim.Trace()))
	require.Equal(t, 0, sim.VirtualTime())
	require.Equal(t, 1, sim.Ticks())
}

func TestScheduler_EmptyProcessSet(t *testing.T) {
	config := DefaultConfig()
	config.Processes = nil

	sim := runConfig(t, config)
	require.Empty(t, sim.Trace())
	require.Equal(t, 0, sim.VirtualTime())
	require.Equal(t, 0, sim.Ticks())
}

func TestScheduler_InvariantViolationAbortsWithDump(t *testing.T) {
	sim, err := NewSimulator(DefaultConfig())
	require.NoError(t, err)

	// Corrupt the queues: handle 0 is already on the ready queue
	sim.io.Enqueue(0)

	err = sim.Step()
	require.Error(t, err)

	var violation *InvariantViolation
	require.True(t, errors.As(err, &violation))
	require.Contains(t, violation.Reason, "both ready and io queues")
	require.Equal(t, 1, violation.Tick)
	require.Contains(t, violation.Dump, `"readyQueue"`)
	require.Contains(t, violation.Dump, `"ioQueue"`)

	// The simulator refuses to continue
	require.Equal(t, err, sim.Step())
	require.Equal(t, err, sim.Err())
	_, runErr := sim.Run()
	require.Equal(t, err, runErr)
}

func TestScheduler_InvariantViolationOnLostProcess(t *testing.T) {
	sim, err := NewSimulator(DefaultConfig())
	require.NoError(t, err)

	// Drop process 3 from the ready queue without terminating it
	sim.ready.PopTail()

	err = sim.Step()
	var violation *InvariantViolation
	require.ErrorAs(t, err, &violation)
	require.Contains(t, violation.Reason, "process 3")
	require.Contains(t, violation.Reason, "not on any queue")
}

func TestScheduler_TickLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxTicks = 5

	sim, err := NewSimulator(config)
	require.NoError(t, err)

	_, err = sim.Run()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTickLimitExceeded))
	require.Equal(t, 5, sim.Ticks())
	require.False(t, sim.IsDone())

	// A limit that is large enough has no effect
	config.MaxTicks = 16
	sim = runConfig(t, config)
	require.Equal(t, 30, sim.VirtualTime())
}
