package simulator

// ProcessMetrics tracks the scheduling history of one process
type ProcessMetrics struct {
	ID             int  `json:"id"`
	ArrivalTime    int  `json:"arrivalTime"`
	BurstTime      int  `json:"burstTime"`
	InitialPrio    int  `json:"initialPriority"`
	FinalPriority  int  `json:"finalPriority"`
	Dispatches     int  `json:"dispatches"`     // Times selected from the ready queue
	Promotions     int  `json:"promotions"`     // Aging promotions applied
	IOTicks        int  `json:"ioTicks"`        // Ticks spent on the I/O queue
	Completed      bool `json:"completed"`      // True once terminated
	CompletionTime int  `json:"completionTime"` // Clock at termination
	TurnaroundTime int  `json:"turnaroundTime"` // CompletionTime - ArrivalTime
	WaitingTime    int  `json:"waitingTime"`    // TurnaroundTime - BurstTime
}

// Metrics tracks aggregate statistics of a run
type Metrics struct {
	Timestamp int `json:"timestamp"` // Virtual time
	Ticks     int `json:"ticks"`

	TotalProcesses     int `json:"totalProcesses"`
	CompletedProcesses int `json:"completedProcesses"`
	ReadyQueueLength   int `json:"readyQueueLength"`
	IOQueueLength      int `json:"ioQueueLength"`

	// Clock accounting. Every clock advance lands in exactly one bucket.
	CPUBusyTime   int `json:"cpuBusyTime"`   // Time spent running dispatched processes
	IdleTime      int `json:"idleTime"`      // cstPenalty charged on ticks with an empty ready queue
	IOServiceTime int `json:"ioServiceTime"` // timeSlice + cstPenalty charged on ticks with a non-empty I/O queue

	TotalPromotions int `json:"totalPromotions"`
	TotalDispatches int `json:"totalDispatches"`

	CPUUtilizationPercent float64 `json:"cpuUtilizationPercent"` // CPUBusyTime / Timestamp
	AvgTurnaroundTime     float64 `json:"avgTurnaroundTime"`
	AvgWaitingTime        float64 `json:"avgWaitingTime"`
	Throughput            float64 `json:"throughput"` // Completed processes per time unit

	PerProcess map[int]*ProcessMetrics `json:"perProcess"`
}

// NewMetrics creates an empty metrics tracker for the given records
func NewMetrics(records []ProcessRecord) *Metrics {
	m := &Metrics{
		TotalProcesses: len(records),
		PerProcess:     make(map[int]*ProcessMetrics, len(records)),
	}
	for _, r := range records {
		m.PerProcess[r.ID] = &ProcessMetrics{
			ID:            r.ID,
			ArrivalTime:   r.ArrivalTime,
			BurstTime:     r.BurstTime,
			InitialPrio:   r.Priority,
			FinalPriority: r.Priority,
		}
	}
	return m
}

// RecordDispatch counts one dispatch of the process
func (m *Metrics) RecordDispatch(id int, cpuTime int) {
	m.TotalDispatches++
	m.CPUBusyTime += cpuTime
	if pm, ok := m.PerProcess[id]; ok {
		pm.Dispatches++
	}
}

// RecordIdle charges an idle context-switch penalty
func (m *Metrics) RecordIdle(penalty int) {
	m.IdleTime += penalty
}

// RecordIOTick charges one I/O queue tick and counts it against every waiting process
func (m *Metrics) RecordIOTick(ids []int, cost int) {
	m.IOServiceTime += cost
	for _, id := range ids {
		if pm, ok := m.PerProcess[id]; ok {
			pm.IOTicks++
		}
	}
}

// RecordPromotion counts an aging promotion
func (m *Metrics) RecordPromotion(id int, newPriority int) {
	m.TotalPromotions++
	if pm, ok := m.PerProcess[id]; ok {
		pm.Promotions++
		pm.FinalPriority = newPriority
	}
}

// RecordCompletion records a process termination and refreshes the averages
func (m *Metrics) RecordCompletion(id int, completionTime int) {
	pm, ok := m.PerProcess[id]
	if !ok || pm.Completed {
		return
	}
	pm.Completed = true
	pm.CompletionTime = completionTime
	pm.TurnaroundTime = completionTime - pm.ArrivalTime
	pm.WaitingTime = pm.TurnaroundTime - pm.BurstTime
	m.CompletedProcesses++

	totalTurnaround := 0
	totalWaiting := 0
	for _, p := range m.PerProcess {
		if p.Completed {
			totalTurnaround += p.TurnaroundTime
			totalWaiting += p.WaitingTime
		}
	}
	m.AvgTurnaroundTime = float64(totalTurnaround) / float64(m.CompletedProcesses)
	m.AvgWaitingTime = float64(totalWaiting) / float64(m.CompletedProcesses)
}

// Update refreshes the time-dependent fields at a tick boundary
func (m *Metrics) Update(clock, ticks, readyLen, ioLen int) {
	m.Timestamp = clock
	m.Ticks = ticks
	m.ReadyQueueLength = readyLen
	m.IOQueueLength = ioLen
	if clock > 0 {
		m.CPUUtilizationPercent = float64(m.CPUBusyTime) / float64(clock) * 100.0
		m.Throughput = float64(m.CompletedProcesses) / float64(clock)
	} else {
		m.CPUUtilizationPercent = 0
		m.Throughput = 0
	}
}

// Clone returns a deep copy of the metrics
func (m *Metrics) Clone() *Metrics {
	clone := *m
	clone.PerProcess = make(map[int]*ProcessMetrics, len(m.PerProcess))
	for id, pm := range m.PerProcess {
		c := *pm
		clone.PerProcess[id] = &c
	}
	return &clone
}
