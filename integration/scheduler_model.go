package integration

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/miretskiy/rrsched/simulator"
)

// SchedulerConfig defines configuration for the scheduler component model
type SchedulerConfig struct {
	// Scheduling parameters
	TimeSlice      int    `yaml:"time_slice" json:"time_slice"`
	CSTPenalty     int    `yaml:"cst_penalty" json:"cst_penalty"`
	AgingThreshold int    `yaml:"aging_threshold" json:"aging_threshold"`
	DispatchPolicy string `yaml:"dispatch_policy,omitempty" json:"dispatch_policy,omitempty"`
	MaxTicks       int    `yaml:"max_ticks,omitempty" json:"max_ticks,omitempty"`

	// Workload used when a request carries no processes of its own
	Processes []simulator.ProcessDescriptor `yaml:"processes,omitempty" json:"processes,omitempty"`

	// Log a warning when the average waiting time of a run exceeds this (0 disables)
	WaitLogThreshold float64 `yaml:"wait_log_threshold,omitempty" json:"wait_log_threshold,omitempty"`
}

// ParseSchedulerConfig decodes a YAML (or JSON, which is valid YAML) model config
func ParseSchedulerConfig(data []byte) (*SchedulerConfig, error) {
	var cfg SchedulerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scheduler config: %w", err)
	}
	return &cfg, nil
}

// RequestContext contains information about the incoming request
type RequestContext struct {
	Component string                        `json:"component,omitempty"`
	Processes []simulator.ProcessDescriptor `json:"processes,omitempty"`
}

// LogEntry represents a log emitted by the model
type LogEntry struct {
	Clock   int    `json:"clock"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// MetricSample represents a custom metric emitted by the model
type MetricSample struct {
	Name  string            `json:"name"`
	Type  string            `json:"type"`
	Value float64           `json:"value"`
	Tags  map[string]string `json:"tags,omitempty"`
}

// ParameterDescriptor describes a mutable configuration field
type ParameterDescriptor struct {
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	CurrentValue interface{} `json:"current_value"`
	Min          *float64    `json:"min,omitempty"`
	Max          *float64    `json:"max,omitempty"`
	Options      []string    `json:"options,omitempty"`
	Description  string      `json:"description,omitempty"`
}

// Result represents the outcome of one simulated batch
type Result struct {
	FinalClock int                       `json:"final_clock"`
	Ticks      int                       `json:"ticks"`
	Status     string                    `json:"status"`
	ErrorType  *string                   `json:"error_type,omitempty"`
	ErrorMsg   *string                   `json:"error_msg,omitempty"`
	Trace      []simulator.TraceEvent    `json:"trace"`
	Processes  []simulator.ProcessRecord `json:"processes"`
	Logs       []LogEntry                `json:"logs,omitempty"`
	Metrics    []MetricSample            `json:"metrics"`
}

// SchedulerModel runs batches of processes through the round-robin scheduler
// under parameters that can be changed between requests.
type SchedulerModel struct {
	component string
	cfg       *SchedulerConfig
	simCfg    simulator.SimConfig
	mu        sync.Mutex

	// Cumulative across requests
	totalRuns        int64
	failedRuns       int64
	totalProcesses   int64
	totalPromotions  int64
	totalVirtualTime int64

	lastHealth string // "ok" or "error", from the most recent run
}

// NewSchedulerModel creates a new scheduler component model
func NewSchedulerModel(component string, cfg *SchedulerConfig) (*SchedulerModel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("scheduler config is required")
	}

	// An empty workload is valid here; requests then have to bring their own
	simCfg, err := cfg.simConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}

	return &SchedulerModel{
		component:  component,
		cfg:        cfg,
		simCfg:     simCfg,
		lastHealth: "ok",
	}, nil
}

func (c *SchedulerConfig) simConfig() (simulator.SimConfig, error) {
	policy, err := simulator.ParseDispatchPolicy(c.DispatchPolicy)
	if err != nil {
		return simulator.SimConfig{}, err
	}
	config := simulator.SimConfig{
		TimeSlice:      c.TimeSlice,
		CSTPenalty:     c.CSTPenalty,
		AgingThreshold: c.AgingThreshold,
		DispatchPolicy: policy,
		MaxTicks:       c.MaxTicks,
		Processes:      append([]simulator.ProcessDescriptor(nil), c.Processes...),
	}
	return config, config.Validate()
}

// Name returns the component name
func (m *SchedulerModel) Name() string {
	return m.component
}

// Health returns "ok", or "error" if the most recent run aborted
func (m *SchedulerModel) Health() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHealth
}

// SimConfig returns the simulator configuration the next request will use
func (m *SchedulerModel) SimConfig() simulator.SimConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	config := m.simCfg
	config.Processes = append([]simulator.ProcessDescriptor(nil), m.simCfg.Processes...)
	return config
}

// HandleRequest simulates one batch of processes to completion.
// An invalid batch is an error; a run that aborts is reported in the result.
func (m *SchedulerModel) HandleRequest(ctx *RequestContext) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	config := m.simCfg
	if ctx != nil && len(ctx.Processes) > 0 {
		config.Processes = ctx.Processes
	}
	if len(config.Processes) == 0 {
		return nil, fmt.Errorf("%s: request has no processes and no default workload is configured", m.component)
	}

	sim, err := simulator.NewSimulator(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulator: %w", err)
	}

	var logs []LogEntry
	sim.LogEvent = func(msg string) {
		status := "info"
		if strings.Contains(msg, "ABORTED") {
			status = "error"
		}
		logs = append(logs, LogEntry{Clock: sim.VirtualTime(), Status: status, Message: msg})
	}

	finalClock, runErr := sim.Run()
	metrics := sim.Metrics()

	m.totalRuns++
	m.totalProcesses += int64(len(config.Processes))
	m.totalPromotions += int64(metrics.TotalPromotions)
	m.totalVirtualTime += int64(finalClock)

	result := &Result{
		FinalClock: finalClock,
		Ticks:      sim.Ticks(),
		Status:     "ok",
		Trace:      sim.Trace(),
		Processes:  sim.Processes(),
	}

	if runErr != nil {
		m.failedRuns++
		m.lastHealth = "error"
		result.Status = "error"
		errType := errorType(runErr)
		errMsg := fmt.Sprintf("%s run aborted: %v", m.component, runErr)
		result.ErrorType = &errType
		result.ErrorMsg = &errMsg
	} else {
		m.lastHealth = "ok"
	}

	if m.cfg.WaitLogThreshold > 0 && metrics.AvgWaitingTime > m.cfg.WaitLogThreshold {
		logs = append(logs, LogEntry{
			Clock:   finalClock,
			Status:  "warn",
			Message: fmt.Sprintf("%s average waiting time %.1f exceeds %.1f", m.component, metrics.AvgWaitingTime, m.cfg.WaitLogThreshold),
		})
	}
	result.Logs = logs
	result.Metrics = m.buildMetrics(metrics, finalClock, result.Ticks)

	return result, nil
}

func errorType(err error) string {
	var violation *simulator.InvariantViolation
	switch {
	case errors.Is(err, simulator.ErrTickLimitExceeded):
		return "tick_limit_exceeded"
	case errors.As(err, &violation):
		return "invariant_violation"
	default:
		return "simulation_error"
	}
}

// buildMetrics constructs metric samples from a finished run
func (m *SchedulerModel) buildMetrics(metrics *simulator.Metrics, finalClock, ticks int) []MetricSample {
	tags := map[string]string{
		"component_model": "rrsched",
		"dispatch_policy": m.simCfg.DispatchPolicy.String(),
	}

	samples := []MetricSample{
		// Per-run gauges
		{Name: "rrsched.final_clock", Type: "gauge", Value: float64(finalClock), Tags: tags},
		{Name: "rrsched.ticks", Type: "gauge", Value: float64(ticks), Tags: tags},
		{Name: "rrsched.cpu_utilization_percent", Type: "gauge", Value: metrics.CPUUtilizationPercent, Tags: tags},
		{Name: "rrsched.avg_turnaround_time", Type: "gauge", Value: metrics.AvgTurnaroundTime, Tags: tags},
		{Name: "rrsched.avg_waiting_time", Type: "gauge", Value: metrics.AvgWaitingTime, Tags: tags},
		{Name: "rrsched.throughput", Type: "gauge", Value: metrics.Throughput, Tags: tags},
		{Name: "rrsched.idle_time", Type: "gauge", Value: float64(metrics.IdleTime), Tags: tags},
		{Name: "rrsched.io_service_time", Type: "gauge", Value: float64(metrics.IOServiceTime), Tags: tags},
		// Cumulative counters
		{Name: "rrsched.runs", Type: "counter", Value: float64(m.totalRuns), Tags: tags},
		{Name: "rrsched.failed_runs", Type: "counter", Value: float64(m.failedRuns), Tags: tags},
		{Name: "rrsched.processes_scheduled", Type: "counter", Value: float64(m.totalProcesses), Tags: tags},
		{Name: "rrsched.promotions", Type: "counter", Value: float64(m.totalPromotions), Tags: tags},
		{Name: "rrsched.virtual_time", Type: "counter", Value: float64(m.totalVirtualTime), Tags: tags},
	}

	for _, id := range m.processOrder(metrics) {
		pm := metrics.PerProcess[id]
		if !pm.Completed {
			continue
		}
		processTags := make(map[string]string, len(tags)+1)
		for k, v := range tags {
			processTags[k] = v
		}
		processTags["process"] = strconv.Itoa(pm.ID)
		samples = append(samples, MetricSample{
			Name:  "rrsched.process_turnaround_time",
			Type:  "gauge",
			Value: float64(pm.TurnaroundTime),
			Tags:  processTags,
		})
	}

	return samples
}

// processOrder returns process IDs sorted ascending for stable output
func (m *SchedulerModel) processOrder(metrics *simulator.Metrics) []int {
	ids := make([]int, 0, len(metrics.PerProcess))
	for id := range metrics.PerProcess {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Config returns the current model configuration
func (m *SchedulerModel) Config() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	config := map[string]interface{}{
		"time_slice":      m.simCfg.TimeSlice,
		"cst_penalty":     m.simCfg.CSTPenalty,
		"aging_threshold": m.simCfg.AgingThreshold,
		"dispatch_policy": m.simCfg.DispatchPolicy.String(),
		"process_count":   len(m.simCfg.Processes),
	}
	if m.simCfg.MaxTicks > 0 {
		config["max_ticks"] = m.simCfg.MaxTicks
	}
	if m.cfg.WaitLogThreshold > 0 {
		config["wait_log_threshold"] = m.cfg.WaitLogThreshold
	}
	return config
}

// MutableParameters returns descriptors for runtime-adjustable parameters
func (m *SchedulerModel) MutableParameters() []ParameterDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	params := make([]ParameterDescriptor, 0)

	minSlice := 1.0
	maxSlice := 1000.0
	params = append(params, ParameterDescriptor{
		Name:         "time_slice",
		Type:         "int",
		CurrentValue: m.simCfg.TimeSlice,
		Min:          &minSlice,
		Max:          &maxSlice,
		Description:  "CPU time a dispatched process may run before it is rotated to the back of the ready queue. Every process on the I/O queue also advances by this much per tick.",
	})

	minPenalty := 0.0
	maxPenalty := 1000.0
	params = append(params, ParameterDescriptor{
		Name:         "cst_penalty",
		Type:         "int",
		CurrentValue: m.simCfg.CSTPenalty,
		Min:          &minPenalty,
		Max:          &maxPenalty,
		Description:  "Context switch penalty. Charged to the clock when the ready queue is empty at dispatch time and on every tick that services the I/O queue.",
	})

	minAging := 1.0
	maxAging := 100000.0
	params = append(params, ParameterDescriptor{
		Name:         "aging_threshold",
		Type:         "int",
		CurrentValue: m.simCfg.AgingThreshold,
		Min:          &minAging,
		Max:          &maxAging,
		Description:  "Accumulated run time after which a process that did not complete has its priority value lowered by one on every further dispatch.",
	})

	params = append(params, ParameterDescriptor{
		Name:         "dispatch_policy",
		Type:         "enum",
		CurrentValue: m.simCfg.DispatchPolicy.String(),
		Options:      []string{simulator.DispatchFIFO.String(), simulator.DispatchPriority.String()},
		Description:  "fifo dispatches the ready queue head. priority dispatches the lowest priority value, ties broken by queue order.",
	})

	return params
}

// UpdateParameters applies runtime configuration changes. Either every
// change is applied or none is.
func (m *SchedulerModel) UpdateParameters(params map[string]interface{}) error {
	if len(params) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.simCfg

	if raw, ok := params["time_slice"]; ok {
		val, err := parseIntParam(raw)
		if err != nil {
			return fmt.Errorf("time_slice: %w", err)
		}
		if val <= 0 {
			return fmt.Errorf("time_slice must be > 0")
		}
		next.TimeSlice = val
	}

	if raw, ok := params["cst_penalty"]; ok {
		val, err := parseIntParam(raw)
		if err != nil {
			return fmt.Errorf("cst_penalty: %w", err)
		}
		if val < 0 {
			return fmt.Errorf("cst_penalty must be >= 0")
		}
		next.CSTPenalty = val
	}

	if raw, ok := params["aging_threshold"]; ok {
		val, err := parseIntParam(raw)
		if err != nil {
			return fmt.Errorf("aging_threshold: %w", err)
		}
		if val <= 0 {
			return fmt.Errorf("aging_threshold must be > 0")
		}
		next.AgingThreshold = val
	}

	if raw, ok := params["dispatch_policy"]; ok {
		name, ok := raw.(string)
		if !ok {
			return fmt.Errorf("dispatch_policy: unsupported type %T", raw)
		}
		policy, err := simulator.ParseDispatchPolicy(name)
		if err != nil {
			return fmt.Errorf("dispatch_policy: %w", err)
		}
		next.DispatchPolicy = policy
	}

	if err := next.Validate(); err != nil {
		return fmt.Errorf("failed to update simulator config: %w", err)
	}

	m.simCfg = next
	m.cfg.TimeSlice = next.TimeSlice
	m.cfg.CSTPenalty = next.CSTPenalty
	m.cfg.AgingThreshold = next.AgingThreshold
	m.cfg.DispatchPolicy = next.DispatchPolicy.String()
	return nil
}

// Helper functions for parameter parsing
func parseIntParam(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("expected an integer, got %v", v)
		}
		return int(v), nil
	case float32:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("unable to parse integer value: %s", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}
