package simulator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DispatchPolicy selects which ready process is dispatched on each tick
type DispatchPolicy int

const (
	DispatchFIFO     DispatchPolicy = iota // Head of the ready queue (round-robin)
	DispatchPriority                       // Lowest priority value first, ties in queue order
)

// String returns the string representation of DispatchPolicy
func (dp DispatchPolicy) String() string {
	switch dp {
	case DispatchFIFO:
		return "fifo"
	case DispatchPriority:
		return "priority"
	default:
		return "unknown"
	}
}

// ParseDispatchPolicy parses a string into DispatchPolicy
func ParseDispatchPolicy(s string) (DispatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo", "":
		return DispatchFIFO, nil
	case "priority":
		return DispatchPriority, nil
	default:
		return DispatchFIFO, fmt.Errorf("invalid dispatch policy: %s (must be 'fifo' or 'priority')", s)
	}
}

// MarshalJSON implements json.Marshaler for DispatchPolicy
func (dp DispatchPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(dp.String())
}

// UnmarshalJSON implements json.Unmarshaler for DispatchPolicy
func (dp *DispatchPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDispatchPolicy(s)
	if err != nil {
		return err
	}
	*dp = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for DispatchPolicy
func (dp DispatchPolicy) MarshalYAML() (interface{}, error) {
	return dp.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for DispatchPolicy
func (dp *DispatchPolicy) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDispatchPolicy(s)
	if err != nil {
		return err
	}
	*dp = parsed
	return nil
}

// ProcessDescriptor describes one process handed to the simulator
type ProcessDescriptor struct {
	ID          int  `json:"id" yaml:"id"`
	ArrivalTime int  `json:"arrivalTime" yaml:"arrival_time"` // Informational, every process starts eligible at t=0
	BurstTime   int  `json:"burstTime" yaml:"burst_time"`     // Total time needed to complete (>= 0)
	Priority    int  `json:"priority" yaml:"priority"`        // Lower value = higher priority
	StartInIO   bool `json:"startInIO" yaml:"start_in_io"`    // Start on the I/O queue instead of the ready queue
}

// SimConfig holds the scheduling parameters and the process set
type SimConfig struct {
	TimeSlice      int            `json:"timeSlice" yaml:"time_slice"`           // Quantum granted per dispatch (> 0)
	CSTPenalty     int            `json:"cstPenalty" yaml:"cst_penalty"`         // Context-switch / idle penalty (>= 0)
	AgingThreshold int            `json:"agingThreshold" yaml:"aging_threshold"` // Run time at which a process gets promoted (> 0)
	DispatchPolicy DispatchPolicy `json:"dispatchPolicy" yaml:"dispatch_policy"` // "fifo" (default) or "priority"
	MaxTicks       int            `json:"maxTicks" yaml:"max_ticks"`             // Abort after this many ticks (0 = unlimited)

	Processes []ProcessDescriptor `json:"processes" yaml:"processes"`

	// Workload, when set and processes is absent, generates the process set at load time
	Workload *WorkloadConfig `json:"workload,omitempty" yaml:"workload,omitempty"`
}

// DefaultConfig returns the classic three-process workload
func DefaultConfig() SimConfig {
	return SimConfig{
		TimeSlice:      2,
		CSTPenalty:     1,
		AgingThreshold: 5,
		DispatchPolicy: DispatchFIFO,
		MaxTicks:       0,
		Processes: []ProcessDescriptor{
			{ID: 1, ArrivalTime: 0, BurstTime: 5, Priority: 1},
			{ID: 2, ArrivalTime: 0, BurstTime: 10, Priority: 2},
			{ID: 3, ArrivalTime: 0, BurstTime: 15, Priority: 3},
		},
	}
}

// Validate checks if configuration values are usable
func (c *SimConfig) Validate() error {
	if c.TimeSlice <= 0 {
		return errInvalidField("timeSlice", "must be > 0")
	}
	if c.CSTPenalty < 0 {
		return errInvalidField("cstPenalty", "must be >= 0")
	}
	if c.AgingThreshold <= 0 {
		return errInvalidField("agingThreshold", "must be > 0")
	}
	if c.DispatchPolicy != DispatchFIFO && c.DispatchPolicy != DispatchPriority {
		return errInvalidField("dispatchPolicy", fmt.Sprintf("unknown policy %d", int(c.DispatchPolicy)))
	}
	if c.MaxTicks < 0 {
		return errInvalidField("maxTicks", "must be >= 0")
	}

	seen := make(map[int]bool, len(c.Processes))
	for i, p := range c.Processes {
		if p.BurstTime < 0 {
			return errInvalidField(fmt.Sprintf("processes[%d].burstTime", i), "must be >= 0")
		}
		if seen[p.ID] {
			return errInvalidField(fmt.Sprintf("processes[%d].id", i), fmt.Sprintf("duplicate process id %d", p.ID))
		}
		seen[p.ID] = true
	}
	return nil
}

// LoadConfig reads a SimConfig from a JSON or YAML file, picked by extension.
// Fields missing from the file keep their DefaultConfig values, except
// processes which are replaced when present.
func LoadConfig(path string) (SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SimConfig{}, fmt.Errorf("read config: %w", err)
	}

	config := DefaultConfig()
	config.Processes = nil
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return SimConfig{}, fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	case ".json", "":
		if err := json.Unmarshal(data, &config); err != nil {
			return SimConfig{}, fmt.Errorf("parse json config %s: %w", path, err)
		}
	default:
		return SimConfig{}, ErrInvalidConfig(fmt.Sprintf("unsupported config format %q (want .json, .yaml or .yml)", filepath.Ext(path)))
	}
	switch {
	case config.Processes != nil:
	case config.Workload != nil:
		generated, err := GenerateProcesses(*config.Workload)
		if err != nil {
			return SimConfig{}, err
		}
		config.Processes = generated
	default:
		config.Processes = DefaultConfig().Processes
	}

	if err := config.Validate(); err != nil {
		return SimConfig{}, err
	}
	return config, nil
}
