package simulator

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gopkg.in/yaml.v3"
)

// DistributionType selects how generated burst times are spread over their range
type DistributionType int

const (
	DistUniform DistributionType = iota
	DistExponential
	DistGeometric
	DistFixed
)

// String returns the string representation of DistributionType
func (dt DistributionType) String() string {
	switch dt {
	case DistUniform:
		return "uniform"
	case DistExponential:
		return "exponential"
	case DistGeometric:
		return "geometric"
	case DistFixed:
		return "fixed"
	default:
		return fmt.Sprintf("unknown(%d)", int(dt))
	}
}

// ParseDistributionType parses a string into a DistributionType
func ParseDistributionType(s string) (DistributionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uniform", "":
		return DistUniform, nil
	case "exponential":
		return DistExponential, nil
	case "geometric":
		return DistGeometric, nil
	case "fixed":
		return DistFixed, nil
	default:
		return DistUniform, fmt.Errorf("invalid DistributionType: %s (must be 'uniform', 'exponential', 'geometric', or 'fixed')", s)
	}
}

// MarshalJSON implements json.Marshaler for DistributionType
func (dt DistributionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.String())
}

// UnmarshalJSON implements json.Unmarshaler for DistributionType
func (dt *DistributionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDistributionType(s)
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for DistributionType
func (dt DistributionType) MarshalYAML() (interface{}, error) {
	return dt.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for DistributionType
func (dt *DistributionType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDistributionType(s)
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}

// Sampler draws integers in [lo, hi]
type Sampler interface {
	Sample(rng *rand.Rand, lo, hi int) int
}

type uniformSampler struct{}

func (uniformSampler) Sample(rng *rand.Rand, lo, hi int) int {
	if lo >= hi {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// exponentialSampler favours short bursts. Values past 6/lambda clamp to hi.
type exponentialSampler struct {
	lambda float64
}

func (s exponentialSampler) Sample(rng *rand.Rand, lo, hi int) int {
	if lo >= hi {
		return lo
	}
	u := rng.Float64()
	if u == 0 {
		u = 1e-10
	}
	x := -math.Log(u) / s.lambda
	normalized := math.Min(x/(6.0/s.lambda), 1.0)
	return lo + int(normalized*float64(hi-lo))
}

// geometricSampler counts failures before the first success, capped at the range
type geometricSampler struct {
	p float64
}

func (s geometricSampler) Sample(rng *rand.Rand, lo, hi int) int {
	if lo >= hi {
		return lo
	}
	u := math.Min(rng.Float64(), 0.999999)
	trials := 0
	if s.p > 0 && s.p < 1 {
		trials = max(0, int(math.Log(1-u)/math.Log(1-s.p)))
	}
	return lo + min(trials, hi-lo)
}

// fixedSampler always returns the same point of the range
type fixedSampler struct {
	fraction float64
}

func (s fixedSampler) Sample(_ *rand.Rand, lo, hi int) int {
	if lo >= hi {
		return lo
	}
	f := math.Max(0, math.Min(1, s.fraction))
	return lo + int(f*float64(hi-lo))
}

// NewSampler creates a sampler for the distribution type
func NewSampler(dt DistributionType) Sampler {
	switch dt {
	case DistExponential:
		return exponentialSampler{lambda: 0.5}
	case DistGeometric:
		return geometricSampler{p: 0.3}
	case DistFixed:
		return fixedSampler{fraction: 0.5}
	default:
		return uniformSampler{}
	}
}

// WorkloadConfig describes a randomly generated process set
type WorkloadConfig struct {
	Count       int              `json:"count" yaml:"count"`
	BurstDist   DistributionType `json:"burstDistribution" yaml:"burst_distribution"`
	MinBurst    int              `json:"minBurst" yaml:"min_burst"`
	MaxBurst    int              `json:"maxBurst" yaml:"max_burst"`
	MaxPriority int              `json:"maxPriority" yaml:"max_priority"` // Priorities drawn uniformly from [0, MaxPriority]
	IOFraction  float64          `json:"ioFraction" yaml:"io_fraction"`   // Share of processes that start on the I/O queue
	FirstID     int              `json:"firstId" yaml:"first_id"`         // IDs are FirstID, FirstID+1, ...
	RandomSeed  int64            `json:"randomSeed" yaml:"random_seed"`   // 0 picks a random seed
}

// DefaultWorkloadConfig returns a small mixed workload
func DefaultWorkloadConfig() WorkloadConfig {
	return WorkloadConfig{
		Count:       5,
		BurstDist:   DistUniform,
		MinBurst:    1,
		MaxBurst:    20,
		MaxPriority: 5,
		IOFraction:  0.2,
		FirstID:     1,
	}
}

// Validate checks that the workload can be generated
func (w *WorkloadConfig) Validate() error {
	if w.Count < 0 {
		return errInvalidField("workload.count", "must be >= 0")
	}
	if w.MinBurst < 0 {
		return errInvalidField("workload.minBurst", "must be >= 0")
	}
	if w.MaxBurst < w.MinBurst {
		return errInvalidField("workload.maxBurst", fmt.Sprintf("must be >= minBurst (%d)", w.MinBurst))
	}
	if w.MaxPriority < 0 {
		return errInvalidField("workload.maxPriority", "must be >= 0")
	}
	if w.IOFraction < 0 || w.IOFraction > 1 {
		return errInvalidField("workload.ioFraction", "must be in [0, 1]")
	}
	if w.BurstDist < DistUniform || w.BurstDist > DistFixed {
		return errInvalidField("workload.burstDistribution", fmt.Sprintf("unknown distribution %d", int(w.BurstDist)))
	}
	return nil
}

// GenerateProcesses draws a process set. The same non-zero seed always yields
// the same descriptors.
func GenerateProcesses(w WorkloadConfig) ([]ProcessDescriptor, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	seed := w.RandomSeed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))
	burst := NewSampler(w.BurstDist)
	priority := uniformSampler{}

	processes := make([]ProcessDescriptor, w.Count)
	for i := range processes {
		processes[i] = ProcessDescriptor{
			ID:        w.FirstID + i,
			BurstTime: burst.Sample(rng, w.MinBurst, w.MaxBurst),
			Priority:  priority.Sample(rng, 0, w.MaxPriority),
			StartInIO: rng.Float64() < w.IOFraction,
		}
	}
	return processes, nil
}
