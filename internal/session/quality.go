package session

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Tier is the connection quality classification of a latency sample.
type Tier string

const (
	TierGood Tier = "good"
	TierFair Tier = "fair"
	TierPoor Tier = "poor"
)

// Latency boundaries between tiers.
const (
	FairLatency = 50 * time.Millisecond
	PoorLatency = 120 * time.Millisecond
)

// Classify maps a latency onto a quality tier.
func Classify(latency time.Duration) Tier {
	switch {
	case latency < FairLatency:
		return TierGood
	case latency < PoorLatency:
		return TierFair
	default:
		return TierPoor
	}
}

// Sample is one connection quality measurement.
type Sample struct {
	Latency time.Duration `json:"-"`
	Tier    Tier          `json:"quality_tier"`
	At      time.Time     `json:"at"`
}

// NewSample builds a classified sample. Negative latencies are clamped to 0.
func NewSample(latency time.Duration, at time.Time) Sample {
	if latency < 0 {
		latency = 0
	}
	return Sample{Latency: latency, Tier: Classify(latency), At: at}
}

// LatencyMs returns the latency in whole milliseconds.
func (s Sample) LatencyMs() int64 {
	return s.Latency.Milliseconds()
}

// Fault is a connection fault signal produced alongside a sample.
type Fault int

const (
	FaultNone Fault = iota
	FaultDegraded
	FaultLost
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultDegraded:
		return "degraded"
	case FaultLost:
		return "lost"
	default:
		return "unknown"
	}
}

// FaultPolicy decides which fault signal, if any, accompanies a sample.
// The synthetic transport draws faults at random; a real transport derives
// them from what it measured. Either way the session applies the same
// guards: faults only change an active session.
type FaultPolicy interface {
	Decide(sample Sample) Fault
}

// FaultFunc adapts a function to FaultPolicy.
type FaultFunc func(Sample) Fault

func (f FaultFunc) Decide(s Sample) Fault { return f(s) }

// Default fault injection probabilities.
const (
	DefaultDegradeProbability = 0.05
	DefaultLossProbability    = 0.02
)

// RandomFaults injects faults with fixed probabilities per sample. Loss is
// drawn first and takes precedence, so at most one fault fires per sample.
type RandomFaults struct {
	Degrade float64
	Loss    float64
	// Float returns a value in [0,1). Nil uses math/rand/v2.
	Float func() float64
}

func (p RandomFaults) Decide(Sample) Fault {
	draw := p.Float
	if draw == nil {
		draw = rand.Float64
	}
	lost := draw() < p.Loss
	degraded := draw() < p.Degrade
	switch {
	case lost:
		return FaultLost
	case degraded:
		return FaultDegraded
	}
	return FaultNone
}

// ScheduledFaults replays a fixed fault sequence, one entry per sample, and
// returns FaultNone once the sequence is exhausted.
type ScheduledFaults struct {
	mu     sync.Mutex
	faults []Fault
}

// NewScheduledFaults creates a policy that returns faults in order.
func NewScheduledFaults(faults ...Fault) *ScheduledFaults {
	return &ScheduledFaults{faults: append([]Fault(nil), faults...)}
}

func (p *ScheduledFaults) Decide(Sample) Fault {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.faults) == 0 {
		return FaultNone
	}
	f := p.faults[0]
	p.faults = p.faults[1:]
	return f
}

// ThresholdFaults derives faults from measured quality: a poor sample
// degrades the session. Probe failures are reported as FaultLost by the
// sampler before the policy is consulted.
type ThresholdFaults struct{}

func (ThresholdFaults) Decide(s Sample) Fault {
	if s.Tier == TierPoor {
		return FaultDegraded
	}
	return FaultNone
}
