package session

import (
	"context"
	"log"
	"time"

	"k8s.io/utils/clock"
)

// DefaultSamplerInterval is how often connection quality is measured.
const DefaultSamplerInterval = 10 * time.Second

// Sampler periodically measures connection quality and decides whether the
// measurement carries a fault signal.
type Sampler struct {
	Clock    clock.WithTicker
	Interval time.Duration
	Probe    Probe
	Faults   FaultPolicy
}

// Report receives one sampler result. sample is nil when the probe failed.
type Report func(sample *Sample, fault Fault, err error)

// Sample takes one measurement. A probe error yields FaultLost and no sample.
func (sp *Sampler) Sample(ctx context.Context) (*Sample, Fault, error) {
	latency, err := sp.Probe.Probe(ctx)
	if err != nil {
		return nil, FaultLost, err
	}
	s := NewSample(latency, sp.Clock.Now())
	fault := FaultNone
	if sp.Faults != nil {
		fault = sp.Faults.Decide(s)
	}
	return &s, fault, nil
}

// Run samples on every tick until ctx is cancelled.
func (sp *Sampler) Run(ctx context.Context, report Report) {
	interval := sp.Interval
	if interval <= 0 {
		interval = DefaultSamplerInterval
	}
	ticker := sp.Clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			sample, fault, err := sp.Sample(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Printf("[sampler] probe failed: %v", err)
			}
			report(sample, fault, err)
		}
	}
}
