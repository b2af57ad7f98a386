package session

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    Tier
	}{
		{0, TierGood},
		{49 * time.Millisecond, TierGood},
		{50 * time.Millisecond, TierFair},
		{119 * time.Millisecond, TierFair},
		{120 * time.Millisecond, TierPoor},
		{2 * time.Second, TierPoor},
	}
	for _, tt := range tests {
		if got := Classify(tt.latency); got != tt.want {
			t.Errorf("Classify(%s) = %q, want %q", tt.latency, got, tt.want)
		}
	}
}

func TestNewSample_ClampsNegative(t *testing.T) {
	s := NewSample(-5*time.Millisecond, epoch)
	if s.Latency != 0 || s.Tier != TierGood {
		t.Errorf("NewSample(-5ms) = %+v, want zero latency, good tier", s)
	}
}

// seq returns a Float func that yields the given values in order.
func seq(vals ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := vals[i%len(vals)]
		i++
		return v
	}
}

func TestRandomFaults_Decide(t *testing.T) {
	tests := []struct {
		name  string
		draws []float64 // loss draw, degrade draw
		want  Fault
	}{
		{"neither", []float64{0.5, 0.5}, FaultNone},
		{"degrade only", []float64{0.5, 0.01}, FaultDegraded},
		{"loss only", []float64{0.01, 0.5}, FaultLost},
		{"both, loss wins", []float64{0.01, 0.01}, FaultLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := RandomFaults{Degrade: DefaultDegradeProbability, Loss: DefaultLossProbability, Float: seq(tt.draws...)}
			if got := p.Decide(Sample{}); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRandomFaults_ZeroProbabilityNeverFires(t *testing.T) {
	p := RandomFaults{}
	for i := 0; i < 1000; i++ {
		if f := p.Decide(Sample{}); f != FaultNone {
			t.Fatalf("Decide() = %v with zero probabilities", f)
		}
	}
}

func TestScheduledFaults(t *testing.T) {
	p := NewScheduledFaults(FaultDegraded, FaultNone, FaultLost)
	want := []Fault{FaultDegraded, FaultNone, FaultLost, FaultNone, FaultNone}
	for i, w := range want {
		if got := p.Decide(Sample{}); got != w {
			t.Errorf("Decide() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestThresholdFaults(t *testing.T) {
	var p ThresholdFaults
	if got := p.Decide(NewSample(200*time.Millisecond, epoch)); got != FaultDegraded {
		t.Errorf("poor sample: got %v, want degraded", got)
	}
	if got := p.Decide(NewSample(80*time.Millisecond, epoch)); got != FaultNone {
		t.Errorf("fair sample: got %v, want none", got)
	}
}
