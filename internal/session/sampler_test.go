package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func fixedProbe(d time.Duration) Probe {
	return ProbeFunc(func(context.Context) (time.Duration, error) { return d, nil })
}

func TestSampler_Sample(t *testing.T) {
	fc := testingclock.NewFakeClock(epoch)
	sp := &Sampler{Clock: fc, Probe: fixedProbe(80 * time.Millisecond), Faults: NewScheduledFaults(FaultDegraded)}

	s, fault, err := sp.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if s.Tier != TierFair || s.LatencyMs() != 80 {
		t.Errorf("sample = %+v, want 80ms fair", s)
	}
	if !s.At.Equal(epoch) {
		t.Errorf("sample.At = %s, want %s", s.At, epoch)
	}
	if fault != FaultDegraded {
		t.Errorf("fault = %v, want degraded", fault)
	}
}

func TestSampler_ProbeErrorIsLost(t *testing.T) {
	fc := testingclock.NewFakeClock(epoch)
	sp := &Sampler{
		Clock: fc,
		Probe: ProbeFunc(func(context.Context) (time.Duration, error) {
			return 0, errors.New("unreachable")
		}),
		Faults: FaultFunc(func(Sample) Fault { t.Error("policy consulted after probe failure"); return FaultNone }),
	}

	s, fault, err := sp.Sample(context.Background())
	if err == nil || s != nil {
		t.Fatalf("Sample = %v, %v; want nil sample and error", s, err)
	}
	if fault != FaultLost {
		t.Errorf("fault = %v, want lost", fault)
	}
}

func TestSampler_RunTicks(t *testing.T) {
	fc := testingclock.NewFakeClock(epoch)
	sp := &Sampler{Clock: fc, Interval: 10 * time.Second, Probe: fixedProbe(10 * time.Millisecond)}

	var mu sync.Mutex
	var got []Sample
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sp.Run(ctx, func(s *Sample, _ Fault, _ error) {
			mu.Lock()
			got = append(got, *s)
			mu.Unlock()
		})
	}()

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(10 * time.Second)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done
	if got[0].Tier != TierGood {
		t.Errorf("tier = %q, want good", got[0].Tier)
	}
}

func TestSyntheticProbe_Range(t *testing.T) {
	p := NewSyntheticProbe()
	for i := 0; i < 200; i++ {
		d, err := p.Probe(context.Background())
		if err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if d < p.Min || d >= p.Max {
			t.Fatalf("latency %s outside [%s, %s)", d, p.Min, p.Max)
		}
	}
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	p := NewTCPProbe(Endpoint{Host: "127.0.0.1", Port: addr.Port}, time.Second)
	if _, err := p.Probe(context.Background()); err != nil {
		t.Errorf("probe against live listener: %v", err)
	}

	ln.Close()
	if _, err := p.Probe(context.Background()); err == nil {
		t.Error("probe against closed listener succeeded")
	}
}
