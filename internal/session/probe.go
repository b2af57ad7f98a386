package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"time"
)

// Probe measures the round-trip latency of a session's transport.
type Probe interface {
	Probe(ctx context.Context) (time.Duration, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (time.Duration, error)

func (f ProbeFunc) Probe(ctx context.Context) (time.Duration, error) { return f(ctx) }

// SyntheticProbe estimates latency when no real transport is attached. It
// returns a uniformly distributed value in [Min, Max).
type SyntheticProbe struct {
	Min time.Duration
	Max time.Duration
	// Int64N returns a value in [0,n). Nil uses math/rand/v2.
	Int64N func(n int64) int64
}

// NewSyntheticProbe returns a probe spanning all three quality tiers.
func NewSyntheticProbe() *SyntheticProbe {
	return &SyntheticProbe{Min: 15 * time.Millisecond, Max: 165 * time.Millisecond}
}

func (p *SyntheticProbe) Probe(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	span := int64(p.Max - p.Min)
	if span <= 0 {
		return p.Min, nil
	}
	draw := p.Int64N
	if draw == nil {
		draw = rand.Int64N
	}
	return p.Min + time.Duration(draw(span)), nil
}

// defaultProbeTimeout bounds a single TCP probe.
const defaultProbeTimeout = 5 * time.Second

// TCPProbe measures how long a TCP connect to the session endpoint takes.
// A failed dial is a lost connection.
type TCPProbe struct {
	Addr    string
	Timeout time.Duration
	Dialer  *net.Dialer
}

// NewTCPProbe creates a probe against the given endpoint.
func NewTCPProbe(ep Endpoint, timeout time.Duration) *TCPProbe {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &TCPProbe{Addr: ep.Address(), Timeout: timeout, Dialer: &net.Dialer{}}
}

func (p *TCPProbe) Probe(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	d := p.Dialer
	if d == nil {
		d = &net.Dialer{}
	}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return 0, fmt.Errorf("tcp probe %s: %w", p.Addr, err)
	}
	elapsed := time.Since(start)
	conn.Close()
	return elapsed, nil
}
