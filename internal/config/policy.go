package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy overrides the session-shaping settings from a YAML file. Unset
// fields leave the environment value alone.
//
//	session:
//	  duration: 2h
//	  extend: 30m
//	  max_duration: 8h
//	sampler:
//	  interval: 5s
//	  degrade_probability: 0
//	  loss_probability: 0
//	views:
//	  terminal_log_capacity: 1000
type Policy struct {
	Session struct {
		Duration    *Duration `yaml:"duration"`
		Extend      *Duration `yaml:"extend"`
		MaxDuration *Duration `yaml:"max_duration"`
	} `yaml:"session"`
	Sampler struct {
		Interval           *Duration `yaml:"interval"`
		DegradeProbability *float64  `yaml:"degrade_probability"`
		LossProbability    *float64  `yaml:"loss_probability"`
		Probe              *string   `yaml:"probe"`
	} `yaml:"sampler"`
	Reconnect struct {
		AutoDelay   *Duration `yaml:"auto_delay"`
		ManualDelay *Duration `yaml:"manual_delay"`
	} `yaml:"reconnect"`
	Views struct {
		TerminalLogCapacity    *int     `yaml:"terminal_log_capacity"`
		FramebufferLogCapacity *int     `yaml:"framebuffer_log_capacity"`
		OutputProbability      *float64 `yaml:"output_probability"`
	} `yaml:"views"`
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LoadPolicy reads and parses a policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses policy YAML. Unknown keys are rejected.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return &p, nil
}

// Apply copies the set fields onto s.
func (p *Policy) Apply(s *Settings) {
	setDuration(&s.SessionDuration, p.Session.Duration)
	setDuration(&s.ExtendDuration, p.Session.Extend)
	setDuration(&s.MaxDuration, p.Session.MaxDuration)
	setDuration(&s.SamplerInterval, p.Sampler.Interval)
	setDuration(&s.AutoReconnectDelay, p.Reconnect.AutoDelay)
	setDuration(&s.ManualReconnectDelay, p.Reconnect.ManualDelay)
	setValue(&s.DegradeProbability, p.Sampler.DegradeProbability)
	setValue(&s.LossProbability, p.Sampler.LossProbability)
	setValue(&s.ProbeMode, p.Sampler.Probe)
	setValue(&s.TerminalLogCapacity, p.Views.TerminalLogCapacity)
	setValue(&s.FramebufferLogCapacity, p.Views.FramebufferLogCapacity)
	setValue(&s.OutputProbability, p.Views.OutputProbability)
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = time.Duration(*v)
	}
}

func setValue[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks the session-shaping settings for consistency.
func (s Settings) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"session duration":       s.SessionDuration,
		"extend duration":        s.ExtendDuration,
		"max duration":           s.MaxDuration,
		"clock tick":             s.ClockTick,
		"sampler interval":       s.SamplerInterval,
		"auto reconnect delay":   s.AutoReconnectDelay,
		"manual reconnect delay": s.ManualReconnectDelay,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	for name, p := range map[string]float64{
		"degrade probability": s.DegradeProbability,
		"loss probability":    s.LossProbability,
		"output probability":  s.OutputProbability,
	} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %g", name, p))
		}
	}
	if s.ExtendDuration > s.MaxDuration {
		errs = append(errs, fmt.Errorf("extend duration %s exceeds max duration %s", s.ExtendDuration, s.MaxDuration))
	}
	if s.SessionDuration > s.MaxDuration {
		errs = append(errs, fmt.Errorf("session duration %s exceeds max duration %s", s.SessionDuration, s.MaxDuration))
	}
	if s.TerminalLogCapacity < 1 || s.FramebufferLogCapacity < 1 {
		errs = append(errs, errors.New("log capacities must be at least 1"))
	}
	switch s.ProbeMode {
	case "synthetic", "tcp":
	default:
		errs = append(errs, fmt.Errorf("unknown probe mode %q", s.ProbeMode))
	}
	return errors.Join(errs...)
}
