package fingerprint

import (
	"context"
	"sync"
)

// Scripted is a Collector returning a configurable environment, used by tests
// and the device simulator in place of a real radio.
type Scripted struct {
	mu          sync.Mutex
	environment []Observation
	denied      bool
}

// NewScripted creates a collector that reports the given environment.
func NewScripted(env []Observation) *Scripted {
	return &Scripted{environment: env}
}

// SetEnvironment replaces the visible networks.
func (s *Scripted) SetEnvironment(env []Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.environment = env
}

// DenyScans makes subsequent scans behave as if the platform refused
// permission.
func (s *Scripted) DenyScans(denied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = denied
}

// Collect returns the scripted environment ranked and truncated. When scans
// are denied it returns the single unavailable placeholder rather than an
// error, matching how a device-side collector reports missing permissions.
func (s *Scripted) Collect(ctx context.Context, maxResults int) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return []Observation{Unavailable()}, nil
	}
	return Rank(s.environment, maxResults), nil
}
