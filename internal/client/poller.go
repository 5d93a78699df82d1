package client

import (
	"context"
	"log"
	"time"
)

// Poller periodically asks the API whether an active code exists for the
// student's cohort and notifies on changes. Transport errors on this
// read-only path are logged and retried on the next tick; they never stop
// the loop.
type Poller struct {
	api          *Client
	department   string
	academicYear string
	interval     time.Duration

	// OnActive fires when a session appears or its code changes.
	OnActive func(LatestCode)
	// OnInactive fires once when the session disappears (expired or closed).
	OnInactive func()
}

// NewPoller creates a poller for the cohort filter.
func NewPoller(api *Client, department, academicYear string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		api:          api,
		department:   department,
		academicYear: academicYear,
		interval:     interval,
	}
}

// Run polls until the context is cancelled. It ticks immediately on start so
// a device opening the app mid-session sees the prompt without waiting a full
// interval.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	lastCode := ""
	p.tick(ctx, &lastCode)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, &lastCode)
		}
	}
}

func (p *Poller) tick(ctx context.Context, lastCode *string) {
	latest, err := p.api.Latest(ctx, p.department, p.academicYear)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("poll failed for %s: %v", p.department, err)
		}
		return
	}
	switch {
	case latest.Active && latest.Code != *lastCode:
		*lastCode = latest.Code
		if p.OnActive != nil {
			p.OnActive(latest)
		}
	case !latest.Active && *lastCode != "":
		*lastCode = ""
		if p.OnInactive != nil {
			p.OnInactive()
		}
	}
}
