package proximity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Bus is an in-process radio shared by fake advertisers and scanners. Tokens
// are visible to every scanner on the bus while their advertiser is running,
// which is close enough to BLE advertisement semantics for tests and the
// device simulator.
type Bus struct {
	mu      sync.Mutex
	active  map[string]struct{}
	waiters map[string][]chan struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		active:  make(map[string]struct{}),
		waiters: make(map[string][]chan struct{}),
	}
}

func (b *Bus) broadcast(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active[token] = struct{}{}
	for _, ch := range b.waiters[token] {
		close(ch)
	}
	delete(b.waiters, token)
}

func (b *Bus) silence(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, token)
}

// hearing returns a closed channel if the token is already on air, otherwise
// a channel closed when it appears.
func (b *Bus) hearing(token string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan struct{})
	if _, on := b.active[token]; on {
		close(ch)
		return ch
	}
	b.waiters[token] = append(b.waiters[token], ch)
	return ch
}

// BusAdvertiser is a fake Advertiser broadcasting on a Bus.
type BusAdvertiser struct {
	bus *Bus

	mu       sync.Mutex
	token    string
	disabled bool
}

// NewBusAdvertiser creates an advertiser bound to bus.
func NewBusAdvertiser(bus *Bus) *BusAdvertiser {
	return &BusAdvertiser{bus: bus}
}

// Disable makes Start fail, simulating missing hardware or permission.
func (a *BusAdvertiser) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disabled = true
}

// Start begins broadcasting a fresh random token.
func (a *BusAdvertiser) Start(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disabled {
		return "", ErrHardwareUnavailable
	}
	if a.token != "" {
		a.bus.silence(a.token)
	}
	a.token = uuid.NewString()
	a.bus.broadcast(a.token)
	return a.token, nil
}

// Stop ends the broadcast.
func (a *BusAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" {
		a.bus.silence(a.token)
		a.token = ""
	}
}

// BusScanner is a fake Scanner listening on a Bus.
type BusScanner struct {
	bus      *Bus
	disabled bool
}

// NewBusScanner creates a scanner bound to bus.
func NewBusScanner(bus *Bus) *BusScanner {
	return &BusScanner{bus: bus}
}

// Disable makes ScanFor report unavailable hardware.
func (s *BusScanner) Disable() { s.disabled = true }

// ScanFor waits for the expected token until the context expires.
func (s *BusScanner) ScanFor(ctx context.Context, expectedToken string) (bool, error) {
	if s.disabled {
		return false, ErrHardwareUnavailable
	}
	select {
	case <-s.bus.hearing(expectedToken):
		return true, nil
	case <-ctx.Done():
		return false, nil
	}
}
