package proximity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestScanHearsRunningAdvertisement(t *testing.T) {
	bus := NewBus()
	adv := NewBusAdvertiser(bus)

	token, err := adv.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if token == "" {
		t.Fatal("start returned empty token")
	}
	defer adv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	matched, err := NewBusScanner(bus).ScanFor(ctx, token)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !matched {
		t.Error("scanner missed a token that is on air")
	}
}

func TestScanTimesOutUnmatched(t *testing.T) {
	bus := NewBus()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	matched, err := NewBusScanner(bus).ScanFor(ctx, "never-broadcast")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if matched {
		t.Error("scanner matched a token nobody broadcast")
	}
}

func TestScanCatchesLateAdvertisement(t *testing.T) {
	bus := NewBus()
	adv := NewBusAdvertiser(bus)

	// The scanner starts before the broadcast; the token has to be agreed
	// out of band, so start once to learn it, stop, then re-broadcast late.
	token, err := adv.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	adv.Stop()

	done := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		matched, _ := NewBusScanner(bus).ScanFor(ctx, token)
		done <- matched
	}()

	time.Sleep(10 * time.Millisecond)
	bus.broadcast(token)

	if !<-done {
		t.Error("scanner missed a token that appeared during the window")
	}
}

func TestAdvertiserRotatesToken(t *testing.T) {
	bus := NewBus()
	adv := NewBusAdvertiser(bus)

	first, err := adv.Start(context.Background())
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, err := adv.Start(context.Background())
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if first == second {
		t.Error("restart reused the previous token")
	}

	// The old token must be off the air after a restart.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if matched, _ := NewBusScanner(bus).ScanFor(ctx, first); matched {
		t.Error("superseded token still audible")
	}
}

func TestHardwareUnavailable(t *testing.T) {
	bus := NewBus()

	adv := NewBusAdvertiser(bus)
	adv.Disable()
	if _, err := adv.Start(context.Background()); !errors.Is(err, ErrHardwareUnavailable) {
		t.Errorf("disabled advertiser: got %v, want ErrHardwareUnavailable", err)
	}

	sc := NewBusScanner(bus)
	sc.Disable()
	if _, err := sc.ScanFor(context.Background(), "x"); !errors.Is(err, ErrHardwareUnavailable) {
		t.Errorf("disabled scanner: got %v, want ErrHardwareUnavailable", err)
	}
}

func TestStopSilencesToken(t *testing.T) {
	bus := NewBus()
	adv := NewBusAdvertiser(bus)

	token, err := adv.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	adv.Stop()
	adv.Stop() // idempotent

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if matched, _ := NewBusScanner(bus).ScanFor(ctx, token); matched {
		t.Error("stopped token still audible")
	}
}
