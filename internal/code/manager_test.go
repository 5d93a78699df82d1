package code

import (
	"errors"
	"sync"
	"testing"
	"time"

	"rollcall/internal/fingerprint"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func labFingerprint() []fingerprint.Observation {
	return []fingerprint.Observation{
		{SSID: "Lab-AP", BSSID: "AA:BB:CC:00:11:22", SignalLevel: -40},
		{SSID: "Lab-AP-5G", BSSID: "AA:BB:CC:00:11:23", SignalLevel: -48},
	}
}

func testCohort() Cohort {
	return Cohort{Department: "CSE", Subject: "DS", ClassName: "3rd Year", AcademicYear: "2026"}
}

func newTestManager(ttl time.Duration) (*Manager, *fakeClock) {
	m := NewManager(ttl, 8)
	clock := newFakeClock()
	m.SetClock(clock.Now)
	return m, clock
}

func TestGenerateTTLExact(t *testing.T) {
	m, clock := newTestManager(120 * time.Second)

	ac, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := ac.ExpiresAt.Sub(ac.GeneratedAt); got != 120*time.Second {
		t.Errorf("expiresAt-generatedAt = %s, want 120s", got)
	}
	if !ac.GeneratedAt.Equal(clock.Now()) {
		t.Errorf("generatedAt = %s, want clock now %s", ac.GeneratedAt, clock.Now())
	}
	if len(ac.Code) != 4 {
		t.Errorf("code %q is not 4 digits", ac.Code)
	}
}

func TestGenerateEmptyFingerprintRejected(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	if _, err := m.Generate("T1", testCohort(), nil, "uuid-1"); !errors.Is(err, ErrEmptyFingerprint) {
		t.Errorf("empty fingerprint: got %v, want ErrEmptyFingerprint", err)
	}

	// A scan that only produced the cannot-scan placeholder is just as
	// unverifiable as no scan at all.
	placeholder := []fingerprint.Observation{fingerprint.Unavailable()}
	if _, err := m.Generate("T1", testCohort(), placeholder, "uuid-1"); !errors.Is(err, ErrEmptyFingerprint) {
		t.Errorf("placeholder-only fingerprint: got %v, want ErrEmptyFingerprint", err)
	}
}

func TestGenerateValidation(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	cohort := testCohort()
	cohort.Subject = ""
	if _, err := m.Generate("T1", cohort, labFingerprint(), "uuid-1"); !errors.Is(err, ErrValidation) {
		t.Errorf("missing subject: got %v, want ErrValidation", err)
	}
	if _, err := m.Generate("", testCohort(), labFingerprint(), "uuid-1"); !errors.Is(err, ErrValidation) {
		t.Errorf("missing teacher: got %v, want ErrValidation", err)
	}
	if _, err := m.Generate("T1", testCohort(), labFingerprint(), ""); !errors.Is(err, ErrValidation) {
		t.Errorf("missing bluetooth uuid: got %v, want ErrValidation", err)
	}
}

func TestGenerateSupersedesSameCohort(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	first, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1")
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	second, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-2")
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}

	if m.ActiveCount() != 1 {
		t.Errorf("active count = %d, want 1 (one active per cohort tuple)", m.ActiveCount())
	}
	got, ok := m.GetActive("CSE", "")
	if !ok || got.ID != second.ID {
		t.Errorf("GetActive = %+v ok=%v, want the superseding code %s", got, ok, second.ID)
	}
	if err := m.MarkSubmitted(first.ID, "S1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("submit on superseded code: got %v, want ErrNotFound", err)
	}
}

func TestGenerateIndependentCohortsCoexist(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	other := testCohort()
	other.Subject = "OS"
	if _, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := m.Generate("T2", other, labFingerprint(), "uuid-2"); err != nil {
		t.Fatalf("generate other cohort: %v", err)
	}
	if m.ActiveCount() != 2 {
		t.Errorf("active count = %d, want 2", m.ActiveCount())
	}
}

func TestGetActiveNeverReturnsExpired(t *testing.T) {
	m, clock := newTestManager(time.Minute)

	if _, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, ok := m.GetActive("CSE", ""); !ok {
		t.Fatal("expected an active code before expiry")
	}

	clock.Advance(time.Minute) // now == expiresAt is already expired
	if got, ok := m.GetActive("CSE", ""); ok {
		t.Errorf("GetActive after expiry returned %+v", got)
	}
}

func TestGetActiveNeverReturnsClosed(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	if _, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := m.Close("T1", "CSE", "DS", "3rd Year"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got, ok := m.GetActive("CSE", ""); ok {
		t.Errorf("GetActive after close returned %+v", got)
	}
}

func TestGetActiveAcademicYearFilter(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	if _, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, ok := m.GetActive("CSE", "2026"); !ok {
		t.Error("matching year filter should find the code")
	}
	if _, ok := m.GetActive("CSE", "2025"); ok {
		t.Error("mismatched year filter should find nothing")
	}
	if _, ok := m.GetActive("ECE", ""); ok {
		t.Error("other department should find nothing")
	}
}

func TestCloseIdempotent(t *testing.T) {
	m, clock := newTestManager(time.Minute)

	if _, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := m.Close("T1", "CSE", "DS", "3rd Year"); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := m.Close("T1", "CSE", "DS", "3rd Year"); err != nil {
		t.Errorf("second close should be a no-op success, got %v", err)
	}

	clock.Advance(2 * time.Minute)
	if err := m.Close("T1", "CSE", "DS", "3rd Year"); err != nil {
		t.Errorf("close after expiry should be a no-op success, got %v", err)
	}
}

func TestCloseUnknownTuple(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	if err := m.Close("T1", "CSE", "DS", "3rd Year"); !errors.Is(err, ErrNotFound) {
		t.Errorf("close with no code ever generated: got %v, want ErrNotFound", err)
	}
}

func TestMatchSemantics(t *testing.T) {
	m, clock := newTestManager(time.Minute)

	ac, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if got, err := m.Match("CSE", ac.Code); err != nil || got.ID != ac.ID {
		t.Errorf("Match exact = %+v, %v", got, err)
	}
	wrong := "0000"
	if wrong == ac.Code {
		wrong = "0001"
	}
	if _, err := m.Match("CSE", wrong); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("Match wrong digits: got %v, want ErrInvalidCode", err)
	}
	if _, err := m.Match("ECE", ac.Code); !errors.Is(err, ErrNotFound) {
		t.Errorf("Match other department: got %v, want ErrNotFound", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := m.Match("CSE", ac.Code); !errors.Is(err, ErrExpired) {
		t.Errorf("Match after expiry: got %v, want ErrExpired", err)
	}
}

func TestMatchAfterClose(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	ac, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := m.Close("T1", "CSE", "DS", "3rd Year"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := m.Match("CSE", ac.Code); !errors.Is(err, ErrNotFound) {
		t.Errorf("Match after close: got %v, want ErrNotFound", err)
	}
}

func TestMarkSubmittedOnce(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	ac, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := m.MarkSubmitted(ac.ID, "S1"); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := m.MarkSubmitted(ac.ID, "S1"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("second mark: got %v, want ErrAlreadySubmitted", err)
	}
	if err := m.MarkSubmitted(ac.ID, "S2"); err != nil {
		t.Errorf("different student: %v", err)
	}
	if n := m.SubmissionCount(ac.ID); n != 2 {
		t.Errorf("submission count = %d, want 2", n)
	}
}

func TestMarkSubmittedConcurrentDuplicates(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	ac, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	successes := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.MarkSubmitted(ac.ID, "S1"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	if got := len(successes); got != 1 {
		t.Errorf("%d concurrent duplicate marks succeeded, want exactly 1", got)
	}
}

func TestMarkSubmittedExpired(t *testing.T) {
	m, clock := newTestManager(time.Minute)

	ac, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if err := m.MarkSubmitted(ac.ID, "S1"); !errors.Is(err, ErrExpired) {
		t.Errorf("mark after expiry: got %v, want ErrExpired", err)
	}
}

func TestSweepDropsOldTerminalEntries(t *testing.T) {
	m, clock := newTestManager(time.Minute)

	ac, err := m.Generate("T1", testCohort(), labFingerprint(), "uuid-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// Still within the retain window: stored state flips but nothing is
	// dropped yet.
	clock.Advance(2 * time.Minute)
	if removed := m.Sweep(time.Hour); removed != 0 {
		t.Errorf("sweep removed %d entries too early", removed)
	}

	clock.Advance(2 * time.Hour)
	if removed := m.Sweep(time.Hour); removed != 1 {
		t.Errorf("sweep removed %d entries, want 1", removed)
	}
	if _, err := m.Match("CSE", ac.Code); !errors.Is(err, ErrNotFound) {
		t.Errorf("match after sweep: got %v, want ErrNotFound", err)
	}
}
