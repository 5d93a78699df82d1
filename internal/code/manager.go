package code

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/fingerprint"
)

var (
	// ErrValidation covers missing or empty required fields.
	ErrValidation = errors.New("missing required field")
	// ErrEmptyFingerprint rejects generation without proximity evidence; a
	// code with no fingerprint can never be corroborated.
	ErrEmptyFingerprint = errors.New("empty wifi fingerprint")
	// ErrNotFound means no code matches the cohort filter.
	ErrNotFound = errors.New("no active code")
	// ErrExpired means the code's validity window has elapsed.
	ErrExpired = errors.New("code expired")
	// ErrInvalidCode means an active code exists but the submitted digits do
	// not match it.
	ErrInvalidCode = errors.New("code mismatch")
	// ErrAlreadySubmitted means the student already submitted for this code.
	ErrAlreadySubmitted = errors.New("already submitted")
)

type entry struct {
	code        AttendanceCode
	state       State
	submissions map[string]struct{}
}

// Manager owns the active-code table and the code lifecycle: generation,
// lazy expiry, and explicit closure. All mutation goes through its mutex,
// which is what makes the check-then-add on submissions atomic.
type Manager struct {
	ttl    time.Duration
	maxAPs int

	mu      sync.Mutex
	entries map[string]*entry // keyed by code ID

	now func() time.Time
}

// NewManager creates a manager issuing codes valid for ttl and storing at
// most maxAPs fingerprint entries per code.
func NewManager(ttl time.Duration, maxAPs int) *Manager {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if maxAPs <= 0 {
		maxAPs = 8
	}
	return &Manager{
		ttl:     ttl,
		maxAPs:  maxAPs,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// TTL returns the configured validity window.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Generate issues a fresh code for the cohort. A prior active code for the
// same cohort tuple is superseded: it is closed in the same critical section
// so at most one code per tuple is ever active. The fingerprint must contain
// at least one real observation.
func (m *Manager) Generate(teacherID string, cohort Cohort, fp []fingerprint.Observation, bluetoothUUID string) (AttendanceCode, error) {
	if teacherID == "" || !cohort.Complete() {
		return AttendanceCode{}, ErrValidation
	}
	if bluetoothUUID == "" {
		return AttendanceCode{}, fmt.Errorf("%w: bluetooth uuid", ErrValidation)
	}
	ranked := fingerprint.Rank(fp, m.maxAPs)
	if !hasRealObservation(ranked) {
		return AttendanceCode{}, ErrEmptyFingerprint
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	// Supersede any still-active code for the same tuple.
	for _, e := range m.entries {
		if e.code.Cohort == cohort && m.effectiveState(e, now) == StateActive {
			e.state = StateClosed
		}
	}

	digits, err := m.freshDigits(cohort.Department, now)
	if err != nil {
		return AttendanceCode{}, err
	}

	ac := AttendanceCode{
		ID:              uuid.NewString(),
		Code:            digits,
		TeacherID:       teacherID,
		Cohort:          cohort,
		WifiFingerprint: ranked,
		BluetoothUUID:   bluetoothUUID,
		GeneratedAt:     now,
		ExpiresAt:       now.Add(m.ttl),
	}
	m.entries[ac.ID] = &entry{
		code:        ac,
		state:       StateActive,
		submissions: make(map[string]struct{}),
	}
	return ac, nil
}

// GetActive returns the most recently generated live code for the department,
// optionally narrowed by academic year. Expired and closed codes are never
// returned, whatever their stored state says.
func (m *Manager) GetActive(department, academicYear string) (AttendanceCode, bool) {
	if department == "" {
		return AttendanceCode{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	var best *entry
	for _, e := range m.entries {
		if e.code.Department != department {
			continue
		}
		if academicYear != "" && e.code.AcademicYear != academicYear {
			continue
		}
		if m.effectiveState(e, now) != StateActive {
			continue
		}
		if best == nil || e.code.GeneratedAt.After(best.code.GeneratedAt) {
			best = e
		}
	}
	if best == nil {
		return AttendanceCode{}, false
	}
	return best.code, true
}

// Close transitions the teacher's active code(s) for the tuple to closed.
// Closing an already closed or expired code is a no-op success; ErrNotFound
// is returned only when no code for the tuple was ever generated.
func (m *Manager) Close(teacherID, department, subject, className string) error {
	if teacherID == "" || department == "" || subject == "" || className == "" {
		return ErrValidation
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, e := range m.entries {
		c := e.code
		if c.TeacherID != teacherID || c.Department != department || c.Subject != subject || c.ClassName != className {
			continue
		}
		found = true
		if e.state == StateActive {
			e.state = StateClosed
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// Match resolves a submitted code string within a department. It returns the
// live code on an exact match, ErrExpired when the digits match a code whose
// window elapsed, ErrInvalidCode when a live code exists but the digits are
// wrong, and ErrNotFound otherwise (including after a close).
func (m *Manager) Match(department, submitted string) (AttendanceCode, error) {
	if department == "" || submitted == "" {
		return AttendanceCode{}, ErrValidation
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	liveSeen := false
	expiredMatch := false
	for _, e := range m.entries {
		if e.code.Department != department {
			continue
		}
		switch m.effectiveState(e, now) {
		case StateActive:
			liveSeen = true
			if e.code.Code == submitted {
				return e.code, nil
			}
		case StateExpired:
			if e.code.Code == submitted {
				expiredMatch = true
			}
		}
	}
	if expiredMatch {
		return AttendanceCode{}, ErrExpired
	}
	if liveSeen {
		return AttendanceCode{}, ErrInvalidCode
	}
	return AttendanceCode{}, ErrNotFound
}

// MarkSubmitted records that the student submitted for the code. The check
// and the insert happen under the table mutex, so concurrent duplicates from
// the same student resolve to exactly one success. The code must still be
// live at the time of the mark.
func (m *Manager) MarkSubmitted(codeID, studentID string) error {
	if codeID == "" || studentID == "" {
		return ErrValidation
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[codeID]
	if !ok {
		return ErrNotFound
	}
	switch m.effectiveState(e, m.now()) {
	case StateClosed:
		return ErrNotFound
	case StateExpired:
		return ErrExpired
	}
	if _, dup := e.submissions[studentID]; dup {
		return ErrAlreadySubmitted
	}
	e.submissions[studentID] = struct{}{}
	return nil
}

// HasSubmitted reports whether the student already submitted for the code.
func (m *Manager) HasSubmitted(codeID, studentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[codeID]
	if !ok {
		return false
	}
	_, dup := e.submissions[studentID]
	return dup
}

// SubmissionCount returns how many students submitted for the code.
func (m *Manager) SubmissionCount(codeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[codeID]
	if !ok {
		return 0
	}
	return len(e.submissions)
}

// ActiveCount returns the number of currently live codes.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for _, e := range m.entries {
		if m.effectiveState(e, now) == StateActive {
			n++
		}
	}
	return n
}

// Sweep flips stored state on expired entries and drops terminal entries
// older than retain. Correctness never depends on it; it only bounds table
// growth.
func (m *Manager) Sweep(retain time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	removed := 0
	for id, e := range m.entries {
		state := m.effectiveState(e, now)
		e.state = state
		if state == StateActive {
			continue
		}
		if now.Sub(e.code.ExpiresAt) > retain {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// effectiveState applies lazy expiry on top of the stored state. Callers must
// hold the mutex.
func (m *Manager) effectiveState(e *entry, now time.Time) State {
	if e.state == StateClosed {
		return StateClosed
	}
	if e.code.ExpiredAt(now) {
		return StateExpired
	}
	return e.state
}

// freshDigits draws a random 4-digit code distinct from every live code in
// the department, so a submitted string resolves unambiguously. Callers must
// hold the mutex.
func (m *Manager) freshDigits(department string, now time.Time) (string, error) {
	inUse := make(map[string]struct{})
	for _, e := range m.entries {
		if e.code.Department == department && m.effectiveState(e, now) == StateActive {
			inUse[e.code.Code] = struct{}{}
		}
	}
	for attempt := 0; attempt < 100; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10000))
		if err != nil {
			return "", err
		}
		digits := fmt.Sprintf("%04d", n.Int64())
		if _, taken := inUse[digits]; !taken {
			return digits, nil
		}
	}
	return "", errors.New("code space exhausted for department")
}

func hasRealObservation(obs []fingerprint.Observation) bool {
	for _, o := range obs {
		if !o.IsUnavailable() {
			return true
		}
	}
	return false
}
