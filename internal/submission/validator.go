package submission

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/code"
	"rollcall/internal/fingerprint"
	"rollcall/internal/ledger"
)

// Reason classifies a submit decision for callers and the ledger.
type Reason string

const (
	ReasonAccepted          Reason = "accepted"
	ReasonValidation        Reason = "validation"
	ReasonNotFound          Reason = "no_active_code"
	ReasonInvalidCode       Reason = "invalid_code"
	ReasonExpired           Reason = "expired"
	ReasonAlreadySubmitted  Reason = "already_submitted"
	ReasonProximityMismatch Reason = "proximity_mismatch"
)

// Decision is the outcome of one Submit call. Message is addressed to the
// student so the UI can say why, not just that it failed.
type Decision struct {
	Accepted bool
	Reason   Reason
	Message  string
	Code     code.AttendanceCode
}

// Evidence carries the proximity observations a student submits alongside
// the numeric code.
type Evidence struct {
	WifiFingerprint []fingerprint.Observation
	BluetoothUUID   string
}

// Validator decides submissions against the active-code table. A correct
// numeric code alone is never enough: four digits are guessable, so at least
// one proximity signal (fingerprint overlap or the broadcast token) must
// corroborate physical presence.
type Validator struct {
	codes     *code.Manager
	recorder  ledger.Recorder
	threshold float64
	now       func() time.Time
}

// NewValidator creates a validator. threshold is the minimum fraction of the
// stored fingerprint the student must have observed.
func NewValidator(codes *code.Manager, recorder ledger.Recorder, threshold float64) *Validator {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.25
	}
	return &Validator{
		codes:     codes,
		recorder:  recorder,
		threshold: threshold,
		now:       time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (v *Validator) SetClock(now func() time.Time) { v.now = now }

// Submit validates a student's code against the department's active code and
// appends a ledger record for every decision, accepted or not.
func (v *Validator) Submit(ctx context.Context, studentID, department, submitted string, ev Evidence) (Decision, error) {
	if studentID == "" || department == "" || submitted == "" {
		return Decision{Reason: ReasonValidation, Message: "student, department and code are required"}, nil
	}

	ac, err := v.codes.Match(department, submitted)
	if err != nil {
		return v.reject(ctx, studentID, department, ac, err)
	}

	// Fast-path duplicate check before the proximity work; the authoritative
	// check happens atomically in MarkSubmitted below.
	if v.codes.HasSubmitted(ac.ID, studentID) {
		return v.reject(ctx, studentID, department, ac, code.ErrAlreadySubmitted)
	}

	if !v.corroborated(ac, ev) {
		dec := Decision{
			Reason:  ReasonProximityMismatch,
			Message: "device does not appear to be in the room",
			Code:    ac,
		}
		v.record(ctx, studentID, department, ac.ID, dec)
		return dec, nil
	}

	if err := v.codes.MarkSubmitted(ac.ID, studentID); err != nil {
		return v.reject(ctx, studentID, department, ac, err)
	}

	dec := Decision{
		Accepted: true,
		Reason:   ReasonAccepted,
		Message:  "marked present",
		Code:     ac,
	}
	v.record(ctx, studentID, department, ac.ID, dec)
	return dec, nil
}

// corroborated checks the student's evidence against the stored code: a
// fingerprint overlap at or above the threshold, or sighting of the code's
// broadcast token, either one suffices.
func (v *Validator) corroborated(ac code.AttendanceCode, ev Evidence) bool {
	if ev.BluetoothUUID != "" && ev.BluetoothUUID == ac.BluetoothUUID {
		return true
	}
	return fingerprint.Similarity(ac.WifiFingerprint, ev.WifiFingerprint) >= v.threshold
}

func (v *Validator) reject(ctx context.Context, studentID, department string, ac code.AttendanceCode, cause error) (Decision, error) {
	dec := Decision{Code: ac}
	switch {
	case errors.Is(cause, code.ErrNotFound):
		dec.Reason = ReasonNotFound
		dec.Message = "no attendance session is running"
	case errors.Is(cause, code.ErrExpired):
		dec.Reason = ReasonExpired
		dec.Message = "the code has expired"
	case errors.Is(cause, code.ErrInvalidCode):
		dec.Reason = ReasonInvalidCode
		dec.Message = "wrong code"
	case errors.Is(cause, code.ErrAlreadySubmitted):
		dec.Reason = ReasonAlreadySubmitted
		dec.Message = "attendance already recorded for this session"
	case errors.Is(cause, code.ErrValidation):
		dec.Reason = ReasonValidation
		dec.Message = "student, department and code are required"
	default:
		return Decision{}, cause
	}
	v.record(ctx, studentID, department, ac.ID, dec)
	return dec, nil
}

// record appends the decision to the ledger. Failures are logged, not
// surfaced: the decision already stands and the ledger is advisory for the
// caller.
func (v *Validator) record(ctx context.Context, studentID, department, codeID string, dec Decision) {
	rec := ledger.Record{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		CodeID:      codeID,
		Department:  department,
		SubmittedAt: v.now().UTC(),
		Accepted:    dec.Accepted,
		Reason:      string(dec.Reason),
	}
	if err := v.recorder.Append(ctx, rec); err != nil {
		log.Printf("ledger append failed for student %s: %v", studentID, err)
	}
}
