package code

import (
	"time"

	"rollcall/internal/fingerprint"
)

// State is the lifecycle state of an attendance code.
type State string

const (
	// StateActive means the code accepts submissions until it expires or is
	// closed.
	StateActive State = "active"
	// StateClosed means the teacher ended the session early. Terminal.
	StateClosed State = "closed"
	// StateExpired means the validity window elapsed. Terminal. Expiry is
	// computed on read; the stored state may lag behind the clock.
	StateExpired State = "expired"
)

// Cohort identifies the class session a code belongs to.
type Cohort struct {
	Department   string
	Subject      string
	ClassName    string
	AcademicYear string
}

// Complete reports whether every scoping field is set.
func (c Cohort) Complete() bool {
	return c.Department != "" && c.Subject != "" && c.ClassName != "" && c.AcademicYear != ""
}

// AttendanceCode is a short-lived numeric code bound to the issuing device's
// radio environment at generation time.
type AttendanceCode struct {
	ID        string
	Code      string
	TeacherID string
	Cohort
	WifiFingerprint []fingerprint.Observation
	BluetoothUUID   string
	GeneratedAt     time.Time
	ExpiresAt       time.Time
}

// ExpiredAt reports whether the code's window has elapsed at the given
// instant.
func (a AttendanceCode) ExpiredAt(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}
