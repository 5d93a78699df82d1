package ledger

import "time"

// Record is one append-only attendance fact: the outcome of a single submit
// decision. Records are never mutated after creation.
type Record struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	CodeID      string    `json:"code_id"`
	Department  string    `json:"department"`
	SubmittedAt time.Time `json:"submitted_at"`
	Accepted    bool      `json:"accepted"`
	Reason      string    `json:"reason"`
}
