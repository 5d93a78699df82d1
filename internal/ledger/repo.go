package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends a record. The (student_id, code_id, accepted=true) pair is
// unique in the schema, so a duplicate accepted record raced past the
// in-memory guard is rejected here too.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, code_id, department, submitted_at, accepted, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rec.ID, rec.StudentID, rec.CodeID, rec.Department, rec.SubmittedAt, rec.Accepted, rec.Reason)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns a single record by id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, code_id, department, submitted_at, accepted, reason
		FROM attendance_records WHERE id = $1
	`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.CodeID, &rec.Department, &rec.SubmittedAt, &rec.Accepted, &rec.Reason); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns records with basic filters, newest first.
func (r *Repository) List(ctx context.Context, codeID, studentID, department string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, student_id, code_id, department, submitted_at, accepted, reason FROM attendance_records`
	args := []any{}
	clauses := []string{}
	if codeID != "" {
		clauses = append(clauses, "code_id = $"+itoa(len(args)+1))
		args = append(args, codeID)
	}
	if studentID != "" {
		clauses = append(clauses, "student_id = $"+itoa(len(args)+1))
		args = append(args, studentID)
	}
	if department != "" {
		clauses = append(clauses, "department = $"+itoa(len(args)+1))
		args = append(args, department)
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY submitted_at DESC LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.CodeID, &rec.Department, &rec.SubmittedAt, &rec.Accepted, &rec.Reason); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// CountAccepted returns how many students were accepted for a code.
func (r *Repository) CountAccepted(ctx context.Context, codeID string) (int, error) {
	if codeID == "" {
		return 0, errors.New("code id required")
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records WHERE code_id = $1 AND accepted = TRUE
	`, codeID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
