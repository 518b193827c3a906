// ABOUTME: Invocation records for the audit log and their store methods
// ABOUTME: Records which tool ran for which profile and how it ended, never arguments or secrets

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// tsLayout is fixed-width so timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Outcome is how an invocation ended.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeError         Outcome = "error"
	OutcomeLoginRequired Outcome = "login_required"
)

// ErrInvalidOutcome is returned when appending an invocation with an unknown outcome.
var ErrInvalidOutcome = errors.New("invalid outcome")

// Invocation is one audited tool call.
type Invocation struct {
	ID         string    `json:"id"`
	Tool       string    `json:"tool"`
	ProfileID  string    `json:"profileId,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	ErrorType  string    `json:"errorType,omitempty"`
	DurationMS int64     `json:"durationMs"`
	Timestamp  time.Time `json:"timestamp"`
}

// InvocationFilter narrows ListInvocations.
type InvocationFilter struct {
	Tool    string  // exact tool name, empty for all
	Outcome Outcome // empty for all
	Since   *time.Time
	Limit   int // default 100, max 1000
}

// AppendInvocation records inv. ID and Timestamp are generated when unset.
func (s *SQLiteStore) AppendInvocation(ctx context.Context, inv *Invocation) error {
	switch inv.Outcome {
	case OutcomeOK, OutcomeError, OutcomeLoginRequired:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, inv.Outcome)
	}
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.Timestamp.IsZero() {
		inv.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO invocations (invocation_id, tool, profile_id, outcome, error_type, duration_ms, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		inv.ID,
		inv.Tool,
		nullable(inv.ProfileID),
		string(inv.Outcome),
		nullable(inv.ErrorType),
		inv.DurationMS,
		inv.Timestamp.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting invocation: %w", err)
	}

	s.logger.Debug("appended invocation", "id", inv.ID, "tool", inv.Tool, "outcome", inv.Outcome)
	return nil
}

// normalizeLimit applies default (100) and cap (1000).
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

const invocationsQuery = `
	SELECT invocation_id, tool, profile_id, outcome, error_type, duration_ms, ts
	FROM invocations
	WHERE (? IS NULL OR tool = ?)
	  AND (? IS NULL OR outcome = ?)
	  AND (? IS NULL OR ts >= ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListInvocations returns matching invocations, newest first.
func (s *SQLiteStore) ListInvocations(ctx context.Context, f InvocationFilter) ([]*Invocation, error) {
	tool := nullable(f.Tool)
	outcome := nullable(string(f.Outcome))
	var since *string
	if f.Since != nil {
		v := f.Since.UTC().Format(tsLayout)
		since = &v
	}

	rows, err := s.db.QueryContext(ctx, invocationsQuery,
		tool, tool,
		outcome, outcome,
		since, since,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invocations: %w", err)
	}
	return out, nil
}

func scanInvocation(scanner interface{ Scan(dest ...any) error }) (*Invocation, error) {
	var (
		inv                  Invocation
		profileID, errorType sql.NullString
		outcome, ts          string
	)
	if err := scanner.Scan(&inv.ID, &inv.Tool, &profileID, &outcome, &errorType, &inv.DurationMS, &ts); err != nil {
		return nil, fmt.Errorf("scanning invocation: %w", err)
	}
	inv.ProfileID = profileID.String
	inv.ErrorType = errorType.String
	inv.Outcome = Outcome(outcome)

	parsed, err := time.Parse(tsLayout, ts)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	inv.Timestamp = parsed
	return &inv, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
