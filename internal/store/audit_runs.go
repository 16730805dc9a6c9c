package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditRun is the persisted outcome of one audit. ClaimID is nil for
// free-form claims that have no row in claims.
type AuditRun struct {
	ID                string
	ClaimID           *int64
	RequestedModel    string
	ModelUsed         string
	Routing           string
	FallbackReason    string
	Success           bool
	FraudScore        float64
	MatchedIndicators []string
	PromptLength      int
	ResponseLength    int
	Error             string
	CreatedAt         time.Time
}

func (s *Store) RecordAuditRun(ctx context.Context, run AuditRun) (string, error) {
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}
	matched := run.MatchedIndicators
	if matched == nil {
		matched = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_runs (id, claim_id, requested_model, model_used, routing, fallback_reason, success,
			fraud_score, matched_indicators, prompt_length, response_length, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::text[], $10, $11, $12)`,
		id, run.ClaimID, run.RequestedModel, run.ModelUsed, run.Routing, nullIfEmpty(run.FallbackReason), run.Success,
		run.FraudScore, matched, run.PromptLength, run.ResponseLength, nullIfEmpty(run.Error))
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListAuditRuns returns the newest runs for a claim, or across all claims
// when claimID is zero.
func (s *Store) ListAuditRuns(ctx context.Context, claimID int64, limit int) ([]AuditRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, claim_id, requested_model, model_used, routing, coalesce(fallback_reason, ''), success,
		fraud_score, to_json(matched_indicators)::text, prompt_length, response_length, coalesce(error, ''), created_at
		FROM audit_runs`
	args := []any{}
	if claimID != 0 {
		query += " WHERE claim_id = $1 ORDER BY created_at DESC LIMIT $2"
		args = append(args, claimID, limit)
	} else {
		query += " ORDER BY created_at DESC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AuditRun
	for rows.Next() {
		var r AuditRun
		var claim sql.NullInt64
		var matchedJSON string
		if err := rows.Scan(&r.ID, &claim, &r.RequestedModel, &r.ModelUsed, &r.Routing, &r.FallbackReason, &r.Success,
			&r.FraudScore, &matchedJSON, &r.PromptLength, &r.ResponseLength, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		if claim.Valid {
			id := claim.Int64
			r.ClaimID = &id
		}
		_ = json.Unmarshal([]byte(matchedJSON), &r.MatchedIndicators)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// LastAuditRunAt reports when the claim was last audited, if ever.
func (s *Store) LastAuditRunAt(ctx context.Context, claimID int64) (time.Time, bool, error) {
	var at sql.NullTime
	if err := s.db.QueryRowContext(ctx, `SELECT max(created_at) FROM audit_runs WHERE claim_id = $1`, claimID).Scan(&at); err != nil {
		return time.Time{}, false, err
	}
	return at.Time, at.Valid, nil
}
