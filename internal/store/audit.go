package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/outreachbot/internal/models"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendAudit(ctx context.Context, ex execer, e models.AuditEntry) error {
	_, err := ex.ExecContext(ctx, `INSERT INTO audit_log (run_id, ts, identity, company, action, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Timestamp.UTC(), e.Identity, e.Company, e.Action, string(e.Outcome), e.Detail)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// AuditEntries returns the whole action log in insertion order.
func (s *Store) AuditEntries(ctx context.Context) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, ts, identity, company, action, outcome, detail
		FROM audit_log ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var outcome string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Timestamp, &e.Identity, &e.Company, &e.Action, &outcome, &e.Detail); err != nil {
			return nil, err
		}
		e.Outcome = models.Outcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Summary(ctx context.Context) (models.Summary, error) {
	var out models.Summary
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COUNT(DISTINCT CASE WHEN company <> '' THEN company END),
		COALESCE(SUM(CASE WHEN action = 'connect' AND outcome = 'success' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN action IN ('message', 'follow_up') AND outcome = 'success' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0)
		FROM audit_log`).Scan(&out.TotalActions, &out.CompaniesContacted, &out.ConnectionsSent,
		&out.MessagesSent, &out.Successful, &out.Failed)
	if err != nil {
		return out, fmt.Errorf("summary: %w", err)
	}
	return out, nil
}

func (s *Store) CompanyStats(ctx context.Context, company string) (models.CompanyStats, error) {
	out := models.CompanyStats{Company: company}
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(DISTINCT identity),
		COALESCE(SUM(CASE WHEN action = 'connect' AND outcome = 'success' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN action IN ('message', 'follow_up') AND outcome = 'success' THEN 1 ELSE 0 END), 0)
		FROM audit_log WHERE company = ?`, company).Scan(&out.TotalContacted, &out.ConnectionsSent, &out.MessagesSent)
	if err != nil {
		return out, fmt.Errorf("company stats: %w", err)
	}
	return out, nil
}

func (s *Store) StartRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO run_logs (id, started_at) VALUES (?, ?)`, id, at.UTC())
	return err
}

func (s *Store) FinishRun(ctx context.Context, id string, at time.Time, summary string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE run_logs SET ended_at = ?, summary = ? WHERE id = ?`, at.UTC(), summary, id)
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.RunLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, started_at, ended_at, summary FROM run_logs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RunLog
	for rows.Next() {
		var r models.RunLog
		var ended sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &ended, &r.Summary); err != nil {
			return nil, err
		}
		if ended.Valid {
			r.EndedAt = ended.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
