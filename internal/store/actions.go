package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/outreachbot/internal/models"
)

// ActionRecord describes an executed outreach action to be committed.
type ActionRecord struct {
	RunID         string
	Identity      string
	Company       string
	Kind          models.ActionKind
	NextState     models.RelationshipState
	MessageDigest string
	At            time.Time
	Day           string
}

// PendingAction is a journaled action whose outcome was never recorded.
type PendingAction struct {
	Identity  string
	Company   string
	Kind      models.ActionKind
	NextState models.RelationshipState
	RunID     string
	Day       string
	StartedAt time.Time
}

// Counters returns the daily counters for day. A day with no row yet reads
// as zero, which is how counters reset when the date rolls over.
func (s *Store) Counters(ctx context.Context, day string) (models.DailyCounters, error) {
	out := models.DailyCounters{Day: day}
	err := s.db.QueryRowContext(ctx, `SELECT connections_sent, messages_sent FROM daily_counters WHERE day = ?`, day).
		Scan(&out.ConnectionsSentToday, &out.MessagesSentToday)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("read counters: %w", err)
	}
	return out, nil
}

// BeginAction journals an action before it is attempted so a crash between
// execution and MarkAction can be detected on the next start.
func (s *Store) BeginAction(ctx context.Context, rec ActionRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO pending_actions (identity, company, action, next_state, run_id, day, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET company = excluded.company, action = excluded.action,
		next_state = excluded.next_state, run_id = excluded.run_id, day = excluded.day, started_at = excluded.started_at`,
		rec.Identity, rec.Company, string(rec.Kind), string(rec.NextState), rec.RunID, rec.Day, rec.At.UTC())
	if err != nil {
		return fmt.Errorf("journal action: %w", err)
	}
	return nil
}

// MarkAction commits a successful action: the contact advances to
// rec.NextState, the day's counter for the action is incremented and an audit
// row is appended, all in one transaction. The journal entry is cleared.
func (s *Store) MarkAction(ctx context.Context, rec ActionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cur, found, err := lookup(ctx, tx, rec.Identity)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("mark action: unknown contact %s", rec.Identity)
	}
	if rec.NextState.Rank() < cur.RelationshipState.Rank() {
		return fmt.Errorf("mark action %s on %s: %s -> %s: %w", rec.Kind, rec.Identity, cur.RelationshipState, rec.NextState, ErrRegression)
	}
	at := rec.At.UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE contacts SET relationship_state = ?, last_action_at = ?,
		message_digest = CASE WHEN ? = '' THEN message_digest ELSE ? END, updated_at = ? WHERE identity = ?`,
		string(rec.NextState), at, rec.MessageDigest, rec.MessageDigest, at, rec.Identity); err != nil {
		return fmt.Errorf("advance contact: %w", err)
	}
	if err := incrementCounter(ctx, tx, rec.Day, rec.Kind); err != nil {
		return err
	}
	if err := appendAudit(ctx, tx, models.AuditEntry{
		RunID: rec.RunID, Timestamp: at, Identity: rec.Identity, Company: rec.Company,
		Action: string(rec.Kind), Outcome: models.OutcomeSuccess, Detail: string(rec.NextState),
	}); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_actions WHERE identity = ?`, rec.Identity); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return tx.Commit()
}

// AbortAction records a failed action. Neither the contact nor the counters
// change; only the journal entry is cleared and the failure audited.
func (s *Store) AbortAction(ctx context.Context, rec ActionRecord, cause error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	if err := appendAudit(ctx, tx, models.AuditEntry{
		RunID: rec.RunID, Timestamp: rec.At.UTC(), Identity: rec.Identity, Company: rec.Company,
		Action: string(rec.Kind), Outcome: models.OutcomeFailed, Detail: detail,
	}); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_actions WHERE identity = ?`, rec.Identity); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	return tx.Commit()
}

func (s *Store) PendingActions(ctx context.Context) ([]PendingAction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identity, company, action, next_state, run_id, day, started_at
		FROM pending_actions ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingAction
	for rows.Next() {
		var p PendingAction
		var kind, next string
		if err := rows.Scan(&p.Identity, &p.Company, &kind, &next, &p.RunID, &p.Day, &p.StartedAt); err != nil {
			return nil, err
		}
		p.Kind = models.ActionKind(kind)
		p.NextState = models.RelationshipState(next)
		out = append(out, p)
	}
	return out, rows.Err()
}

// DropPending forgets a journal entry without touching the contact, leaving
// it eligible for the action again.
func (s *Store) DropPending(ctx context.Context, p PendingAction, note string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := appendAudit(ctx, tx, models.AuditEntry{
		RunID: p.RunID, Timestamp: time.Now().UTC(), Identity: p.Identity, Company: p.Company,
		Action: string(p.Kind), Outcome: models.OutcomeSkipped, Detail: note,
	}); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_actions WHERE identity = ?`, p.Identity); err != nil {
		return err
	}
	return tx.Commit()
}

func incrementCounter(ctx context.Context, tx *sql.Tx, day string, kind models.ActionKind) error {
	var stmt string
	switch kind.Quota() {
	case models.ActionConnect:
		stmt = `INSERT INTO daily_counters (day, connections_sent, messages_sent) VALUES (?, 1, 0)
			ON CONFLICT(day) DO UPDATE SET connections_sent = connections_sent + 1`
	case models.ActionMessage:
		stmt = `INSERT INTO daily_counters (day, connections_sent, messages_sent) VALUES (?, 0, 1)
			ON CONFLICT(day) DO UPDATE SET messages_sent = messages_sent + 1`
	default:
		return fmt.Errorf("increment counter: unsupported action %q", kind)
	}
	if _, err := tx.ExecContext(ctx, stmt, day); err != nil {
		return fmt.Errorf("increment counter: %w", err)
	}
	return nil
}
