package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/outreachbot/internal/models"
)

// ErrRegression is returned when a write would move a contact backwards in
// the outreach lifecycle.
var ErrRegression = errors.New("relationship state regression")

// Store is the contact ledger. It exclusively owns contact rows, daily
// counters, the audit log and the pending-action journal.
type Store struct{ db *sql.DB }

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// one writer keeps every ledger transaction serialized
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmt := `
CREATE TABLE IF NOT EXISTS contacts (
	identity TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	company TEXT NOT NULL DEFAULT '',
	title_text TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL,
	basis TEXT NOT NULL DEFAULT '',
	relationship_state TEXT NOT NULL DEFAULT 'NEW',
	last_action_at DATETIME,
	message_digest TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contacts_state ON contacts(relationship_state);
CREATE TABLE IF NOT EXISTS daily_counters (
	day TEXT PRIMARY KEY,
	connections_sent INTEGER NOT NULL DEFAULT 0,
	messages_sent INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS pending_actions (
	identity TEXT PRIMARY KEY,
	company TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	next_state TEXT NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	day TEXT NOT NULL,
	started_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL DEFAULT '',
	ts DATETIME NOT NULL,
	identity TEXT NOT NULL,
	company TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS run_logs (
	id TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	ended_at DATETIME,
	summary TEXT NOT NULL DEFAULT ''
);
`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

const contactColumns = `identity, display_name, company, title_text, classification, basis,
	relationship_state, last_action_at, message_digest, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(r rowScanner) (models.Contact, error) {
	var (
		c          models.Contact
		cls, basis string
		state      string
		lastAction sql.NullTime
	)
	if err := r.Scan(&c.Identity, &c.DisplayName, &c.Company, &c.TitleText, &cls, &basis,
		&state, &lastAction, &c.MessageDigest, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.Contact{}, err
	}
	c.Classification = models.Classification(cls)
	c.Basis = models.Basis(basis)
	c.RelationshipState = models.RelationshipState(state)
	if lastAction.Valid {
		t := lastAction.Time
		c.LastActionAt = &t
	}
	return c, nil
}

// Lookup returns the contact for identity. A missing row is reported through
// the bool, never as an error.
func (s *Store) Lookup(ctx context.Context, identity string) (models.Contact, bool, error) {
	return lookup(ctx, s.db, identity)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookup(ctx context.Context, q querier, identity string) (models.Contact, bool, error) {
	row := q.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE identity = ?`, identity)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contact{}, false, nil
	}
	if err != nil {
		return models.Contact{}, false, fmt.Errorf("lookup %s: %w", identity, err)
	}
	return c, true, nil
}

// Upsert inserts c or merges it into the existing row. Descriptive fields are
// replaced when non-empty, the relationship state only ever moves forward,
// and an unchanged merge writes nothing. It reports whether a row changed.
func (s *Store) Upsert(ctx context.Context, c models.Contact) (bool, error) {
	if c.Identity == "" {
		return false, errors.New("upsert: empty identity")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, found, err := lookup(ctx, tx, c.Identity)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	if !found {
		if c.RelationshipState == "" {
			c.RelationshipState = models.StateNew
		}
		if c.Classification == "" {
			c.Classification = models.ClassAmbiguous
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO contacts (`+contactColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Identity, c.DisplayName, c.Company, c.TitleText, string(c.Classification), string(c.Basis),
			string(c.RelationshipState), nullTime(c.LastActionAt), c.MessageDigest, now, now)
		if err != nil {
			return false, fmt.Errorf("insert contact: %w", err)
		}
		return true, tx.Commit()
	}

	merged := merge(existing, c)
	if merged == nil {
		return false, nil
	}
	_, err = tx.ExecContext(ctx, `UPDATE contacts SET display_name = ?, company = ?, title_text = ?,
		classification = ?, basis = ?, relationship_state = ?, last_action_at = ?, message_digest = ?, updated_at = ?
		WHERE identity = ?`,
		merged.DisplayName, merged.Company, merged.TitleText, string(merged.Classification), string(merged.Basis),
		string(merged.RelationshipState), nullTime(merged.LastActionAt), merged.MessageDigest, now, merged.Identity)
	if err != nil {
		return false, fmt.Errorf("update contact: %w", err)
	}
	return true, tx.Commit()
}

// merge folds in into cur and returns nil when nothing would change.
func merge(cur, in models.Contact) *models.Contact {
	out := cur
	if in.DisplayName != "" {
		out.DisplayName = in.DisplayName
	}
	if in.Company != "" {
		out.Company = in.Company
	}
	if in.TitleText != "" {
		out.TitleText = in.TitleText
	}
	if in.Classification != "" {
		out.Classification = in.Classification
		out.Basis = in.Basis
	}
	if in.RelationshipState.Rank() > cur.RelationshipState.Rank() {
		out.RelationshipState = in.RelationshipState
	}
	if in.LastActionAt != nil {
		t := *in.LastActionAt
		out.LastActionAt = &t
	}
	if in.MessageDigest != "" {
		out.MessageDigest = in.MessageDigest
	}
	if sameContact(cur, out) {
		return nil
	}
	return &out
}

func sameContact(a, b models.Contact) bool {
	if (a.LastActionAt == nil) != (b.LastActionAt == nil) {
		return false
	}
	if a.LastActionAt != nil && !a.LastActionAt.Equal(*b.LastActionAt) {
		return false
	}
	return a.DisplayName == b.DisplayName && a.Company == b.Company && a.TitleText == b.TitleText &&
		a.Classification == b.Classification && a.Basis == b.Basis &&
		a.RelationshipState == b.RelationshipState && a.MessageDigest == b.MessageDigest
}

// ListByStates returns the contacts currently in any of states, oldest
// update first. The slice is a snapshot; later writes do not affect it.
func (s *Store) ListByStates(ctx context.Context, states ...models.RelationshipState) ([]models.Contact, error) {
	if len(states) == 0 {
		return nil, nil
	}
	args := make([]any, len(states))
	ph := ""
	for i, st := range states {
		args[i] = string(st)
		if i > 0 {
			ph += ", "
		}
		ph += "?"
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+contactColumns+` FROM contacts
		WHERE relationship_state IN (`+ph+`) ORDER BY updated_at, identity`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// StateCounts returns the number of contacts per relationship state.
func (s *Store) StateCounts(ctx context.Context) (map[models.RelationshipState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT relationship_state, COUNT(*) FROM contacts GROUP BY relationship_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[models.RelationshipState]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[models.RelationshipState(st)] = n
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
