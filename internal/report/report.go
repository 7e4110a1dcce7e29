// Package report renders the ledger for humans: CSV export of the audit log
// and the status snapshot shared by the CLI and the status API.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/example/outreachbot/internal/governor"
	"github.com/example/outreachbot/internal/models"
	"github.com/example/outreachbot/internal/store"
)

var csvHeader = []string{"timestamp", "run_id", "identity", "company", "action_kind", "outcome", "detail"}

// WriteCSV writes one row per audit entry.
func WriteCSV(w io.Writer, entries []models.AuditEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.RunID,
			e.Identity,
			e.Company,
			e.Action,
			string(e.Outcome),
			e.Detail,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFile rewrites path with the full audit log and returns the row count.
func ExportFile(ctx context.Context, st *store.Store, path string) (int, error) {
	entries, err := st.AuditEntries(ctx)
	if err != nil {
		return 0, err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create export: %w", err)
	}
	if err := WriteCSV(f, entries); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return len(entries), os.Rename(tmp, path)
}

// Status is a point-in-time view of the ledger and today's quota.
type Status struct {
	Day                  string                           `json:"day"`
	ConnectionsSent      int                              `json:"connections_sent_today"`
	MessagesSent         int                              `json:"messages_sent_today"`
	ConnectionsRemaining int                              `json:"connections_remaining"`
	MessagesRemaining    int                              `json:"messages_remaining"`
	States               map[models.RelationshipState]int `json:"states"`
	Summary              models.Summary                   `json:"summary"`
	RecentRuns           []models.RunLog                  `json:"recent_runs"`
}

func Snapshot(ctx context.Context, st *store.Store, gov *governor.Governor) (Status, error) {
	out := Status{Day: gov.Today()}
	c, err := st.Counters(ctx, out.Day)
	if err != nil {
		return out, err
	}
	out.ConnectionsSent, out.MessagesSent = c.ConnectionsSentToday, c.MessagesSentToday
	if out.ConnectionsRemaining, err = gov.Remaining(ctx, models.ActionConnect); err != nil {
		return out, err
	}
	if out.MessagesRemaining, err = gov.Remaining(ctx, models.ActionMessage); err != nil {
		return out, err
	}
	if out.States, err = st.StateCounts(ctx); err != nil {
		return out, err
	}
	if out.Summary, err = st.Summary(ctx); err != nil {
		return out, err
	}
	if out.RecentRuns, err = st.RecentRuns(ctx, 5); err != nil {
		return out, err
	}
	return out, nil
}

// Rows flattens s into label/value pairs for terminal output.
func (s Status) Rows() [][2]string {
	rows := [][2]string{
		{"Day", s.Day},
		{"Connections today", fmt.Sprintf("%d (%d remaining)", s.ConnectionsSent, s.ConnectionsRemaining)},
		{"Messages today", fmt.Sprintf("%d (%d remaining)", s.MessagesSent, s.MessagesRemaining)},
		{"Total actions", strconv.Itoa(s.Summary.TotalActions)},
		{"Companies contacted", strconv.Itoa(s.Summary.CompaniesContacted)},
		{"Connections sent", strconv.Itoa(s.Summary.ConnectionsSent)},
		{"Messages sent", strconv.Itoa(s.Summary.MessagesSent)},
		{"Successful", strconv.Itoa(s.Summary.Successful)},
		{"Failed", strconv.Itoa(s.Summary.Failed)},
	}
	for _, st := range []models.RelationshipState{models.StateNew, models.StateConnectionSent,
		models.StateConnected, models.StateMessaged, models.StateFollowedUp} {
		rows = append(rows, [2]string{"Contacts " + string(st), strconv.Itoa(s.States[st])})
	}
	return rows
}
