package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/outreachbot/internal/classifier"
	"github.com/example/outreachbot/internal/config"
	"github.com/example/outreachbot/internal/engine"
	"github.com/example/outreachbot/internal/governor"
	"github.com/example/outreachbot/internal/logging"
	"github.com/example/outreachbot/internal/models"
	"github.com/example/outreachbot/internal/store"
)

const (
	alice = "https://www.linkedin.com/in/alice"
	bob   = "https://www.linkedin.com/in/bob"
	today = "2024-05-01"
)

type fakeBrowser struct {
	results  map[string][]models.RawProfile
	statuses map[string]models.ConnectionStatus
	details  map[string]string
	sendErr  error

	searchErr   error
	onSend      func()
	statusCalls int
	detailCalls int
	sendCtxErrs []error
	notes       map[string]string
	messages    map[string]string
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		results:  map[string][]models.RawProfile{},
		statuses: map[string]models.ConnectionStatus{},
		details:  map[string]string{},
		notes:    map[string]string{},
		messages: map[string]string{},
	}
}

func (f *fakeBrowser) SearchProfiles(_ context.Context, company string, _ []string, limit int) ([]models.RawProfile, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := f.results[company]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBrowser) OpenProfileDetail(_ context.Context, identity string) (string, error) {
	f.detailCalls++
	if text, ok := f.details[identity]; ok {
		return text, nil
	}
	return "", errors.New("profile not found")
}

func (f *fakeBrowser) ConnectionStatus(_ context.Context, identity string) (models.ConnectionStatus, error) {
	f.statusCalls++
	if st, ok := f.statuses[identity]; ok {
		return st, nil
	}
	return models.StatusUnknown, nil
}

func (f *fakeBrowser) sent(ctx context.Context) {
	if f.onSend != nil {
		f.onSend()
	}
	f.sendCtxErrs = append(f.sendCtxErrs, ctx.Err())
}

func (f *fakeBrowser) SendConnectionRequest(ctx context.Context, identity, note string) error {
	f.sent(ctx)
	if f.sendErr != nil {
		return f.sendErr
	}
	f.notes[identity] = note
	return nil
}

func (f *fakeBrowser) SendMessage(ctx context.Context, identity, text string) error {
	f.sent(ctx)
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages[identity] = text
	return nil
}

type fakeComposer struct{}

func (fakeComposer) Note(_ context.Context, p models.ProfileText) string {
	return "Hi " + p.Name + ", let's connect about " + p.Company
}

func (fakeComposer) Message(_ context.Context, p models.ProfileText) string {
	return "Hello " + p.Name + " [" + p.FullText + "]"
}

func (fakeComposer) FollowUp(_ context.Context, p models.ProfileText) string {
	return "Following up, " + p.Name
}

type harness struct {
	st    *store.Store
	gov   *governor.Governor
	br    *fakeBrowser
	now   time.Time
	logs  *bytes.Buffer
	slept []time.Duration
}

func newHarness(t *testing.T, maxConnections, maxMessages int) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(context.Background()))

	h := &harness{st: st, br: newFakeBrowser(), now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local), logs: &bytes.Buffer{}}
	h.gov = governor.New(st, governor.Limits{
		MaxConnectionsPerDay: maxConnections,
		MaxMessagesPerDay:    maxMessages,
		MinDelay:             time.Second,
		MaxDelay:             2 * time.Second,
	}).WithClock(func() time.Time { return h.now })
	return h
}

func (h *harness) orchestrator(policy string) *Orchestrator {
	cfg := config.Default()
	log := logging.NewWithWriter(h.logs, "debug")
	o := New(
		h.st,
		h.gov,
		engine.New(h.gov, 0),
		classifier.New(cfg.Classifier.RecruiterTitles, cfg.Classifier.NegativeTitles, nil, log),
		h.br,
		fakeComposer{},
		Options{Titles: cfg.Classifier.RecruiterTitles, MaxProfilesPerCompany: 5, CrashRecovery: policy},
		log,
	)
	o.sleep = func(_ context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		return nil
	}
	return o
}

func (h *harness) contact(t *testing.T, identity string) models.Contact {
	t.Helper()
	c, found, err := h.st.Lookup(context.Background(), identity)
	require.NoError(t, err)
	require.True(t, found, identity)
	return c
}

func (h *harness) counters(t *testing.T) models.DailyCounters {
	t.Helper()
	c, err := h.st.Counters(context.Background(), h.gov.Today())
	require.NoError(t, err)
	return c
}

func recruiterProfile(identity, name string, status models.ConnectionStatus) models.RawProfile {
	return models.RawProfile{Identity: identity, Name: name, HeadlineText: "Technical Recruiter at Acme", ConnectionStatus: status}
}

func TestRun_ConnectsUntilQuotaExhausted(t *testing.T) {
	h := newHarness(t, 1, 5)
	h.br.results["Acme"] = []models.RawProfile{
		recruiterProfile(alice, "Alice", models.StatusNotConnected),
		recruiterProfile(bob, "Bob", models.StatusNotConnected),
	}

	rep, err := h.orchestrator("").Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, 1, rep.Executed)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Reasons[engine.ReasonQuotaExhausted])
	assert.False(t, rep.Stopped)

	assert.Len(t, h.br.notes, 1)
	assert.Equal(t, "Hi Alice, let's connect about Acme", h.br.notes[alice])
	assert.Equal(t, 1, h.counters(t).ConnectionsSentToday)

	a := h.contact(t, alice)
	assert.Equal(t, models.StateConnectionSent, a.RelationshipState)
	assert.Equal(t, models.Digest(h.br.notes[alice]), a.MessageDigest)
	assert.Equal(t, models.StateNew, h.contact(t, bob).RelationshipState)

	require.Len(t, h.slept, 1)
	assert.GreaterOrEqual(t, h.slept[0], time.Second)
}

func TestRun_MessagesOnceConnectionAccepted(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.results["Acme"] = []models.RawProfile{recruiterProfile(alice, "Alice", models.StatusNotConnected)}
	o := h.orchestrator("")

	_, err := o.Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	require.Equal(t, models.StateConnectionSent, h.contact(t, alice).RelationshipState)

	h.br.statuses[alice] = models.StatusConnected
	h.br.details[alice] = "Hiring backend engineers"
	rep, err := o.Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Executed)
	assert.Equal(t, 1, rep.Reasons[engine.ReasonNewlyConnected])
	assert.Equal(t, 1, rep.Processed, "search hit already handled by the rescan")

	assert.Equal(t, "Hello Alice [Hiring backend engineers]", h.br.messages[alice])
	assert.Equal(t, models.StateMessaged, h.contact(t, alice).RelationshipState)
	c := h.counters(t)
	assert.Equal(t, 1, c.ConnectionsSentToday)
	assert.Equal(t, 1, c.MessagesSentToday)
}

func TestRun_FailedSendLeavesLedgerUnchanged(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.results["Acme"] = []models.RawProfile{recruiterProfile(alice, "Alice", models.StatusNotConnected)}
	h.br.sendErr = errors.New("send button not found")

	rep, err := h.orchestrator("").Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 0, rep.Executed)

	assert.Equal(t, models.StateNew, h.contact(t, alice).RelationshipState)
	assert.Equal(t, 0, h.counters(t).ConnectionsSentToday)

	pending, err := h.st.PendingActions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)

	entries, err := h.st.AuditEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OutcomeFailed, entries[0].Outcome)
	assert.Equal(t, rep.RunID, entries[0].RunID)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.results["Acme"] = []models.RawProfile{recruiterProfile(alice, "Alice", models.StatusNotConnected)}
	o := h.orchestrator("")

	_, err := o.Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	h.br.statuses[alice] = models.StatusPending

	for i := 0; i < 2; i++ {
		rep, err := o.Run(context.Background(), []string{"Acme"})
		require.NoError(t, err)
		assert.Equal(t, 0, rep.Executed)
		assert.Equal(t, 1, rep.Reasons[engine.ReasonAwaitingAcceptance])
	}
	assert.Equal(t, 1, h.counters(t).ConnectionsSentToday)

	entries, err := h.st.AuditEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRun_DuplicateSearchHitsProcessedOnce(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.results["Acme"] = []models.RawProfile{recruiterProfile(alice, "Alice", models.StatusNotConnected)}
	h.br.results["Acme Labs"] = []models.RawProfile{recruiterProfile(alice+"/?trk=x", "Alice", models.StatusNotConnected)}

	rep, err := h.orchestrator("").Run(context.Background(), []string{"Acme", "Acme Labs"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, h.counters(t).ConnectionsSentToday)
}

func TestRun_PendingInvitationIsNotResent(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.results["Acme"] = []models.RawProfile{recruiterProfile(alice, "Alice", models.StatusPending)}

	rep, err := h.orchestrator("").Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Reasons[engine.ReasonPendingExternal])
	assert.Empty(t, h.br.notes)
	assert.Equal(t, models.StateConnectionSent, h.contact(t, alice).RelationshipState)
	assert.Equal(t, 0, h.counters(t).ConnectionsSentToday)
}

func TestRun_AlreadyConnectedGetsMessage(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.results["Acme"] = []models.RawProfile{recruiterProfile(alice, "Alice", models.StatusConnected)}
	h.br.details[alice] = "About Alice"

	rep, err := h.orchestrator("").Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Executed)
	assert.Equal(t, "Hello Alice [About Alice]", h.br.messages[alice])
	assert.Equal(t, models.StateMessaged, h.contact(t, alice).RelationshipState)
	assert.Equal(t, 1, h.counters(t).MessagesSentToday)
}

func TestRun_NotRelevantNeverContacted(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.results["Acme"] = []models.RawProfile{{
		Identity: alice, Name: "Alice", HeadlineText: "Computer Science Student", ConnectionStatus: models.StatusNotConnected,
	}}

	rep, err := h.orchestrator("").Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Reasons[engine.ReasonNotRelevant])
	assert.Empty(t, h.br.notes)
	assert.Zero(t, h.br.statusCalls)

	c := h.contact(t, alice)
	assert.Equal(t, models.ClassNotRelevant, c.Classification)
	assert.Equal(t, models.BasisNegative, c.Basis)
}

func TestRun_AmbiguousWithoutAIFallsBack(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.results["Acme"] = []models.RawProfile{{
		Identity: alice, Name: "Alice", HeadlineText: "People Operations", ConnectionStatus: models.StatusNotConnected,
	}}

	_, err := h.orchestrator("").Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	c := h.contact(t, alice)
	assert.Equal(t, models.ClassNotRelevant, c.Classification)
	assert.Equal(t, models.BasisFallback, c.Basis)
	assert.Empty(t, h.br.notes)
}

func TestRun_UnknownStatusIsLookedUp(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.results["Acme"] = []models.RawProfile{recruiterProfile(alice, "Alice", models.StatusUnknown)}
	h.br.statuses[alice] = models.StatusNotConnected

	rep, err := h.orchestrator("").Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.br.statusCalls)
	assert.Equal(t, 1, rep.Executed)
}

func TestRun_SearchFailureSkipsCompany(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.searchErr = errors.New("results container missing")

	rep, err := h.orchestrator("").Run(context.Background(), []string{"Acme", "Globex"})
	require.NoError(t, err)
	assert.Zero(t, rep.Processed)
}

func TestRun_StopsBetweenContacts(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.results["Acme"] = []models.RawProfile{
		recruiterProfile(alice, "Alice", models.StatusNotConnected),
		recruiterProfile(bob, "Bob", models.StatusNotConnected),
	}
	o := h.orchestrator("")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	rep, err := o.Run(ctx, []string{"Acme"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, rep.Stopped)
	assert.Equal(t, 1, rep.Executed)

	assert.Equal(t, models.StateConnectionSent, h.contact(t, alice).RelationshipState)
	_, found, err := h.st.Lookup(context.Background(), bob)
	require.NoError(t, err)
	assert.False(t, found)

	runs, err := h.st.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].EndedAt.IsZero(), "run is closed out after a stop")
}

func journalConnect(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	_, err := h.st.Upsert(ctx, models.Contact{
		Identity: alice, DisplayName: "Alice", Company: "Acme", TitleText: "Technical Recruiter at Acme",
		Classification: models.ClassRecruiter, Basis: models.BasisKeyword,
	})
	require.NoError(t, err)
	require.NoError(t, h.st.BeginAction(ctx, store.ActionRecord{
		RunID: "crashed", Identity: alice, Company: "Acme", Kind: models.ActionConnect,
		NextState: models.StateConnectionSent, At: h.gov.Now(), Day: today,
	}))
}

func TestRun_RecoveryReattempt(t *testing.T) {
	h := newHarness(t, 5, 5)
	journalConnect(t, h)
	h.br.results["Acme"] = []models.RawProfile{recruiterProfile(alice, "Alice", models.StatusNotConnected)}

	h.br.statuses[alice] = models.StatusNotConnected

	rep, err := h.orchestrator(config.RecoveryReattempt).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Recovered)
	assert.Equal(t, 1, rep.Executed, "the held contact is retried without a search hit")
	assert.Contains(t, h.br.notes, alice)
	assert.Equal(t, 1, h.counters(t).ConnectionsSentToday)
}

func TestRun_RecoveryAssumeDone(t *testing.T) {
	h := newHarness(t, 5, 5)
	journalConnect(t, h)
	h.br.results["Acme"] = []models.RawProfile{recruiterProfile(alice, "Alice", models.StatusNotConnected)}

	rep, err := h.orchestrator(config.RecoveryAssumeDone).Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Recovered)
	assert.Equal(t, 0, rep.Executed)
	assert.Empty(t, h.br.notes)
	assert.Equal(t, models.StateConnectionSent, h.contact(t, alice).RelationshipState)
	assert.Equal(t, 1, h.counters(t).ConnectionsSentToday)

	pending, err := h.st.PendingActions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRun_RecoveryAssumeDoneAfterLaterProgress(t *testing.T) {
	h := newHarness(t, 5, 5)
	journalConnect(t, h)
	_, err := h.st.Upsert(context.Background(), models.Contact{Identity: alice, RelationshipState: models.StateMessaged})
	require.NoError(t, err)

	rep, err := h.orchestrator(config.RecoveryAssumeDone).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Recovered)
	assert.Equal(t, models.StateMessaged, h.contact(t, alice).RelationshipState)
	assert.Equal(t, 0, h.counters(t).ConnectionsSentToday)
	assert.Contains(t, h.logs.String(), "unrecorded action dropped")
	assert.NotContains(t, h.logs.String(), "assumed done")
}

func TestRescan_SkipsSeen(t *testing.T) {
	h := newHarness(t, 5, 5)
	ctx := context.Background()
	for _, id := range []string{alice, bob} {
		_, err := h.st.Upsert(ctx, models.Contact{
			Identity: id, Classification: models.ClassRecruiter, Basis: models.BasisKeyword,
			RelationshipState: models.StateConnected,
		})
		require.NoError(t, err)
	}
	o := h.orchestrator("")

	var ids []string
	for step, err := range o.Rescan(ctx, map[string]bool{bob: true}) {
		require.NoError(t, err)
		ids = append(ids, step.Contact.Identity)
		assert.Equal(t, models.ActionMessage, step.Decision.Action)
	}
	assert.Equal(t, []string{alice}, ids)
	assert.Zero(t, h.br.statusCalls, "only CONNECTION_SENT needs a fresh status")
}

func TestRun_FailedMessageKeepsConnectionSent(t *testing.T) {
	h := newHarness(t, 5, 5)
	ctx := context.Background()
	_, err := h.st.Upsert(ctx, models.Contact{
		Identity: alice, DisplayName: "Alice", Company: "Acme", TitleText: "Technical Recruiter at Acme",
		Classification: models.ClassRecruiter, Basis: models.BasisKeyword, RelationshipState: models.StateConnectionSent,
	})
	require.NoError(t, err)
	h.br.statuses[alice] = models.StatusConnected
	h.br.details[alice] = "About Alice"
	h.br.sendErr = errors.New("message box not found")

	rep, err := h.orchestrator("").Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 0, rep.Executed)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Reasons[engine.ReasonNewlyConnected])

	assert.Equal(t, models.StateConnectionSent, h.contact(t, alice).RelationshipState)
	assert.Equal(t, 0, h.counters(t).MessagesSentToday)

	entries, err := h.st.AuditEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(models.ActionMessage), entries[0].Action)
	assert.Equal(t, models.OutcomeFailed, entries[0].Outcome)
}

func TestRun_HeldRecruiterRetriedFromLedger(t *testing.T) {
	h := newHarness(t, 1, 5)
	h.br.results["Acme"] = []models.RawProfile{
		recruiterProfile(alice, "Alice", models.StatusNotConnected),
		recruiterProfile(bob, "Bob", models.StatusNotConnected),
	}
	o := h.orchestrator("")
	_, err := o.Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	require.Equal(t, models.StateNew, h.contact(t, bob).RelationshipState)

	// next day the search no longer lists bob
	h.now = h.now.AddDate(0, 0, 1)
	h.br.results["Acme"] = []models.RawProfile{recruiterProfile(alice, "Alice", models.StatusPending)}
	h.br.statuses[alice] = models.StatusPending
	h.br.statuses[bob] = models.StatusNotConnected

	rep, err := o.Run(context.Background(), []string{"Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Executed)
	assert.Equal(t, 1, rep.Reasons[engine.ReasonConnectRecruiter])
	assert.Equal(t, "Hi Bob, let's connect about Acme", h.br.notes[bob])
	assert.Equal(t, models.StateConnectionSent, h.contact(t, bob).RelationshipState)
	assert.Equal(t, 1, h.counters(t).ConnectionsSentToday)
}

func TestRescan_HeldContacts(t *testing.T) {
	h := newHarness(t, 5, 5)
	ctx := context.Background()
	for _, c := range []models.Contact{
		{Identity: alice, Classification: models.ClassRecruiter, Basis: models.BasisKeyword},
		{Identity: bob, Classification: models.ClassNotRelevant, Basis: models.BasisNegative},
	} {
		_, err := h.st.Upsert(ctx, c)
		require.NoError(t, err)
	}
	h.br.statuses[alice] = models.StatusNotConnected

	var ids []string
	for step, err := range h.orchestrator("").Rescan(ctx, nil) {
		require.NoError(t, err)
		ids = append(ids, step.Contact.Identity)
		assert.Equal(t, models.ActionConnect, step.Decision.Action)
	}
	assert.Equal(t, []string{alice}, ids, "only recruiters held at NEW are retried")
	assert.Equal(t, 1, h.br.statusCalls)
}

func TestRescan_HeldContactsWaitForQuota(t *testing.T) {
	h := newHarness(t, 1, 1)
	ctx := context.Background()
	carol := "https://www.linkedin.com/in/carol"
	for _, id := range []string{alice, carol} {
		_, err := h.st.Upsert(ctx, models.Contact{Identity: id, Classification: models.ClassRecruiter, Basis: models.BasisKeyword})
		require.NoError(t, err)
	}
	for _, step := range []struct {
		kind models.ActionKind
		next models.RelationshipState
	}{
		{models.ActionConnect, models.StateConnectionSent},
		{models.ActionMessage, models.StateMessaged},
	} {
		require.NoError(t, h.st.MarkAction(ctx, store.ActionRecord{
			Identity: carol, Kind: step.kind, NextState: step.next, At: h.now, Day: h.gov.Today(),
		}))
	}

	var ids []string
	for step, err := range h.orchestrator("").Rescan(ctx, nil) {
		require.NoError(t, err)
		ids = append(ids, step.Contact.Identity)
	}
	assert.Equal(t, []string{carol}, ids)
	assert.Zero(t, h.br.statusCalls)
}

func TestRun_StopDuringSendCompletesAction(t *testing.T) {
	h := newHarness(t, 5, 5)
	h.br.results["Acme"] = []models.RawProfile{
		recruiterProfile(alice, "Alice", models.StatusNotConnected),
		recruiterProfile(bob, "Bob", models.StatusNotConnected),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.br.onSend = cancel

	rep, err := h.orchestrator("").Run(ctx, []string{"Acme"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, rep.Stopped)
	assert.Equal(t, 1, rep.Executed)
	assert.Zero(t, rep.Failed)
	assert.Equal(t, []error{nil}, h.br.sendCtxErrs, "a send in progress is not interrupted")

	assert.Equal(t, models.StateConnectionSent, h.contact(t, alice).RelationshipState)
	assert.Equal(t, 1, h.counters(t).ConnectionsSentToday)
	_, found, err := h.st.Lookup(context.Background(), bob)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRun_FallbackVerdictIsReclassified(t *testing.T) {
	h := newHarness(t, 5, 5)
	ctx := context.Background()
	for _, c := range []models.Contact{
		{Identity: alice, Company: "Acme", TitleText: "People Operations", Classification: models.ClassNotRelevant, Basis: models.BasisFallback},
		{Identity: bob, Company: "Acme", TitleText: "Student", Classification: models.ClassNotRelevant, Basis: models.BasisNegative},
	} {
		_, err := h.st.Upsert(ctx, c)
		require.NoError(t, err)
	}
	h.br.results["Acme"] = []models.RawProfile{
		recruiterProfile(alice, "Alice", models.StatusNotConnected),
		recruiterProfile(bob, "Bob", models.StatusNotConnected),
	}

	rep, err := h.orchestrator("").Run(ctx, []string{"Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Executed)
	assert.Contains(t, h.br.notes, alice)
	assert.NotContains(t, h.br.notes, bob)

	a := h.contact(t, alice)
	assert.Equal(t, models.ClassRecruiter, a.Classification)
	assert.Equal(t, models.BasisKeyword, a.Basis)
	b := h.contact(t, bob)
	assert.Equal(t, models.ClassNotRelevant, b.Classification)
	assert.Equal(t, models.BasisNegative, b.Basis)
}
