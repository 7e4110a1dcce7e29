package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/outreachbot/internal/models"
)

type fakeQuota struct {
	open map[models.ActionKind]bool
	err  error
}

func (f fakeQuota) CanPerform(_ context.Context, kind models.ActionKind) (bool, error) {
	return f.open[kind.Quota()], f.err
}

var (
	plenty = fakeQuota{open: map[models.ActionKind]bool{models.ActionConnect: true, models.ActionMessage: true}}
	empty  = fakeQuota{open: map[models.ActionKind]bool{}}
)

func contact(state models.RelationshipState, cls models.Classification) *models.Contact {
	return &models.Contact{
		Identity:          "https://www.linkedin.com/in/alice",
		Classification:    cls,
		Basis:             models.BasisKeyword,
		RelationshipState: state,
	}
}

func TestDecide_TransitionTable(t *testing.T) {
	rec := models.ClassRecruiter
	cases := []struct {
		name   string
		quota  fakeQuota
		c      *models.Contact
		obs    Observation
		action models.ActionKind
		reason Reason
		next   models.RelationshipState
	}{
		{"unknown recruiter not connected", plenty, nil, Observation{rec, models.StatusNotConnected},
			models.ActionConnect, ReasonConnectRecruiter, models.StateConnectionSent},
		{"new recruiter not connected", plenty, contact(models.StateNew, rec), Observation{rec, models.StatusNotConnected},
			models.ActionConnect, ReasonConnectRecruiter, models.StateConnectionSent},
		{"connect quota exhausted", empty, nil, Observation{rec, models.StatusNotConnected},
			"", ReasonQuotaExhausted, models.StateNew},
		{"new recruiter already connected", plenty, nil, Observation{rec, models.StatusConnected},
			models.ActionMessage, ReasonAlreadyConnected, models.StateMessaged},
		{"already connected without message quota", empty, nil, Observation{rec, models.StatusConnected},
			"", ReasonQuotaExhausted, models.StateConnected},
		{"invitation pending elsewhere", plenty, nil, Observation{rec, models.StatusPending},
			"", ReasonPendingExternal, models.StateConnectionSent},
		{"status unknown", plenty, nil, Observation{rec, models.StatusUnknown},
			"", ReasonStatusUnknown, models.StateNew},
		{"sent and accepted", plenty, contact(models.StateConnectionSent, rec), Observation{Status: models.StatusConnected},
			models.ActionMessage, ReasonNewlyConnected, models.StateMessaged},
		{"sent and accepted without quota", empty, contact(models.StateConnectionSent, rec), Observation{Status: models.StatusConnected},
			"", ReasonQuotaExhausted, models.StateConnectionSent},
		{"sent still pending", plenty, contact(models.StateConnectionSent, rec), Observation{Status: models.StatusPending},
			"", ReasonAwaitingAcceptance, models.StateConnectionSent},
		{"sent status unknown", plenty, contact(models.StateConnectionSent, rec), Observation{Status: models.StatusUnknown},
			"", ReasonAwaitingAcceptance, models.StateConnectionSent},
		{"connected held for quota", plenty, contact(models.StateConnected, rec), Observation{},
			models.ActionMessage, ReasonAlreadyConnected, models.StateMessaged},
		{"messaged", plenty, contact(models.StateMessaged, rec), Observation{Status: models.StatusConnected},
			"", ReasonAlreadyMessaged, models.StateMessaged},
		{"followed up", plenty, contact(models.StateFollowedUp, rec), Observation{},
			"", ReasonFollowedUp, models.StateFollowedUp},
		{"ambiguous never acts", plenty, nil, Observation{models.ClassAmbiguous, models.StatusNotConnected},
			"", ReasonUnclassified, models.StateNew},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := New(tc.quota, 0).Decide(context.Background(), tc.c, tc.obs)
			require.NoError(t, err)
			assert.Equal(t, tc.action, d.Action)
			assert.Equal(t, tc.reason, d.Reason)
			assert.Equal(t, tc.next, d.NextState)
		})
	}
}

func TestDecide_NotRelevantNeverActs(t *testing.T) {
	e := New(plenty, time.Hour)
	states := []models.RelationshipState{
		models.StateNew, models.StateConnectionSent, models.StateConnected, models.StateMessaged, models.StateFollowedUp,
	}
	statuses := []models.ConnectionStatus{
		models.StatusConnected, models.StatusPending, models.StatusNotConnected, models.StatusUnknown,
	}
	for _, st := range states {
		for _, status := range statuses {
			c := contact(st, models.ClassNotRelevant)
			d, err := e.Decide(context.Background(), c, Observation{Classification: models.ClassNotRelevant, Status: status})
			require.NoError(t, err)
			assert.True(t, d.Skip(), "%s/%s", st, status)
			assert.Equal(t, ReasonNotRelevant, d.Reason)
			assert.Equal(t, st, d.NextState)
		}
	}
	d, err := e.Decide(context.Background(), nil, Observation{Classification: models.ClassNotRelevant, Status: models.StatusNotConnected})
	require.NoError(t, err)
	assert.True(t, d.Skip())
}

func TestDecide_StoredClassificationWinsPastNew(t *testing.T) {
	c := contact(models.StateConnectionSent, models.ClassRecruiter)
	d, err := New(plenty, 0).Decide(context.Background(), c,
		Observation{Classification: models.ClassNotRelevant, Status: models.StatusConnected})
	require.NoError(t, err)
	assert.Equal(t, models.ActionMessage, d.Action)
}

func TestDecide_FreshClassificationAppliesAtNew(t *testing.T) {
	c := contact(models.StateNew, models.ClassNotRelevant)
	c.Basis = models.BasisFallback
	d, err := New(plenty, 0).Decide(context.Background(), c,
		Observation{Classification: models.ClassRecruiter, Status: models.StatusNotConnected})
	require.NoError(t, err)
	assert.Equal(t, models.ActionConnect, d.Action)
}

func TestDecide_FollowUp(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	sent := now.Add(-72 * time.Hour)
	c := contact(models.StateMessaged, models.ClassRecruiter)
	c.LastActionAt = &sent

	d, err := New(plenty, 48*time.Hour).WithClock(func() time.Time { return now }).
		Decide(context.Background(), c, Observation{})
	require.NoError(t, err)
	assert.Equal(t, models.ActionFollowUp, d.Action)
	assert.Equal(t, ReasonFollowUpDue, d.Reason)
	assert.Equal(t, models.StateFollowedUp, d.NextState)

	d, err = New(plenty, 96*time.Hour).WithClock(func() time.Time { return now }).
		Decide(context.Background(), c, Observation{})
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyMessaged, d.Reason)

	d, err = New(empty, 48*time.Hour).WithClock(func() time.Time { return now }).
		Decide(context.Background(), c, Observation{})
	require.NoError(t, err)
	assert.Equal(t, ReasonQuotaExhausted, d.Reason)
	assert.Equal(t, models.StateMessaged, d.NextState)
}

func TestDecide_QuotaErrorPropagates(t *testing.T) {
	boom := errors.New("ledger locked")
	_, err := New(fakeQuota{err: boom}, 0).Decide(context.Background(), nil,
		Observation{models.ClassRecruiter, models.StatusNotConnected})
	assert.ErrorIs(t, err, boom)
}

func TestDecide_UnknownState(t *testing.T) {
	_, err := New(plenty, 0).Decide(context.Background(), contact("ARCHIVED", models.ClassRecruiter), Observation{})
	require.Error(t, err)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "skip(quota_exhausted)", Decision{Reason: ReasonQuotaExhausted}.String())
	assert.Equal(t, "connect(connect_recruiter)->CONNECTION_SENT",
		Decision{Action: models.ActionConnect, Reason: ReasonConnectRecruiter, NextState: models.StateConnectionSent}.String())
}
