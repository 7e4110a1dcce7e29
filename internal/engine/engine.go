// Package engine is the outreach decision engine. Given a contact's ledger
// row (or its absence) and what was just observed about it, it decides which
// action is permitted and which state the ledger should hold afterwards.
// It keeps no state of its own and never blocks on external services.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/example/outreachbot/internal/metrics"
	"github.com/example/outreachbot/internal/models"
)

type Reason string

const (
	ReasonConnectRecruiter   Reason = "connect_recruiter"
	ReasonAlreadyConnected   Reason = "already_connected"
	ReasonNewlyConnected     Reason = "newly_connected"
	ReasonFollowUpDue        Reason = "follow_up_due"
	ReasonNotRelevant        Reason = "not_relevant"
	ReasonUnclassified       Reason = "unclassified"
	ReasonQuotaExhausted     Reason = "quota_exhausted"
	ReasonPendingExternal    Reason = "pending_external"
	ReasonAwaitingAcceptance Reason = "awaiting_acceptance"
	ReasonStatusUnknown      Reason = "status_unknown"
	ReasonAlreadyMessaged    Reason = "already_messaged"
	ReasonFollowedUp         Reason = "followed_up"
)

// Decision is the engine's verdict for one contact. An empty Action is a
// skip; NextState is what the ledger should hold once the action (if any)
// succeeds, or immediately for a skip.
type Decision struct {
	Action    models.ActionKind
	Reason    Reason
	NextState models.RelationshipState
}

func (d Decision) Skip() bool { return d.Action == "" }

func (d Decision) String() string {
	if d.Skip() {
		return fmt.Sprintf("skip(%s)", d.Reason)
	}
	return fmt.Sprintf("%s(%s)->%s", d.Action, d.Reason, d.NextState)
}

// Observation is what the current pass learned about a contact.
type Observation struct {
	Classification models.Classification
	Status         models.ConnectionStatus
}

// Quota is the safety governor as seen by the engine.
type Quota interface {
	CanPerform(ctx context.Context, kind models.ActionKind) (bool, error)
}

type Engine struct {
	quota         Quota
	followUpAfter time.Duration
	now           func() time.Time
}

// New creates an engine. followUpAfter of zero disables follow-ups, which
// makes MESSAGED terminal.
func New(quota Quota, followUpAfter time.Duration) *Engine {
	return &Engine{quota: quota, followUpAfter: followUpAfter, now: time.Now}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Decide applies the outreach state machine. c is nil for a contact that has
// no ledger row yet. Past NEW, the stored classification is authoritative and
// obs.Classification is ignored.
func (e *Engine) Decide(ctx context.Context, c *models.Contact, obs Observation) (Decision, error) {
	d, err := e.decide(ctx, c, obs)
	if err != nil {
		return Decision{}, err
	}
	action := string(d.Action)
	if d.Skip() {
		action = "none"
	}
	metrics.DecisionsTotal.WithLabelValues(action, string(d.Reason)).Inc()
	return d, nil
}

func (e *Engine) decide(ctx context.Context, c *models.Contact, obs Observation) (Decision, error) {
	state := models.StateNew
	cls := obs.Classification
	if c != nil {
		state = c.RelationshipState
		if state != models.StateNew || cls == "" {
			cls = c.Classification
		}
	}

	skip := func(r Reason, next models.RelationshipState) (Decision, error) {
		return Decision{Reason: r, NextState: next}, nil
	}

	if cls == models.ClassNotRelevant {
		return skip(ReasonNotRelevant, state)
	}
	if cls != models.ClassRecruiter {
		return skip(ReasonUnclassified, state)
	}

	switch state {
	case models.StateNew:
		switch obs.Status {
		case models.StatusConnected:
			return e.ifQuota(ctx, models.ActionMessage, ReasonAlreadyConnected, models.StateMessaged, models.StateConnected)
		case models.StatusPending:
			return skip(ReasonPendingExternal, models.StateConnectionSent)
		case models.StatusNotConnected:
			return e.ifQuota(ctx, models.ActionConnect, ReasonConnectRecruiter, models.StateConnectionSent, models.StateNew)
		default:
			return skip(ReasonStatusUnknown, models.StateNew)
		}
	case models.StateConnectionSent:
		if obs.Status == models.StatusConnected {
			return e.ifQuota(ctx, models.ActionMessage, ReasonNewlyConnected, models.StateMessaged, models.StateConnectionSent)
		}
		return skip(ReasonAwaitingAcceptance, models.StateConnectionSent)
	case models.StateConnected:
		return e.ifQuota(ctx, models.ActionMessage, ReasonAlreadyConnected, models.StateMessaged, models.StateConnected)
	case models.StateMessaged:
		if e.followUpDue(c) {
			return e.ifQuota(ctx, models.ActionFollowUp, ReasonFollowUpDue, models.StateFollowedUp, models.StateMessaged)
		}
		return skip(ReasonAlreadyMessaged, models.StateMessaged)
	case models.StateFollowedUp:
		return skip(ReasonFollowedUp, models.StateFollowedUp)
	}
	return Decision{}, fmt.Errorf("decide: unknown relationship state %q", state)
}

// ifQuota proposes kind when today's quota allows it; otherwise it skips and
// leaves the contact in held.
func (e *Engine) ifQuota(ctx context.Context, kind models.ActionKind, r Reason, next, held models.RelationshipState) (Decision, error) {
	ok, err := e.quota.CanPerform(ctx, kind)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Reason: ReasonQuotaExhausted, NextState: held}, nil
	}
	return Decision{Action: kind, Reason: r, NextState: next}, nil
}

func (e *Engine) followUpDue(c *models.Contact) bool {
	if e.followUpAfter <= 0 || c == nil || c.LastActionAt == nil {
		return false
	}
	return e.now().Sub(*c.LastActionAt) >= e.followUpAfter
}
