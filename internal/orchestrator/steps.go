package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/example/outreachbot/internal/config"
	"github.com/example/outreachbot/internal/engine"
	"github.com/example/outreachbot/internal/metrics"
	"github.com/example/outreachbot/internal/models"
	"github.com/example/outreachbot/internal/store"
)

// Step pairs a contact with the decision taken for it in this pass.
type Step struct {
	Contact  models.Contact
	Profile  models.ProfileText
	Status   models.ConnectionStatus
	Decision engine.Decision

	// fresh marks a contact discovered at NEW whose ledger row has not been
	// written in this pass yet.
	fresh bool
}

// actionTimeout bounds one send at the browser boundary. A stop request does
// not interrupt a send in progress.
const actionTimeout = 2 * time.Minute

// Rescan yields a step for every contact already past NEW and still open,
// then for every recruiter held at NEW by an earlier pass (quota, unknown
// status, a dropped crash journal entry). Steps are computed lazily from the
// ledger so each decision sees the counters left by the previous one; held
// contacts stop being yielded once both quotas are spent. Identities in seen
// are skipped and added as visited; seen may be nil.
func (o *Orchestrator) Rescan(ctx context.Context, seen map[string]bool) iter.Seq2[Step, error] {
	if seen == nil {
		seen = map[string]bool{}
	}
	return func(yield func(Step, error) bool) {
		tracked, err := o.st.ListByStates(ctx, models.StateConnectionSent, models.StateConnected, models.StateMessaged)
		if err != nil {
			yield(Step{}, fmt.Errorf("list tracked contacts: %w", err))
			return
		}
		held, err := o.st.ListByStates(ctx, models.StateNew)
		if err != nil {
			yield(Step{}, fmt.Errorf("list held contacts: %w", err))
			return
		}
		for _, c := range append(tracked, held...) {
			if err := ctx.Err(); err != nil {
				yield(Step{}, err)
				return
			}
			if seen[c.Identity] {
				continue
			}
			if c.RelationshipState == models.StateNew {
				if c.Classification != models.ClassRecruiter {
					continue
				}
				spent, err := o.quotaSpent(ctx)
				if err != nil {
					yield(Step{}, err)
					return
				}
				if spent {
					return
				}
			}
			seen[c.Identity] = true
			step, err := o.recheck(ctx, c)
			if !yield(step, err) || err != nil {
				return
			}
		}
	}
}

func profileOf(c models.Contact) models.ProfileText {
	return models.ProfileText{Name: c.DisplayName, Headline: c.TitleText, Company: c.Company}
}

// recheck decides for a contact already in the ledger. Only NEW and
// CONNECTION_SENT need a fresh look at the profile; the stored classification
// is kept.
func (o *Orchestrator) recheck(ctx context.Context, c models.Contact) (Step, error) {
	obs := engine.Observation{Classification: c.Classification, Status: models.StatusUnknown}
	if c.RelationshipState == models.StateNew || c.RelationshipState == models.StateConnectionSent {
		obs.Status = o.status(ctx, c.Identity)
		if err := ctx.Err(); err != nil {
			return Step{}, err
		}
	}
	d, err := o.eng.Decide(ctx, &c, obs)
	if err != nil {
		return Step{}, err
	}
	return Step{Contact: c, Profile: profileOf(c), Status: obs.Status, Decision: d}, nil
}

func (o *Orchestrator) status(ctx context.Context, identity string) models.ConnectionStatus {
	st, err := o.br.ConnectionStatus(ctx, identity)
	if err != nil {
		o.log.Warn("connection status unavailable", "identity", identity, "err", err)
		return models.StatusUnknown
	}
	return st
}

func needsClassification(c models.Contact) bool {
	switch c.Classification {
	case "", models.ClassAmbiguous:
		return true
	case models.ClassNotRelevant:
		return !c.Terminal()
	}
	return false
}

// discover records a profile found by search and decides for it.
func (o *Orchestrator) discover(ctx context.Context, company string, rp models.RawProfile) (Step, error) {
	cur, found, err := o.st.Lookup(ctx, rp.Identity)
	if err != nil {
		return Step{}, err
	}
	if found && cur.RelationshipState != models.StateNew {
		return o.recheck(ctx, cur)
	}

	pt := models.ProfileText{Name: rp.Name, Headline: rp.HeadlineText, Company: company}
	c := models.Contact{
		Identity:          rp.Identity,
		DisplayName:       rp.Name,
		Company:           company,
		TitleText:         rp.HeadlineText,
		RelationshipState: models.StateNew,
	}
	if found && !needsClassification(cur) {
		c.Classification, c.Basis = cur.Classification, cur.Basis
	} else {
		res := o.cls.Classify(ctx, pt, func(ctx context.Context) (string, error) {
			text, err := o.br.OpenProfileDetail(ctx, rp.Identity)
			if err == nil {
				pt.FullText = text
			}
			return text, err
		})
		if err := ctx.Err(); err != nil {
			return Step{}, err
		}
		c.Classification, c.Basis = res.Classification, res.Basis
	}

	status := rp.ConnectionStatus
	if c.Classification == models.ClassRecruiter && (status == "" || status == models.StatusUnknown) {
		status = o.status(ctx, rp.Identity)
		if err := ctx.Err(); err != nil {
			return Step{}, err
		}
	}
	d, err := o.eng.Decide(ctx, &c, engine.Observation{Classification: c.Classification, Status: status})
	if err != nil {
		return Step{}, err
	}
	return Step{Contact: c, Profile: pt, Status: status, Decision: d, fresh: true}, nil
}

// apply carries out one step. Skips persist the decided state in a single
// write; actions go through the journal so a crash mid-action is detectable.
func (o *Orchestrator) apply(ctx context.Context, r *run, step Step) error {
	c, d := step.Contact, step.Decision
	r.report.Processed++
	r.report.Reasons[d.Reason]++
	log := o.log.With("run_id", r.id, "identity", c.Identity, "company", c.Company,
		"classification", c.Classification, "status", step.Status, "reason", d.Reason)

	if d.Skip() {
		r.report.Skipped++
		advance := d.NextState.Rank() > c.RelationshipState.Rank()
		if advance {
			c.RelationshipState = d.NextState
		}
		if step.fresh || advance {
			if _, err := o.st.Upsert(ctx, c); err != nil {
				return err
			}
		}
		log.Info("decision", "decision", "none", "outcome", "skipped", "state", d.NextState)
		return nil
	}
	return o.execute(ctx, r, step, log)
}

func (o *Orchestrator) execute(ctx context.Context, r *run, step Step, log *slog.Logger) error {
	c, d := step.Contact, step.Decision
	// the row must exist before the journal entry so recovery can find it
	if step.fresh {
		if _, err := o.st.Upsert(ctx, c); err != nil {
			return err
		}
	}
	text := o.compose(ctx, step)
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := store.ActionRecord{
		RunID:         r.id,
		Identity:      c.Identity,
		Company:       c.Company,
		Kind:          d.Action,
		NextState:     d.NextState,
		MessageDigest: models.Digest(text),
		At:            o.gov.Now(),
		Day:           o.gov.Today(),
	}
	if err := o.st.BeginAction(ctx, rec); err != nil {
		return err
	}

	// once journaled the action runs to completion and its outcome is
	// committed even if the run is being stopped
	wctx := context.WithoutCancel(ctx)
	sctx, cancel := context.WithTimeout(wctx, actionTimeout)
	start := time.Now()
	var sendErr error
	if d.Action == models.ActionConnect {
		sendErr = o.br.SendConnectionRequest(sctx, c.Identity, text)
	} else {
		sendErr = o.br.SendMessage(sctx, c.Identity, text)
	}
	cancel()
	metrics.ActionLatency.WithLabelValues(string(d.Action)).Observe(time.Since(start).Seconds())

	if sendErr != nil {
		if err := o.st.AbortAction(wctx, rec, sendErr); err != nil {
			return err
		}
		r.report.Failed++
		metrics.ActionsTotal.WithLabelValues(string(d.Action), "failed").Inc()
		log.Warn("decision", "decision", d.Action, "outcome", "failed", "state", c.RelationshipState, "err", sendErr)
		if err := ctx.Err(); err != nil {
			return err
		}
		return o.pace(ctx, r, false)
	}
	if err := o.st.MarkAction(wctx, rec); err != nil {
		return fmt.Errorf("record %s for %s: %w", d.Action, c.Identity, err)
	}
	r.report.Executed++
	metrics.ActionsTotal.WithLabelValues(string(d.Action), "executed").Inc()
	log.Info("decision", "decision", d.Action, "outcome", "executed", "state", d.NextState)
	return o.pace(ctx, r, true)
}

func (o *Orchestrator) compose(ctx context.Context, step Step) string {
	p := step.Profile
	switch step.Decision.Action {
	case models.ActionConnect:
		return o.comp.Note(ctx, p)
	case models.ActionFollowUp:
		return o.comp.FollowUp(ctx, p)
	}
	if p.FullText == "" {
		text, err := o.br.OpenProfileDetail(ctx, step.Contact.Identity)
		if err != nil {
			o.log.Warn("profile detail unavailable, composing from headline", "identity", step.Contact.Identity, "err", err)
		} else {
			p.FullText = text
		}
	}
	return o.comp.Message(ctx, p)
}

// pace waits out the randomized gap after an action, plus the long break
// when enough actions have gone out.
func (o *Orchestrator) pace(ctx context.Context, r *run, executed bool) error {
	d := o.gov.NextDelay()
	if executed {
		if brk, ok := o.gov.BreakDue(r.report.Executed); ok {
			o.log.Info("taking a break", "executed", r.report.Executed, "break", brk.String())
			d += brk
		}
	}
	o.log.Debug("pacing", "delay", d.String())
	return o.sleep(ctx, d)
}

// recoverPending settles actions journaled by a run that never recorded
// their outcome.
func (o *Orchestrator) recoverPending(ctx context.Context, r *run) error {
	pending, err := o.st.PendingActions(ctx)
	if err != nil {
		return fmt.Errorf("read pending actions: %w", err)
	}
	for _, p := range pending {
		log := o.log.With("identity", p.Identity, "action", p.Kind, "policy", o.opts.CrashRecovery, "started_at", p.StartedAt)
		if o.opts.CrashRecovery == config.RecoveryAssumeDone {
			err := o.st.MarkAction(ctx, store.ActionRecord{
				RunID: p.RunID, Identity: p.Identity, Company: p.Company, Kind: p.Kind,
				NextState: p.NextState, At: p.StartedAt, Day: p.Day,
			})
			switch {
			case errors.Is(err, store.ErrRegression):
				if err := o.st.DropPending(ctx, p, "contact already past "+string(p.NextState)); err != nil {
					return err
				}
				log.Warn("unrecorded action dropped, contact already moved past it", "next_state", p.NextState)
			case err != nil:
				return fmt.Errorf("recover %s: %w", p.Identity, err)
			default:
				log.Warn("unrecorded action assumed done")
			}
		} else {
			if err := o.st.DropPending(ctx, p, "unrecorded action, eligible for re-attempt"); err != nil {
				return err
			}
			log.Warn("unrecorded action will be re-attempted")
		}
		r.report.Recovered++
	}
	return nil
}
