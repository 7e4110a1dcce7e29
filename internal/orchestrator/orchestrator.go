// Package orchestrator runs one outreach pass: it re-checks contacts already
// in flight, discovers new profiles per company, and executes whatever the
// decision engine permits, one contact at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/outreachbot/internal/classifier"
	"github.com/example/outreachbot/internal/config"
	"github.com/example/outreachbot/internal/engine"
	"github.com/example/outreachbot/internal/governor"
	"github.com/example/outreachbot/internal/models"
	"github.com/example/outreachbot/internal/store"
)

// Browser is the automation boundary.
type Browser interface {
	SearchProfiles(ctx context.Context, company string, titles []string, limit int) ([]models.RawProfile, error)
	OpenProfileDetail(ctx context.Context, identity string) (string, error)
	ConnectionStatus(ctx context.Context, identity string) (models.ConnectionStatus, error)
	SendConnectionRequest(ctx context.Context, identity, note string) error
	SendMessage(ctx context.Context, identity, text string) error
}

// Composer writes outreach text. It never fails; *ai.Composer implements it.
type Composer interface {
	Note(ctx context.Context, p models.ProfileText) string
	Message(ctx context.Context, p models.ProfileText) string
	FollowUp(ctx context.Context, p models.ProfileText) string
}

type Options struct {
	Titles                []string
	MaxProfilesPerCompany int
	CrashRecovery         string
}

type Orchestrator struct {
	st    *store.Store
	gov   *governor.Governor
	eng   *engine.Engine
	cls   *classifier.Classifier
	br    Browser
	comp  Composer
	opts  Options
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func New(st *store.Store, gov *governor.Governor, eng *engine.Engine, cls *classifier.Classifier,
	br Browser, comp Composer, opts Options, log *slog.Logger) *Orchestrator {
	if opts.CrashRecovery == "" {
		opts.CrashRecovery = config.RecoveryReattempt
	}
	return &Orchestrator{
		st: st, gov: gov, eng: eng, cls: cls, br: br, comp: comp, opts: opts,
		log:   log.With("module", "orchestrator"),
		sleep: governor.Sleep,
	}
}

// Report summarizes one pass.
type Report struct {
	RunID     string
	Processed int
	Executed  int
	Failed    int
	Skipped   int
	Recovered int
	Reasons   map[engine.Reason]int
	Stopped   bool
}

func (r Report) String() string {
	return fmt.Sprintf("processed=%d executed=%d failed=%d skipped=%d recovered=%d",
		r.Processed, r.Executed, r.Failed, r.Skipped, r.Recovered)
}

// run carries the per-pass state.
type run struct {
	id     string
	seen   map[string]bool
	report *Report
}

// Run executes one full pass. It returns the context error when stopped
// early; whatever was already committed stays committed.
func (o *Orchestrator) Run(ctx context.Context, companies []string) (Report, error) {
	r := &run{id: uuid.NewString(), seen: map[string]bool{}}
	r.report = &Report{RunID: r.id, Reasons: map[engine.Reason]int{}}
	log := o.log.With("run_id", r.id)

	if err := o.st.StartRun(ctx, r.id, o.gov.Now()); err != nil {
		return *r.report, fmt.Errorf("start run: %w", err)
	}
	defer func() {
		if err := o.st.FinishRun(context.WithoutCancel(ctx), r.id, o.gov.Now(), r.report.String()); err != nil {
			log.Warn("finish run failed", "err", err)
		}
	}()

	if !o.gov.InActiveWindow() {
		log.Warn("currently outside configured active window, continuing anyway", "current_time", o.gov.Now().Format("15:04"))
	}
	log.Info("run started", "companies", len(companies))

	if err := o.recoverPending(ctx, r); err != nil {
		return *r.report, err
	}

	err := o.pass(ctx, r, companies)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.report.Stopped = true
		log.Info("run stopped between contacts", "report", r.report.String())
		return *r.report, err
	}
	if err != nil {
		return *r.report, err
	}
	log.Info("run finished", "report", r.report.String())
	return *r.report, nil
}

func (o *Orchestrator) pass(ctx context.Context, r *run, companies []string) error {
	for step, err := range o.Rescan(ctx, r.seen) {
		if err != nil {
			return err
		}
		if err := o.apply(ctx, r, step); err != nil {
			return err
		}
	}

	for _, company := range companies {
		if err := ctx.Err(); err != nil {
			return err
		}
		if done, err := o.quotaSpent(ctx); err != nil {
			return err
		} else if done {
			o.log.Info("daily limits reached, ending discovery")
			return nil
		}
		if stats, err := o.st.CompanyStats(ctx, company); err == nil && stats.TotalContacted > 0 {
			o.log.Info("company already contacted", "company", company, "contacts", stats.TotalContacted)
		}
		profiles, err := o.br.SearchProfiles(ctx, company, o.opts.Titles, o.opts.MaxProfilesPerCompany)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.log.Warn("search failed, skipping company", "company", company, "err", err)
			continue
		}
		for _, rp := range profiles {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := models.CanonicalIdentity(rp.Identity)
			if id == "" || r.seen[id] {
				continue
			}
			r.seen[id] = true
			rp.Identity = id
			step, err := o.discover(ctx, company, rp)
			if err != nil {
				return err
			}
			if err := o.apply(ctx, r, step); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) quotaSpent(ctx context.Context) (bool, error) {
	conn, err := o.gov.Remaining(ctx, models.ActionConnect)
	if err != nil {
		return false, err
	}
	msg, err := o.gov.Remaining(ctx, models.ActionMessage)
	if err != nil {
		return false, err
	}
	return conn == 0 && msg == 0, nil
}
