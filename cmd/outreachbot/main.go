package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/outreachbot/internal/ai"
	"github.com/example/outreachbot/internal/auth"
	"github.com/example/outreachbot/internal/browser"
	"github.com/example/outreachbot/internal/classifier"
	"github.com/example/outreachbot/internal/config"
	"github.com/example/outreachbot/internal/connection"
	"github.com/example/outreachbot/internal/engine"
	"github.com/example/outreachbot/internal/governor"
	"github.com/example/outreachbot/internal/logging"
	"github.com/example/outreachbot/internal/messaging"
	"github.com/example/outreachbot/internal/models"
	"github.com/example/outreachbot/internal/orchestrator"
	"github.com/example/outreachbot/internal/report"
	"github.com/example/outreachbot/internal/resume"
	"github.com/example/outreachbot/internal/search"
	"github.com/example/outreachbot/internal/statusapi"
	"github.com/example/outreachbot/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to config file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `outreachbot - recruiter outreach for target companies

Usage:
  outreachbot [--config config.yaml] <command> [options]

Commands:
  login                                  Ensure a logged in session (with cookie reuse)
  run [--companies FILE] [--status-addr ADDR]
                                         Re-check contacts in flight, then discover and contact recruiters
  status                                 Show today's counters and ledger summary
  export [--out FILE]                    Write the audit log to CSV
  serve [--addr ADDR]                    Serve the read-only status API and /metrics
`)
	}

	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging.Level)
	log.Info("config loaded", "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Error("ledger open failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.Error("ledger migration failed", "err", err)
		st.Close()
		os.Exit(1)
	}
	gov := governor.New(st, limits(cfg))

	cmd := flag.Arg(0)
	args := flag.Args()[1:]
	switch cmd {
	case "login":
		err = runLogin(ctx, cfg, log)
	case "run":
		err = runOutreach(ctx, cfg, st, gov, log, args)
	case "status":
		err = runStatus(ctx, st, gov)
	case "export":
		err = runExport(ctx, cfg, st, args)
	case "serve":
		err = runServe(ctx, cfg, st, gov, log, args)
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Error("command failed", "cmd", cmd, "err", err)
		fmt.Fprintln(os.Stderr, failStyle.Render("Command failed: "+err.Error()))
		st.Close()
		os.Exit(1)
	}
	log.Info("command completed", "cmd", cmd)
}

func limits(cfg *config.Config) governor.Limits {
	return governor.Limits{
		MaxConnectionsPerDay: cfg.Limits.MaxConnectionsPerDay,
		MaxMessagesPerDay:    cfg.Limits.MaxMessagesPerDay,
		MinDelay:             cfg.MinDelay(),
		MaxDelay:             cfg.MaxDelay(),
		BreakAfterActions:    cfg.Pacing.BreakAfterActions,
		BreakDuration:        time.Duration(cfg.Pacing.BreakSeconds) * time.Second,
		ActiveStart:          cfg.Pacing.ActiveStart,
		ActiveEnd:            cfg.Pacing.ActiveEnd,
	}
}

func runLogin(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	br, err := browser.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer br.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	return auth.New(br, log).EnsureLoggedIn(ctx)
}

// linkedIn joins the rod services into the orchestrator's browser boundary.
type linkedIn struct {
	search *search.Service
	conn   *connection.Service
	msg    *messaging.Service
}

var _ orchestrator.Browser = linkedIn{}

func (l linkedIn) SearchProfiles(ctx context.Context, company string, titles []string, limit int) ([]models.RawProfile, error) {
	return l.search.SearchProfiles(ctx, company, titles, limit)
}

func (l linkedIn) OpenProfileDetail(ctx context.Context, identity string) (string, error) {
	return l.search.OpenProfileDetail(ctx, identity)
}

func (l linkedIn) ConnectionStatus(ctx context.Context, identity string) (models.ConnectionStatus, error) {
	return l.search.ConnectionStatus(ctx, identity)
}

func (l linkedIn) SendConnectionRequest(ctx context.Context, identity, note string) error {
	return l.conn.SendConnectionRequest(ctx, identity, note)
}

func (l linkedIn) SendMessage(ctx context.Context, identity, text string) error {
	return l.msg.SendMessage(ctx, identity, text)
}

func runOutreach(ctx context.Context, cfg *config.Config, st *store.Store, gov *governor.Governor, log *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	companiesFile := fs.String("companies", cfg.Outreach.CompaniesFile, "File with one company per line")
	statusAddr := fs.String("status-addr", cfg.Status.Addr, "Serve the status API while running (empty disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	companies, err := config.LoadCompanies(*companiesFile)
	if err != nil {
		return err
	}
	summary, err := resume.Load(cfg.Resume.Path)
	if err != nil {
		return err
	}
	log.Info("resume loaded", "skills", summary.Skills, "years_experience", summary.YearsExperience)

	var (
		deep classifier.AI
		gen  ai.Generator
	)
	if cfg.AI.APIKey != "" {
		client, err := ai.New(ai.Options{
			APIKey:            cfg.AI.APIKey,
			BaseURL:           cfg.AI.BaseURL,
			Model:             cfg.AI.Model,
			Timeout:           time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
			MaxRetries:        cfg.AI.MaxRetries,
			RequestsPerMinute: cfg.AI.RequestsPerMinute,
			FailureThreshold:  cfg.AI.FailureThreshold,
		}, log)
		if err != nil {
			return err
		}
		deep, gen = client, client
	} else {
		log.Warn("GEMINI_API_KEY not set: ambiguous profiles fall back to not relevant and messages use templates")
	}

	br, err := browser.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer br.Close()
	if err := auth.New(br, log).EnsureLoggedIn(ctx); err != nil {
		return err
	}

	orch := orchestrator.New(
		st,
		gov,
		engine.New(gov, time.Duration(cfg.Outreach.FollowUpAfterDays)*24*time.Hour),
		classifier.New(cfg.Classifier.RecruiterTitles, cfg.Classifier.NegativeTitles, deep, log),
		linkedIn{search: search.New(br, log), conn: connection.New(br, log), msg: messaging.New(br, log)},
		ai.NewComposer(gen, summary, log),
		orchestrator.Options{
			Titles:                cfg.Classifier.RecruiterTitles,
			MaxProfilesPerCompany: cfg.Outreach.MaxProfilesPerCompany,
			CrashRecovery:         cfg.Outreach.CrashRecovery,
		},
		log,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	var rep orchestrator.Report
	g.Go(func() error {
		// the status server lives only as long as the pass
		defer cancel()
		var err error
		rep, err = orch.Run(gctx, companies)
		return err
	})
	if *statusAddr != "" {
		g.Go(func() error {
			return statusapi.Serve(gctx, *statusAddr, &statusapi.Handler{Store: st, Governor: gov}, log)
		})
	}
	runErr := g.Wait()

	if n, err := report.ExportFile(context.WithoutCancel(ctx), st, cfg.Audit.CSVPath); err != nil {
		log.Warn("audit csv export failed", "path", cfg.Audit.CSVPath, "err", err)
	} else {
		log.Info("audit csv written", "path", cfg.Audit.CSVPath, "rows", n)
	}
	printRun(rep)
	if s, err := report.Snapshot(context.WithoutCancel(ctx), st, gov); err == nil {
		printStatus(s)
	}

	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		log.Info("run interrupted by signal")
		return nil
	}
	return runErr
}

func runStatus(ctx context.Context, st *store.Store, gov *governor.Governor) error {
	s, err := report.Snapshot(ctx, st, gov)
	if err != nil {
		return err
	}
	printStatus(s)
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, st *store.Store, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("out", cfg.Audit.CSVPath, "CSV file to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, err := report.ExportFile(ctx, st, *out)
	if err != nil {
		return err
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("Exported %d audit rows to %s", n, *out)))
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, st *store.Store, gov *governor.Governor, log *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	def := cfg.Status.Addr
	if def == "" {
		def = ":9090"
	}
	addr := fs.String("addr", def, "Listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return statusapi.Serve(ctx, *addr, &statusapi.Handler{Store: st, Governor: gov}, log)
}
