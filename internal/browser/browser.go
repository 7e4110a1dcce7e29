package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/example/outreachbot/internal/config"
	"github.com/example/outreachbot/internal/logging"
)

// Browser owns the rod session. All automation is sequential, so a single
// working page is shared by every caller.
type Browser struct {
	Rod     *rod.Browser
	Cfg     *config.Config
	log     *logging.Logger
	baseURL string

	mu   sync.Mutex
	page *rod.Page
}

func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Browser, error) {
	// leakless trips antivirus heuristics on Windows
	l := launcher.New().Leakless(false).Headless(cfg.Browser.Headless)
	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	rb := rod.New().ControlURL(url).Context(ctx)
	if err := rb.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	if err := rb.IgnoreCertErrors(true); err != nil {
		_ = rb.Close()
		return nil, err
	}
	base := cfg.Browser.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	b := &Browser{Rod: rb, Cfg: cfg, log: log.With("module", "browser"), baseURL: base}
	b.log.Info("browser started", "headless", cfg.Browser.Headless)
	return b, nil
}

// URL joins path onto the configured site root.
func (b *Browser) URL(path string) string {
	return b.baseURL + strings.TrimLeft(path, "/")
}

// Page returns the shared working page bound to ctx, opening it on first use.
func (b *Browser) Page(ctx context.Context) (*rod.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page == nil {
		p, err := b.Rod.Page(proto.TargetCreateTarget{URL: ""})
		if err != nil {
			return nil, fmt.Errorf("open page: %w", err)
		}
		b.page = p
	}
	return b.page.Context(ctx), nil
}

// Open navigates the shared page to url and waits for the load event.
func (b *Browser) Open(ctx context.Context, url string) (*rod.Page, error) {
	p, err := b.Page(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.Timeout(45 * time.Second).WaitLoad(); err != nil {
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	return p, nil
}

func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.page != nil {
		_ = b.page.Close()
		b.page = nil
	}
	if b.Rod != nil {
		_ = b.Rod.Close()
	}
}

// Pause waits d unless ctx ends first. Used for page settling, not pacing.
func Pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FindButton returns the first visible button whose text matches one of the
// regexes or whose aria-label contains one of the labels.
func FindButton(p *rod.Page, d time.Duration, textRes []string, ariaLabels []string) (*rod.Element, error) {
	for _, label := range ariaLabels {
		if el, err := p.Timeout(d).Element(fmt.Sprintf(`button[aria-label*=%q]`, label)); err == nil {
			return el, nil
		}
	}
	for _, re := range textRes {
		if el, err := p.Timeout(d).ElementR("button", re); err == nil {
			return el, nil
		}
	}
	return nil, fmt.Errorf("button not found (text %v, aria %v)", textRes, ariaLabels)
}

func Click(el *rod.Element) error {
	if err := el.ScrollIntoView(); err != nil {
		return err
	}
	if err := el.WaitVisible(); err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// HasElement checks if an element exists
func HasElement(p *rod.Page, sel string) bool {
	_, err := p.Timeout(2 * time.Second).Element(sel)
	return err == nil
}

// Text returns the trimmed text of the first element matching one of sels.
func Text(p *rod.Page, d time.Duration, sels ...string) string {
	for _, sel := range sels {
		el, err := p.Timeout(d).Element(sel)
		if err != nil {
			continue
		}
		if t, err := el.Text(); err == nil && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	return ""
}

// ScreenshotOnError saves a screenshot under .cache/screens and returns err
// unchanged.
func ScreenshotOnError(p *rod.Page, prefix string, err error) error {
	if p == nil || err == nil {
		return err
	}
	dir := filepath.Join(".cache", "screens")
	_ = os.MkdirAll(dir, 0o755)
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.png", prefix, time.Now().Unix()))
	if bts, shotErr := p.Screenshot(true, &proto.PageCaptureScreenshot{}); shotErr == nil {
		_ = os.WriteFile(path, bts, 0o644)
	}
	return err
}
