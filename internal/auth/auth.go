package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/example/outreachbot/internal/browser"
	"github.com/example/outreachbot/internal/logging"
)

// ErrAuthFailed is fatal: the run cannot continue without a session.
var ErrAuthFailed = errors.New("authentication failed")

const maxLoginAttempts = 3

type Auth struct {
	br          *browser.Browser
	log         *logging.Logger
	cookiesPath string
}

func New(br *browser.Browser, log *logging.Logger) *Auth {
	return &Auth{br: br, log: log.With("module", "auth"), cookiesPath: filepath.Join(".cache", "cookies.json")}
}

// EnsureLoggedIn reuses saved cookies when they still hold a session and
// otherwise logs in with LINKEDIN_EMAIL / LINKEDIN_PASSWORD. Repeated login
// failure returns ErrAuthFailed.
func (a *Auth) EnsureLoggedIn(ctx context.Context) error {
	p, err := a.br.Page(ctx)
	if err != nil {
		return err
	}
	if err := a.loadCookies(p); err == nil {
		if a.validateSession(ctx) {
			a.log.Info("session validated using cookies")
			return nil
		}
	}
	email := os.Getenv("LINKEDIN_EMAIL")
	pass := os.Getenv("LINKEDIN_PASSWORD")
	if email == "" || pass == "" {
		return fmt.Errorf("%w: missing LINKEDIN_EMAIL or LINKEDIN_PASSWORD env", ErrAuthFailed)
	}

	var lastErr error
	for attempt := 1; attempt <= maxLoginAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = a.login(ctx, email, pass)
		if lastErr == nil {
			if err := a.saveCookies(p); err != nil {
				a.log.Warn("save cookies failed", "err", err)
			}
			return nil
		}
		if errors.Is(lastErr, errCheckpoint) {
			break
		}
		a.log.Warn("login attempt failed", "attempt", attempt, "max_attempts", maxLoginAttempts, "err", lastErr)
		if err := browser.Pause(ctx, time.Duration(attempt)*5*time.Second); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrAuthFailed, lastErr)
}

var errCheckpoint = errors.New("login blocked by checkpoint/verification; log in manually in the browser first")

func (a *Auth) login(ctx context.Context, email, pass string) error {
	a.log.Info("attempting login", "email", email)
	p, err := a.br.Open(ctx, a.br.URL("login"))
	if err != nil {
		return err
	}

	usernameInput, err := p.Timeout(5 * time.Second).Element("input#username")
	if err != nil {
		a.log.Info("trying alternative login URL")
		if p, err = a.br.Open(ctx, a.br.URL("uas/login")); err != nil {
			return err
		}
		usernameInput, err = p.Timeout(5 * time.Second).Element("input#username")
		if err != nil {
			return browser.ScreenshotOnError(p, "login_page_fail", fmt.Errorf("username input not found: %w", err))
		}
	}
	if err := usernameInput.Input(email); err != nil {
		return fmt.Errorf("input email: %w", err)
	}
	passwordInput, err := p.Timeout(5 * time.Second).Element("input#password")
	if err != nil {
		return fmt.Errorf("password input not found: %w", err)
	}
	if err := passwordInput.Input(pass); err != nil {
		return fmt.Errorf("input password: %w", err)
	}
	submitBtn, err := p.Timeout(5 * time.Second).Element("button[type='submit']")
	if err != nil {
		return fmt.Errorf("submit button not found: %w", err)
	}
	if err := browser.Click(submitBtn); err != nil {
		return fmt.Errorf("click submit: %w", err)
	}
	if err := browser.Pause(ctx, 5*time.Second); err != nil {
		return err
	}

	info, err := p.Info()
	if err != nil {
		return err
	}
	currentURL := info.URL
	if strings.Contains(currentURL, "/feed") {
		a.log.Info("login successful", "detection_method", "feed url")
		return nil
	}
	checks := []struct{ method, sel string }{
		{"search box", "input[placeholder*='Search'], input[aria-label*='Search']"},
		{"navigation bar", "nav.global-nav, header.global-alert-offset"},
		{"profile menu", "[data-control-name='identity_profile_photo'], .global-nav__me-photo"},
	}
	for _, c := range checks {
		if browser.HasElement(p, c.sel) {
			a.log.Info("login successful", "detection_method", c.method, "url", currentURL)
			return nil
		}
	}

	if msg := browser.Text(p, 2*time.Second, ".alert--error", ".form__label--error"); msg != "" {
		return browser.ScreenshotOnError(p, "login_error", fmt.Errorf("login rejected: %s", msg))
	}
	if browser.HasElement(p, "[data-test-id='checkpoint'], .challenge-dialog") || strings.Contains(currentURL, "checkpoint") {
		return browser.ScreenshotOnError(p, "login_checkpoint", errCheckpoint)
	}
	return browser.ScreenshotOnError(p, "login_unknown", fmt.Errorf("could not verify login, still at %s", currentURL))
}

func (a *Auth) validateSession(ctx context.Context) bool {
	p, err := a.br.Open(ctx, a.br.URL("feed/"))
	if err != nil {
		return false
	}
	info, err := p.Info()
	if err != nil || strings.Contains(info.URL, "/login") || strings.Contains(info.URL, "authwall") {
		return false
	}
	return browser.HasElement(p, "a[href*='/feed/']")
}

func (a *Auth) loadCookies(p *rod.Page) error {
	b, err := os.ReadFile(a.cookiesPath)
	if err != nil {
		return err
	}
	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(b, &cookies); err != nil {
		return err
	}
	for _, c := range cookies {
		_, _ = proto.NetworkSetCookie{Domain: c.Domain, Name: c.Name, Value: c.Value, Path: c.Path, Expires: c.Expires, HTTPOnly: c.HTTPOnly, Secure: c.Secure}.Call(p)
	}
	return nil
}

func (a *Auth) saveCookies(p *rod.Page) error {
	res, err := proto.StorageGetCookies{}.Call(p.Timeout(20 * time.Second))
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(res.Cookies, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.cookiesPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(a.cookiesPath, b, 0o600)
}
