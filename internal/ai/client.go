// Package ai talks to the Gemini text generation API: deep profile
// classification, connection notes and outreach messages.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/outreachbot/internal/metrics"
	"github.com/example/outreachbot/internal/models"
)

// ErrUnparseable means the service answered but not in the expected shape.
var ErrUnparseable = errors.New("ai: unparseable response")

type Options struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerMinute int
	FailureThreshold  int
}

type Client struct {
	log        *slog.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	breaker    *breaker
	backoff    func(attempt int) time.Duration
}

func New(opts Options, log *slog.Logger) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("missing GEMINI_API_KEY")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	return &Client{
		log:        log.With("module", "ai"),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    newBreaker(opts.FailureThreshold, 5*time.Minute),
		backoff:    func(attempt int) time.Duration { return time.Duration(attempt) * 10 * time.Second },
	}, nil
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("gemini http %d: %s", e.StatusCode, e.Body)
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var he *httpError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode == http.StatusRequestTimeout || he.StatusCode >= 500
	}
	return strings.Contains(strings.ToLower(err.Error()), "quota exceeded")
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) doOnce(ctx context.Context, prompt string) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(generateRequest{Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}}}); err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	var sb strings.Builder
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty candidates", ErrUnparseable)
	}
	return text, nil
}

// generate sends prompt with throttling, retries on transient failures and
// the circuit breaker. op labels metrics and logs.
func (c *Client) generate(ctx context.Context, op, prompt string) (string, error) {
	if err := c.breaker.allow(); err != nil {
		metrics.AIRequestsTotal.WithLabelValues(op, "circuit_open").Inc()
		return "", err
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
		text, err := c.doOnce(ctx, prompt)
		if err == nil {
			c.breaker.success()
			metrics.AIRequestsTotal.WithLabelValues(op, "ok").Inc()
			return text, nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.maxRetries {
			break
		}
		wait := c.backoff(attempt + 1)
		c.log.Warn("gemini request retrying",
			"op", op,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", wait.String(),
			"err", err,
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
	c.breaker.failure()
	metrics.AIRequestsTotal.WithLabelValues(op, "error").Inc()
	return "", fmt.Errorf("gemini %s: %w", op, lastErr)
}

// ClassifyProfile asks whether the profile belongs to a recruiter, HR or
// talent acquisition person at the profile's company.
func (c *Client) ClassifyProfile(ctx context.Context, p models.ProfileText) (models.Classification, error) {
	text, err := c.generate(ctx, "classify", classifyPrompt(p))
	if err != nil {
		return "", err
	}
	return parseVerdict(text)
}

func parseVerdict(text string) (models.Classification, error) {
	answer := strings.ToUpper(strings.Trim(strings.TrimSpace(text), ".!*\"'` "))
	switch {
	case strings.HasPrefix(answer, "YES"):
		return models.ClassRecruiter, nil
	case strings.HasPrefix(answer, "NO"):
		return models.ClassNotRelevant, nil
	}
	return "", fmt.Errorf("%w: verdict %q", ErrUnparseable, text)
}

// GenerateConnectionNote writes a short invitation note, truncated to
// NoteMaxLength.
func (c *Client) GenerateConnectionNote(ctx context.Context, p models.ProfileText, resume models.ResumeSummary) (string, error) {
	text, err := c.generate(ctx, "note", notePrompt(p, resume))
	if err != nil {
		return "", err
	}
	return Truncate(text, NoteMaxLength), nil
}

// GenerateMessage writes a personalized message, truncated to
// MessageMaxLength.
func (c *Client) GenerateMessage(ctx context.Context, p models.ProfileText, resume models.ResumeSummary) (string, error) {
	text, err := c.generate(ctx, "message", messagePrompt(p, resume))
	if err != nil {
		return "", err
	}
	return Truncate(text, MessageMaxLength), nil
}
