package ai

import (
	"context"
	"log/slog"

	"github.com/example/outreachbot/internal/metrics"
	"github.com/example/outreachbot/internal/models"
)

// Generator produces outreach text. *Client implements it.
type Generator interface {
	GenerateConnectionNote(ctx context.Context, p models.ProfileText, resume models.ResumeSummary) (string, error)
	GenerateMessage(ctx context.Context, p models.ProfileText, resume models.ResumeSummary) (string, error)
}

// Composer always returns usable text: generation failures, low-quality
// output and a missing generator all degrade to the static templates.
type Composer struct {
	gen    Generator
	resume models.ResumeSummary
	log    *slog.Logger
}

// NewComposer wraps gen, which may be nil.
func NewComposer(gen Generator, resume models.ResumeSummary, log *slog.Logger) *Composer {
	return &Composer{gen: gen, resume: resume, log: log.With("module", "composer")}
}

func (c *Composer) Note(ctx context.Context, p models.ProfileText) string {
	if c.gen != nil {
		text, err := c.gen.GenerateConnectionNote(ctx, p, c.resume)
		if err == nil && usable(text, 20) {
			return text
		}
		c.log.Warn("connection note generation failed, using template", "company", p.Company, "err", err)
	}
	metrics.AIFallbacksTotal.WithLabelValues("note").Inc()
	return FallbackNote(p.Company, c.resume)
}

func (c *Composer) Message(ctx context.Context, p models.ProfileText) string {
	if c.gen != nil {
		text, err := c.gen.GenerateMessage(ctx, p, c.resume)
		if err == nil && usable(text, 80) {
			return text
		}
		c.log.Warn("message generation failed, using template", "company", p.Company, "err", err)
	}
	metrics.AIFallbacksTotal.WithLabelValues("message").Inc()
	return FallbackMessage(p.Name, p.Company, c.resume)
}

// usable rejects empty or trivially short output.
func usable(text string, minLen int) bool {
	return len([]rune(text)) >= minLen
}

// FollowUp is always templated.
func (c *Composer) FollowUp(_ context.Context, p models.ProfileText) string {
	return FollowUpMessage(p.Name, p.Company)
}
