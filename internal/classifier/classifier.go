// Package classifier decides whether a profile belongs to a recruiting
// contact. A keyword fast pass over the headline settles clear cases; only
// inconclusive headlines reach the AI service.
package classifier

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/example/outreachbot/internal/metrics"
	"github.com/example/outreachbot/internal/models"
)

// AI is the deep-pass collaborator.
type AI interface {
	ClassifyProfile(ctx context.Context, p models.ProfileText) (models.Classification, error)
}

// DetailFunc fetches the full profile text for a deep pass.
type DetailFunc func(ctx context.Context) (string, error)

// weak hints are logged as evidence but never decide on their own.
var weakHints = []string{"talent", "hiring", "staffing", "recruiting", "hr", "human resources", "people partner", "sourcer"}

// Evidence is what the classifier saw; it is logged, not persisted.
type Evidence struct {
	Text      string
	Positive  []string
	Negative  []string
	WeakHints []string
}

// Result is a tagged classification: Basis says which path produced it.
type Result struct {
	Classification models.Classification
	Basis          models.Basis
	Keyword        string
	Evidence       Evidence
	Err            error
}

type rule struct {
	keyword string
	re      *regexp.Regexp
	words   int
}

type Classifier struct {
	positive []rule
	negative []rule
	weak     []rule
	ai       AI
	log      *slog.Logger
}

// New builds a classifier from keyword lists. ai may be nil, in which case
// inconclusive profiles fall back to NOT_RELEVANT.
func New(recruiterTitles, negativeTitles []string, ai AI, log *slog.Logger) *Classifier {
	return &Classifier{
		positive: compile(recruiterTitles),
		negative: compile(negativeTitles),
		weak:     compile(weakHints),
		ai:       ai,
		log:      log.With("module", "classifier"),
	}
}

func compile(keywords []string) []rule {
	seen := map[string]bool{}
	var out []rule
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" || seen[key] {
			continue
		}
		seen[key] = true
		parts := strings.Fields(key)
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		out = append(out, rule{
			keyword: k,
			re:      regexp.MustCompile(`(?i)\b` + strings.Join(parts, `\s+`) + `\b`),
			words:   len(parts),
		})
	}
	sort.Slice(out, func(i, j int) bool { return moreSpecific(out[i], out[j]) })
	return out
}

// moreSpecific orders rules so the first match is the most specific one:
// more words, then longer text, then alphabetical. List order never matters.
func moreSpecific(a, b rule) bool {
	if a.words != b.words {
		return a.words > b.words
	}
	if len(a.keyword) != len(b.keyword) {
		return len(a.keyword) > len(b.keyword)
	}
	return strings.ToLower(a.keyword) < strings.ToLower(b.keyword)
}

func matches(rules []rule, text string) []rule {
	var out []rule
	for _, r := range rules {
		if r.re.MatchString(text) {
			out = append(out, r)
		}
	}
	return out
}

func keywords(rules []rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.keyword
	}
	return out
}

// FastPass classifies from the headline alone. It returns AMBIGUOUS when
// neither a recruiter keyword nor a negative keyword settles the question.
// When both match, the more specific keyword wins.
func (c *Classifier) FastPass(headline string) Result {
	pos := matches(c.positive, headline)
	neg := matches(c.negative, headline)
	ev := Evidence{
		Text:      headline,
		Positive:  keywords(pos),
		Negative:  keywords(neg),
		WeakHints: keywords(matches(c.weak, headline)),
	}
	switch {
	case len(pos) > 0 && (len(neg) == 0 || !moreSpecific(neg[0], pos[0])):
		return Result{Classification: models.ClassRecruiter, Basis: models.BasisKeyword, Keyword: pos[0].keyword, Evidence: ev}
	case len(neg) > 0:
		return Result{Classification: models.ClassNotRelevant, Basis: models.BasisNegative, Keyword: neg[0].keyword, Evidence: ev}
	}
	return Result{Classification: models.ClassAmbiguous, Evidence: ev}
}

// Classify runs the fast pass and, only when it is inconclusive, one deep
// pass. Deep-pass failures degrade to NOT_RELEVANT with BasisFallback so the
// contact stays eligible for re-classification on a later run.
func (c *Classifier) Classify(ctx context.Context, p models.ProfileText, detail DetailFunc) Result {
	res := c.FastPass(p.Headline)
	if res.Classification != models.ClassAmbiguous {
		c.observe(p, res)
		return res
	}
	res = c.deepPass(ctx, p, detail, res.Evidence)
	c.observe(p, res)
	return res
}

func (c *Classifier) deepPass(ctx context.Context, p models.ProfileText, detail DetailFunc, ev Evidence) Result {
	fallback := func(err error) Result {
		return Result{Classification: models.ClassNotRelevant, Basis: models.BasisFallback, Evidence: ev, Err: err}
	}
	if c.ai == nil {
		return fallback(nil)
	}
	if p.FullText == "" && detail != nil {
		text, err := detail(ctx)
		if err != nil {
			c.log.Warn("profile detail unavailable for deep pass", "name", p.Name, "err", err)
			return fallback(err)
		}
		p.FullText = text
	}
	verdict, err := c.ai.ClassifyProfile(ctx, p)
	if err != nil {
		c.log.Warn("deep classification failed, treating as not relevant", "name", p.Name, "err", err)
		return fallback(err)
	}
	if verdict != models.ClassRecruiter {
		verdict = models.ClassNotRelevant
	}
	return Result{Classification: verdict, Basis: models.BasisAI, Evidence: ev}
}

func (c *Classifier) observe(p models.ProfileText, r Result) {
	metrics.ClassificationsTotal.WithLabelValues(string(r.Classification), string(r.Basis)).Inc()
	c.log.Debug("profile classified",
		"name", p.Name,
		"headline", p.Headline,
		"classification", r.Classification,
		"basis", r.Basis,
		"keyword", r.Keyword,
		"positive", r.Evidence.Positive,
		"negative", r.Evidence.Negative,
		"weak_hints", r.Evidence.WeakHints,
	)
}
