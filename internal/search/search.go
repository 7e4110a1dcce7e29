package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/example/outreachbot/internal/browser"
	"github.com/example/outreachbot/internal/logging"
	"github.com/example/outreachbot/internal/models"
)

const maxPages = 3

// Service reads people search results and profile pages.
type Service struct {
	br  *browser.Browser
	log *logging.Logger
}

func New(br *browser.Browser, log *logging.Logger) *Service {
	return &Service{br: br, log: log.With("module", "search")}
}

// Query builds the people-search keywords for company and the title list.
func Query(company string, titles []string) string {
	parts := make([]string, 0, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.Contains(t, " ") {
			t = `"` + t + `"`
		}
		parts = append(parts, t)
	}
	if len(parts) == 0 {
		return company
	}
	return company + " (" + strings.Join(parts, " OR ") + ")"
}

// SearchProfiles returns up to limit distinct profiles from people search
// for company. Identities are canonical.
func (s *Service) SearchProfiles(ctx context.Context, company string, titles []string, limit int) ([]models.RawProfile, error) {
	kw := Query(company, titles)
	base := fmt.Sprintf("%ssearch/results/people/?keywords=%s&origin=GLOBAL_SEARCH_HEADER",
		s.br.URL(""), url.QueryEscape(kw))
	s.log.Info("starting search", "company", company, "keywords", kw, "limit", limit)

	var out []models.RawProfile
	seen := map[string]bool{}
	for page := 1; page <= maxPages && len(out) < limit; page++ {
		p, err := s.br.Open(ctx, fmt.Sprintf("%s&page=%d", base, page))
		if err != nil {
			if page == 1 {
				return nil, err
			}
			s.log.Warn("search page failed", "page", page, "err", err)
			break
		}
		if _, err := p.Timeout(15 * time.Second).Element(".search-results-container"); err != nil {
			browser.ScreenshotOnError(p, "search_fail", err)
			if page == 1 {
				return nil, fmt.Errorf("search results for %s: %w", company, err)
			}
			break
		}
		_ = p.Mouse.Scroll(0, 1200, 4)
		if err := browser.Pause(ctx, 2500*time.Millisecond); err != nil {
			return out, err
		}

		cards, _ := p.Elements(`.search-results-container ul[role="list"] > li`)
		s.log.Debug("result cards found", "page", page, "count", len(cards))
		added := 0
		for _, card := range cards {
			if len(out) >= limit {
				break
			}
			rp, ok := readCard(card)
			if !ok || seen[rp.Identity] {
				continue
			}
			seen[rp.Identity] = true
			out = append(out, rp)
			added++
		}
		if added == 0 {
			break
		}
	}
	s.log.Info("search completed", "company", company, "profiles", len(out))
	return out, nil
}

func readCard(card *rod.Element) (models.RawProfile, bool) {
	link, err := card.Element(`a[href*="/in/"]`)
	if err != nil {
		return models.RawProfile{}, false
	}
	href, err := link.Attribute("href")
	if err != nil || href == nil {
		return models.RawProfile{}, false
	}
	id := models.CanonicalIdentity(*href)
	if !strings.Contains(id, "/in/") {
		return models.RawProfile{}, false
	}
	rp := models.RawProfile{Identity: id}
	if el, err := link.Element(`span[aria-hidden="true"]`); err == nil {
		rp.Name, _ = el.Text()
	}
	if rp.Name == "" {
		rp.Name, _ = link.Text()
	}
	rp.Name = strings.TrimSpace(rp.Name)
	for _, sel := range []string{".entity-result__primary-subtitle", "div.t-14.t-black.t-normal"} {
		if el, err := card.Element(sel); err == nil {
			if t, err := el.Text(); err == nil && strings.TrimSpace(t) != "" {
				rp.HeadlineText = strings.TrimSpace(t)
				break
			}
		}
	}
	var labels []string
	if buttons, err := card.Elements("button"); err == nil {
		for _, b := range buttons {
			if t, err := b.Text(); err == nil {
				labels = append(labels, t)
			}
		}
	}
	cardText, _ := card.Text()
	rp.ConnectionStatus = StatusFromPage(labels, cardText)
	return rp, true
}

// StatusFromPage infers the connection status from visible button labels
// and the degree badge in text.
func StatusFromPage(buttons []string, text string) models.ConnectionStatus {
	has := func(want string) bool {
		for _, b := range buttons {
			if strings.EqualFold(strings.TrimSpace(b), want) {
				return true
			}
		}
		return false
	}
	switch {
	case has("Pending") || has("Withdraw"):
		return models.StatusPending
	case has("Connect"):
		return models.StatusNotConnected
	case strings.Contains(text, "• 1st") || strings.Contains(text, "1st degree"):
		return models.StatusConnected
	case has("Message") && !has("Follow"):
		return models.StatusConnected
	}
	return models.StatusUnknown
}

// OpenProfileDetail loads a profile page and returns its visible text.
func (s *Service) OpenProfileDetail(ctx context.Context, identity string) (string, error) {
	p, err := s.br.Open(ctx, identity)
	if err != nil {
		return "", err
	}
	_ = p.Mouse.Scroll(0, 2000, 6)
	if err := browser.Pause(ctx, 1500*time.Millisecond); err != nil {
		return "", err
	}
	el, err := p.Timeout(10 * time.Second).Element("main")
	if err != nil {
		return "", browser.ScreenshotOnError(p, "profile_detail_fail", fmt.Errorf("profile body not found: %w", err))
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(text), " "), nil
}

// ConnectionStatus loads a profile page and reads the action buttons in its
// top card.
func (s *Service) ConnectionStatus(ctx context.Context, identity string) (models.ConnectionStatus, error) {
	p, err := s.br.Open(ctx, identity)
	if err != nil {
		return models.StatusUnknown, err
	}
	if err := browser.Pause(ctx, time.Second); err != nil {
		return models.StatusUnknown, err
	}
	top, err := p.Timeout(10 * time.Second).Element("main section")
	if err != nil {
		return models.StatusUnknown, nil
	}
	var labels []string
	if buttons, err := top.Elements("button"); err == nil {
		for _, b := range buttons {
			label, _ := b.Attribute("aria-label")
			text, _ := b.Text()
			if label != nil && strings.HasPrefix(*label, "Pending") {
				text = "Pending"
			}
			labels = append(labels, text)
		}
	}
	text, _ := top.Text()
	return StatusFromPage(labels, text), nil
}
