package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"

	"github.com/example/outreachbot/internal/browser"
	"github.com/example/outreachbot/internal/logging"
)

// ErrNotConnectable means the profile offers no Connect affordance.
var ErrNotConnectable = errors.New("connect button not found")

type Service struct {
	br  *browser.Browser
	log *logging.Logger
}

func New(br *browser.Browser, log *logging.Logger) *Service {
	return &Service{br: br, log: log.With("module", "connection")}
}

// SendConnectionRequest opens the profile and sends an invitation carrying
// note. An empty note sends a bare invitation. It returns only after the
// send button was clicked.
func (s *Service) SendConnectionRequest(ctx context.Context, identity, note string) error {
	p, err := s.br.Open(ctx, identity)
	if err != nil {
		return err
	}
	if err := browser.Pause(ctx, time.Second); err != nil {
		return err
	}

	connectBtn, err := s.findConnect(ctx, p)
	if err != nil {
		return browser.ScreenshotOnError(p, "connect_button_fail", err)
	}
	if err := browser.Click(connectBtn); err != nil {
		return fmt.Errorf("click connect: %w", err)
	}
	if err := browser.Pause(ctx, time.Second); err != nil {
		return err
	}

	if note != "" {
		if addNote, err := p.Timeout(5*time.Second).ElementR("button", "Add a note"); err == nil {
			if err := browser.Click(addNote); err != nil {
				return fmt.Errorf("click add note: %w", err)
			}
			textarea, err := p.Timeout(8 * time.Second).Element(`textarea[name="message"]`)
			if err != nil {
				return browser.ScreenshotOnError(p, "note_textarea_fail", fmt.Errorf("note textarea not found: %w", err))
			}
			if err := textarea.Input(note); err != nil {
				return fmt.Errorf("type note: %w", err)
			}
		} else {
			s.log.Info("add a note not offered, sending without note", "identity", identity)
		}
	}

	sendBtn, err := browser.FindButton(p, 10*time.Second, []string{"^Send$", "^Send invitation$", "^Send without a note$"}, []string{"Send"})
	if err != nil {
		return browser.ScreenshotOnError(p, "send_button_fail", err)
	}
	if err := browser.Click(sendBtn); err != nil {
		return fmt.Errorf("click send: %w", err)
	}
	_ = browser.Pause(ctx, time.Second)
	s.log.Info("connection request sent", "identity", identity, "note_length", len([]rune(note)))
	return nil
}

func (s *Service) findConnect(ctx context.Context, p *rod.Page) (*rod.Element, error) {
	if el, err := browser.FindButton(p, 5*time.Second, []string{"^Connect$"}, []string{"Invite"}); err == nil {
		return el, nil
	}
	// Connect is often folded into the More menu.
	more, err := browser.FindButton(p, 3*time.Second, []string{"^More$"}, []string{"More actions"})
	if err != nil {
		return nil, ErrNotConnectable
	}
	if err := browser.Click(more); err != nil {
		return nil, fmt.Errorf("open more menu: %w", err)
	}
	if err := browser.Pause(ctx, 800*time.Millisecond); err != nil {
		return nil, err
	}
	el, err := p.Timeout(5*time.Second).ElementR("div[role='button'], span", "^Connect$")
	if err != nil {
		return nil, ErrNotConnectable
	}
	return el, nil
}
