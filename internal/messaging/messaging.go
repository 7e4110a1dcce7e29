package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/example/outreachbot/internal/browser"
	"github.com/example/outreachbot/internal/logging"
)

type Service struct {
	br  *browser.Browser
	log *logging.Logger
}

func New(br *browser.Browser, log *logging.Logger) *Service {
	return &Service{br: br, log: log.With("module", "messaging")}
}

// SendMessage opens the conversation from the profile page and sends text.
func (s *Service) SendMessage(ctx context.Context, identity, text string) error {
	p, err := s.br.Open(ctx, identity)
	if err != nil {
		return err
	}
	if err := browser.Pause(ctx, time.Second); err != nil {
		return err
	}

	msgBtn, err := browser.FindButton(p, 5*time.Second, []string{"^Message$"}, []string{"Message"})
	if err != nil {
		return browser.ScreenshotOnError(p, "message_button_fail", fmt.Errorf("message button not found: %w", err))
	}
	if err := browser.Click(msgBtn); err != nil {
		return fmt.Errorf("click message button: %w", err)
	}
	if err := browser.Pause(ctx, 1500*time.Millisecond); err != nil {
		return err
	}

	input, err := p.Timeout(8 * time.Second).Element(`div.msg-form__contenteditable`)
	if err != nil {
		input, err = p.Timeout(5 * time.Second).Element(`div[contenteditable="true"]`)
	}
	if err != nil {
		return browser.ScreenshotOnError(p, "message_input_fail", fmt.Errorf("message input not found: %w", err))
	}
	if err := browser.Click(input); err != nil {
		return fmt.Errorf("focus message input: %w", err)
	}
	if err := p.InsertText(text); err != nil {
		return fmt.Errorf("type message: %w", err)
	}
	if err := browser.Pause(ctx, time.Second); err != nil {
		return err
	}

	sendBtn, err := p.Timeout(10 * time.Second).Element(`button.msg-form__send-button`)
	if err != nil {
		sendBtn, err = browser.FindButton(p, 5*time.Second, []string{"^Send$"}, nil)
	}
	if err != nil {
		return browser.ScreenshotOnError(p, "send_message_fail", fmt.Errorf("send button not found: %w", err))
	}
	if err := browser.Click(sendBtn); err != nil {
		return fmt.Errorf("click send: %w", err)
	}
	_ = browser.Pause(ctx, time.Second)

	// close the overlay so the next profile page is not obscured
	if closeBtn, err := p.Timeout(2 * time.Second).Element(`button.msg-overlay-bubble-header__control--close, button[aria-label*="Close your conversation"]`); err == nil {
		_ = browser.Click(closeBtn)
	}
	s.log.Info("message sent", "identity", identity, "length", len([]rune(text)))
	return nil
}
