package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/ShopAssist/internal/twiliowhatsapp"
)

// TwilioClient is implemented by *twiliowhatsapp.Client.
type TwilioClient interface {
	SendMessage(ctx context.Context, to string, body string) error
	ParseWebhook(r *http.Request, publicURL string) (twiliowhatsapp.Inbound, error)
}

// TwilioService implements Service with Twilio's WhatsApp API; inbound
// messages arrive through WebhookHandler.
type TwilioService struct {
	client    TwilioClient
	publicURL string // when set, webhook signatures are verified against it
	inbox     inbox
	now       func() time.Time

	mu      sync.RWMutex
	stopped bool
}

// Compile-time check that TwilioService implements Service.
var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService. publicURL is the externally
// visible webhook URL used for signature validation; empty disables it.
func NewTwilioService(client TwilioClient, publicURL string) *TwilioService {
	slog.Debug("NewTwilioService: creating service", "signature_check", publicURL != "")
	return &TwilioService{client: client, publicURL: publicURL, inbox: newInbox(), now: time.Now}
}

// Start is a no-op; Twilio pushes messages to the webhook.
func (s *TwilioService) Start(ctx context.Context) error { return nil }

// Stop closes the inbound channel.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.inbox.ch)
	return nil
}

// SendMessage sends body to the phone number to.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}
	return s.client.SendMessage(ctx, to, body)
}

// Messages returns inbound shopper messages.
func (s *TwilioService) Messages() <-chan InboundMessage {
	return s.inbox.ch
}

// WebhookHandler handles Twilio's incoming-message webhook.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	in, err := s.client.ParseWebhook(r, s.publicURL)
	switch {
	case errors.Is(err, twiliowhatsapp.ErrInvalidSignature):
		slog.Warn("TwilioService.WebhookHandler: rejected unsigned request", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case err != nil:
		slog.Warn("TwilioService.WebhookHandler: bad request", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	msg := InboundMessage{ID: in.SID, From: in.From, Body: in.Body, Time: s.now()}
	if !s.inbox.push(msg) {
		slog.Warn("TwilioService.WebhookHandler: inbox full, dropping message", "from", msg.From)
		http.Error(w, "Busy", http.StatusServiceUnavailable)
		return
	}
	slog.Info("TwilioService.WebhookHandler: inbound message queued", "from", msg.From, "sid", msg.ID)

	// Empty TwiML: the reply is sent asynchronously through the REST API.
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "<Response></Response>")
}
