package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/ShopAssist/internal/whatsapp"
)

// WhatsAppSender sends WhatsApp texts.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// whatsappSource is implemented by *whatsapp.Client.
type whatsappSource interface {
	OnMessage(fn func(whatsapp.Inbound))
}

// WhatsAppService implements Service on top of the Whatsmeow client.
type WhatsAppService struct {
	client WhatsAppSender
	inbox  inbox

	mu      sync.RWMutex
	stopped bool
}

// Compile-time check that WhatsAppService implements Service.
var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService wraps client. Inbound messages are only delivered when
// client also exposes OnMessage, as *whatsapp.Client does.
func NewWhatsAppService(client WhatsAppSender) *WhatsAppService {
	slog.Debug("NewWhatsAppService: creating service")
	return &WhatsAppService{client: client, inbox: newInbox()}
}

// Start registers the inbound message handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	src, ok := s.client.(whatsappSource)
	if !ok {
		slog.Debug("WhatsAppService.Start: client has no event source, inbound disabled")
		return nil
	}
	src.OnMessage(s.deliver)
	slog.Info("WhatsAppService.Start: listening for messages")
	return nil
}

func (s *WhatsAppService) deliver(in whatsapp.Inbound) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}
	msg := InboundMessage{ID: in.ID, From: in.From, Body: in.Body, Time: in.Time}
	if !s.inbox.push(msg) {
		slog.Warn("WhatsAppService.deliver: inbox full, dropping message", "from", msg.From)
	}
}

// Stop closes the inbound channel.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.inbox.ch)
	slog.Info("WhatsAppService.Stop: stopped")
	return nil
}

// SendMessage sends body to the phone number to.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "to", to, "error", err)
		return err
	}
	return nil
}

// Messages returns inbound shopper messages.
func (s *WhatsAppService) Messages() <-chan InboundMessage {
	return s.inbox.ch
}
