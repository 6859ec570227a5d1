// Package mail sends transactional email: invoices to shoppers and
// delivery-issue notifications to the support inbox.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"github.com/BTreeMap/ShopAssist/internal/store"
)

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("mailer not configured")

// Attachment is a file attached to a Message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Message is one outgoing email.
type Message struct {
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Validate checks that the message can be sent.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return fmt.Errorf("message has an empty recipient")
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("message has no subject")
	}
	return nil
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Disabled is the Mailer used when SMTP is not configured.
type Disabled struct{}

func (Disabled) Send(ctx context.Context, msg Message) error {
	slog.Warn("mail.Disabled: dropping message", "to", msg.To, "subject", msg.Subject)
	return ErrNotConfigured
}

// sender is the subset of *gomail.Client used by SMTPMailer.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPOpts holds configuration for SMTPMailer.
type SMTPOpts struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPOption defines a configuration option for SMTPMailer.
type SMTPOption func(*SMTPOpts)

// WithSMTPServer sets the SMTP host and port.
func WithSMTPServer(host string, port int) SMTPOption {
	return func(o *SMTPOpts) { o.Host = host; o.Port = port }
}

// WithSMTPAuth sets PLAIN auth credentials.
func WithSMTPAuth(username, password string) SMTPOption {
	return func(o *SMTPOpts) { o.Username = username; o.Password = password }
}

// WithFrom sets the envelope and header sender.
func WithFrom(from string) SMTPOption {
	return func(o *SMTPOpts) { o.From = from }
}

// SMTPMailer sends email through an SMTP relay.
type SMTPMailer struct {
	client sender
	from   string
}

// Compile-time check that SMTPMailer implements Mailer.
var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer creates an SMTP mailer from options.
func NewSMTPMailer(opts ...SMTPOption) (*SMTPMailer, error) {
	cfg := SMTPOpts{Port: 587}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("sender address must be provided")
	}

	clientOpts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		clientOpts = append(clientOpts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

// Send builds msg and delivers it in a single SMTP session.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	built, err := m.build(msg)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, built); err != nil {
		slog.Error("SMTPMailer.Send failed", "to", msg.To, "subject", msg.Subject, "error", err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	slog.Debug("SMTPMailer.Send: sent", "to", msg.To, "subject", msg.Subject, "attachments", len(msg.Attachments))
	return nil
}

func (m *SMTPMailer) build(msg Message) (*gomail.Msg, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	out := gomail.NewMsg()
	if err := out.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.from, err)
	}
	if err := out.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(gomail.TypeTextPlain, msg.Body)
	for _, a := range msg.Attachments {
		var fileOpts []gomail.FileOption
		if a.ContentType != "" {
			fileOpts = append(fileOpts, gomail.WithFileContentType(gomail.ContentType(a.ContentType)))
		}
		if err := out.AttachReader(a.Filename, bytes.NewReader(a.Data), fileOpts...); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", a.Filename, err)
		}
	}
	return out, nil
}

// OutboxHandler returns an outbox send function that decodes a queued
// Message and hands it to mailer.
func OutboxHandler(mailer Mailer) store.OutboxSendFunc {
	return func(ctx context.Context, ob store.OutboxMessage) error {
		var msg Message
		if err := json.Unmarshal([]byte(ob.PayloadJSON), &msg); err != nil {
			return fmt.Errorf("failed to decode queued email %s: %w", ob.ID, err)
		}
		if len(msg.To) == 0 && ob.Recipient != "" {
			msg.To = []string{ob.Recipient}
		}
		return mailer.Send(ctx, msg)
	}
}

// Enqueue stores msg in the outbox for a later retry.
func Enqueue(ctx context.Context, repo store.OutboxRepo, msg Message, dedupeKey string) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode email: %w", err)
	}
	recipient := ""
	if len(msg.To) > 0 {
		recipient = msg.To[0]
	}
	return repo.EnqueueOutboxMessage(ctx, recipient, store.OutboxKindSupportEmail, string(payload), dedupeKey)
}
