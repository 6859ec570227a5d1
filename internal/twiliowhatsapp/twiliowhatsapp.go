// Package twiliowhatsapp sends and receives WhatsApp messages through the
// Twilio Messaging API.
package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SignatureHeader carries Twilio's request signature on webhooks.
const SignatureHeader = "X-Twilio-Signature"

var (
	ErrMissingFields    = errors.New("webhook missing From or Body")
	ErrInvalidSignature = errors.New("webhook signature mismatch")

	nonDigits = regexp.MustCompile(`\D`)
)

// messagesAPI is the subset of the Twilio REST API used for WhatsApp.
type messagesAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sender, e.g. "whatsapp:+14155238886".
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps the Twilio REST API for WhatsApp.
type Client struct {
	api       messagesAPI
	fromWhats string
	validator *twilioClient.RequestValidator
}

// NewClient creates a client, falling back to TWILIO_* environment variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("TwilioWhatsApp.NewClient: config loaded", "account_sid_set", cfg.AccountSID != "", "auth_token_set", cfg.AuthToken != "", "from_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}
	if !strings.HasPrefix(cfg.FromWhats, "whatsapp:") {
		cfg.FromWhats = "whatsapp:" + cfg.FromWhats
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	validator := twilioClient.NewRequestValidator(cfg.AuthToken)
	return &Client{api: client.Api, fromWhats: cfg.FromWhats, validator: &validator}, nil
}

// SendMessage sends body to the phone number to (any formatting).
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	digits := CanonicalNumber(to)
	if digits == "" {
		return fmt.Errorf("invalid recipient %q", to)
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + digits)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	if _, err := c.api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", digits, err)
	}
	slog.Debug("TwilioWhatsApp.SendMessage: sent", "to", digits, "body_length", len(body))
	return nil
}

// Inbound is a message delivered by Twilio's incoming-message webhook.
type Inbound struct {
	SID  string
	From string // digits only
	Body string
}

// ParseWebhook reads the form-encoded webhook body. When publicURL is set
// the request signature is verified against it.
func (c *Client) ParseWebhook(r *http.Request, publicURL string) (Inbound, error) {
	if err := r.ParseForm(); err != nil {
		return Inbound{}, fmt.Errorf("failed to parse webhook form: %w", err)
	}
	if publicURL != "" && c.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !c.validator.Validate(publicURL, params, r.Header.Get(SignatureHeader)) {
			return Inbound{}, ErrInvalidSignature
		}
	}
	in := Inbound{
		SID:  r.PostForm.Get("MessageSid"),
		From: CanonicalNumber(r.PostForm.Get("From")),
		Body: r.PostForm.Get("Body"),
	}
	if in.From == "" || strings.TrimSpace(in.Body) == "" {
		return Inbound{}, ErrMissingFields
	}
	return in, nil
}

// CanonicalNumber strips the "whatsapp:" scheme and every non-digit.
func CanonicalNumber(s string) string {
	return nonDigits.ReplaceAllString(strings.TrimPrefix(s, "whatsapp:"), "")
}
