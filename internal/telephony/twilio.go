package telephony

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// callsAPI is the subset of the Twilio REST API used for voice calls.
type callsAPI interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
	FetchCall(sid string, params *twilioApi.FetchCallParams) (*twilioApi.ApiV2010Call, error)
}

// TwilioOpts holds configuration options for the Twilio voice caller.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	From       string
	Voice      string
	Language   string
}

// TwilioOption defines a configuration option for the Twilio voice caller.
type TwilioOption func(*TwilioOpts)

// WithTwilioCredentials sets the account SID and auth token.
func WithTwilioCredentials(sid, token string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID, o.AuthToken = sid, token }
}

// WithTwilioFrom sets the caller ID.
func WithTwilioFrom(from string) TwilioOption {
	return func(o *TwilioOpts) { o.From = from }
}

// WithTwilioVoice sets the TwiML voice and language, e.g. "Polly.Lucia", "es-ES".
func WithTwilioVoice(voice, language string) TwilioOption {
	return func(o *TwilioOpts) { o.Voice, o.Language = voice, language }
}

// TwilioCaller places scripted calls through Twilio Voice.
type TwilioCaller struct {
	api      callsAPI
	from     string
	voice    string
	language string
}

// Compile-time check that TwilioCaller implements Service.
var _ Service = (*TwilioCaller)(nil)

// NewTwilioCaller creates a caller from options.
func NewTwilioCaller(opts ...TwilioOption) (*TwilioCaller, error) {
	cfg := TwilioOpts{Voice: "Polly.Lucia", Language: "es-ES"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("caller number must be provided")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioCaller{api: client.Api, from: cfg.From, voice: cfg.Voice, language: cfg.Language}, nil
}

// PlaceCall dials script.Number and reads the opening line and summary.
func (c *TwilioCaller) PlaceCall(ctx context.Context, script CallScript) (string, error) {
	params := &twilioApi.CreateCallParams{}
	params.SetTo(script.Number)
	params.SetFrom(c.from)
	params.SetTwiml(c.twiml(script))

	call, err := c.api.CreateCall(params)
	if err != nil {
		slog.Error("TwilioCaller.PlaceCall failed", "to", script.Number, "error", err)
		return "", fmt.Errorf("failed to create call: %w", err)
	}
	if call == nil || call.Sid == nil {
		return "", fmt.Errorf("twilio returned no call SID")
	}
	slog.Debug("TwilioCaller.PlaceCall: call created", "callSid", *call.Sid)
	return *call.Sid, nil
}

// CallStatus fetches the call resource and maps its status.
func (c *TwilioCaller) CallStatus(ctx context.Context, callID string) (CallStatus, error) {
	call, err := c.api.FetchCall(callID, &twilioApi.FetchCallParams{})
	if err != nil {
		return "", fmt.Errorf("failed to fetch call %s: %w", callID, err)
	}
	if call == nil || call.Status == nil {
		return "", fmt.Errorf("twilio call %s has no status", callID)
	}
	return ParseCallStatus(*call.Status), nil
}

func (c *TwilioCaller) twiml(script CallScript) string {
	var b strings.Builder
	b.WriteString("<Response>")
	for _, line := range []string{script.FirstMessage, script.Summary} {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fmt.Fprintf(&b, `<Say voice="%s" language="%s">`, c.voice, c.language)
		xml.EscapeText(&b, []byte(line))
		b.WriteString("</Say><Pause length=\"1\"/>")
	}
	b.WriteString("</Response>")
	return b.String()
}
