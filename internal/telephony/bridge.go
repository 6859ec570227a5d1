package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrCallRejected is returned when the bridge answers without success.
var ErrCallRejected = errors.New("outbound call rejected")

// HTTPBridge talks to a voice-agent bridge exposing
// POST /outbound-call and GET /call-status/{sid}.
type HTTPBridge struct {
	baseURL string
	http    *http.Client
}

// Compile-time check that HTTPBridge implements Service.
var _ Service = (*HTTPBridge)(nil)

// NewHTTPBridge creates a bridge client for baseURL.
func NewHTTPBridge(baseURL string, client *http.Client) *HTTPBridge {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTTPBridge{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

// PlaceCall starts a call and returns its SID.
func (b *HTTPBridge) PlaceCall(ctx context.Context, script CallScript) (string, error) {
	body, err := json.Marshal(script)
	if err != nil {
		return "", fmt.Errorf("failed to encode call script: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/outbound-call", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("outbound call request failed: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrCallRejected, resp.StatusCode)
	}
	if !gjson.GetBytes(data, "success").Bool() {
		return "", fmt.Errorf("%w: %s", ErrCallRejected, gjson.GetBytes(data, "error").String())
	}
	sid := gjson.GetBytes(data, "callSid").String()
	if sid == "" {
		return "", fmt.Errorf("%w: missing callSid", ErrCallRejected)
	}
	slog.Debug("HTTPBridge.PlaceCall: call placed", "callSid", sid)
	return sid, nil
}

// CallStatus fetches the current status of a call.
func (b *HTTPBridge) CallStatus(ctx context.Context, callID string) (CallStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/call-status/"+url.PathEscape(callID), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build status request: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call status request failed: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("call status returned %d", resp.StatusCode)
	}
	return ParseCallStatus(gjson.GetBytes(data, "status").String()), nil
}
