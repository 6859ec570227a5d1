package twiliowhatsapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type mockMessagesAPI struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (m *mockMessagesAPI) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	m.params = append(m.params, params)
	if m.err != nil {
		return nil, m.err
	}
	sid := "SM1"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	_, err := NewClient(WithFromWhats("+14155238886"))
	assert.Error(t, err)
	_, err = NewClient(WithAccountSID("AC1"), WithAuthToken("tok"))
	assert.Error(t, err)

	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+14155238886"))
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+14155238886", c.fromWhats)
}

func TestSendMessage(t *testing.T) {
	api := &mockMessagesAPI{}
	c := &Client{api: api, fromWhats: "whatsapp:+14155238886"}

	require.NoError(t, c.SendMessage(context.Background(), "+34 600 111 222", "Tu pedido #1001 está en camino"))
	require.Len(t, api.params, 1)
	assert.Equal(t, "whatsapp:+34600111222", *api.params[0].To)
	assert.Equal(t, "whatsapp:+14155238886", *api.params[0].From)
	assert.Equal(t, "Tu pedido #1001 está en camino", *api.params[0].Body)

	assert.Error(t, c.SendMessage(context.Background(), "none", "x"))

	api.err = errors.New("21211 invalid To")
	assert.ErrorContains(t, c.SendMessage(context.Background(), "34600111222", "x"), "21211")
}

func webhookRequest(form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/whatsapp", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseWebhook(t *testing.T) {
	c := &Client{}
	in, err := c.ParseWebhook(webhookRequest(url.Values{
		"MessageSid": {"SM123"},
		"From":       {"whatsapp:+34600111222"},
		"Body":       {"hola"},
	}), "")
	require.NoError(t, err)
	assert.Equal(t, Inbound{SID: "SM123", From: "34600111222", Body: "hola"}, in)

	_, err = c.ParseWebhook(webhookRequest(url.Values{"From": {"whatsapp:+34600111222"}}), "")
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestParseWebhook_Signature(t *testing.T) {
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("secret"), WithFromWhats("+14155238886"))
	require.NoError(t, err)

	r := webhookRequest(url.Values{"From": {"whatsapp:+34600111222"}, "Body": {"hola"}})
	r.Header.Set(SignatureHeader, "forged")
	_, err = c.ParseWebhook(r, "https://shop.example/webhooks/twilio/whatsapp")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestCanonicalNumber(t *testing.T) {
	assert.Equal(t, "34600111222", CanonicalNumber("whatsapp:+34 600-111-222"))
	assert.Equal(t, "", CanonicalNumber("whatsapp:"))
}
