package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/ShopAssist/internal/models"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	content string
	resp    *openai.ChatCompletion
	err     error
	params  []openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = append(m.params, params)
	if m.err != nil {
		return openai.ChatCompletion{}, m.err
	}
	if m.resp != nil {
		return *m.resp, nil
	}
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: m.content}}},
	}, nil
}

func newTestClient(m *mockChatService) *Client {
	return &Client{chat: m, model: "test-model", temperature: 0.2, maxCompletionTokens: 100}
}

func TestNewClient_NoKey(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cli.model)
}

func TestClassify_Success(t *testing.T) {
	m := &mockChatService{content: "```json\n" + `{"intent":"change_delivery","parameters":{"order_number":"#12345","email":"a@b.com","new_delivery_info":"Calle Mayor 1, 28013 Madrid","delivery_address_confirmed":"yes"},"language":"Spanish"}` + "\n```"}
	client := newTestClient(m)

	turns := []models.ChatTurn{
		{Role: models.ChatRoleUser, Content: "quiero cambiar la dirección"},
		{Role: models.ChatRoleAssistant, Content: "¿Cuál es la nueva dirección?"},
	}
	msg, err := client.Classify(context.Background(), "Calle Mayor 1, 28013 Madrid, sí confirmo", turns)
	require.NoError(t, err)

	assert.Equal(t, models.IntentChangeDelivery, msg.Intent)
	assert.True(t, msg.Language.IsSpanish())
	p, ok := msg.Parameters.(models.ChangeDeliveryParams)
	require.True(t, ok)
	assert.Equal(t, "#12345", p.OrderNumber)
	assert.True(t, p.DeliveryAddressConfirmed)

	require.Len(t, m.params, 1)
	assert.Len(t, m.params[0].Messages, 4, "system + two turns + message")
}

func TestClassify_InvalidOutput(t *testing.T) {
	client := newTestClient(&mockChatService{content: "I think this is about shipping"})
	_, err := client.Classify(context.Background(), "where is my order", nil)
	assert.ErrorIs(t, err, ErrInvalidClassification)
}

func TestClassify_ServiceError(t *testing.T) {
	client := newTestClient(&mockChatService{err: errors.New("service failure")})
	_, err := client.Classify(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service failure")
}

func TestParseClassification_UnknownIntentKeepsFields(t *testing.T) {
	msg, err := ParseClassification(`{"intent":"gift_wrap","parameters":{"order_number":"#1","note":"blue paper"}}`)
	require.NoError(t, err)
	assert.Equal(t, models.Intent("gift_wrap"), msg.Intent)
	assert.Equal(t, models.LanguageEnglish, msg.Language)
	g, ok := msg.Parameters.(models.GeneralParams)
	require.True(t, ok)
	assert.Equal(t, "blue paper", g.Fields["note"])
	assert.Equal(t, "#1", g.OrderNumber)
}

func TestParseClassification_MissingIntent(t *testing.T) {
	_, err := ParseClassification(`{"parameters":{}}`)
	assert.ErrorIs(t, err, ErrInvalidClassification)
}

func TestGenerate_Success(t *testing.T) {
	m := &mockChatService{content: "Your order has shipped with SEUR."}
	client := newTestClient(m)

	out, err := client.Generate(context.Background(), GenerateRequest{
		Intent:     models.IntentOrderTracking,
		Parameters: models.OrderTrackingParams{OrderIdentity: models.OrderIdentity{OrderNumber: "#1", Email: "a@b.com"}},
		Data:       &models.Order{Name: "#1"},
		Message:    "where is my order?",
		Language:   models.LanguageEnglish,
	})
	require.NoError(t, err)
	assert.Equal(t, "Your order has shipped with SEUR.", out)
	require.Len(t, m.params, 1)
	assert.Len(t, m.params[0].Messages, 3)
}

func TestGenerate_NoChoices(t *testing.T) {
	client := newTestClient(&mockChatService{resp: &openai.ChatCompletion{}})
	_, err := client.Generate(context.Background(), GenerateRequest{Intent: models.IntentOtherGeneral, Message: "hi"})
	assert.ErrorIs(t, err, ErrNoChoicesReturned)
}

func TestGenerate_EmptyContent(t *testing.T) {
	client := newTestClient(&mockChatService{content: "   "})
	_, err := client.Generate(context.Background(), GenerateRequest{Intent: models.IntentOtherGeneral, Message: "hi"})
	assert.ErrorIs(t, err, ErrNoChoicesReturned)
}

func TestConfirmAddress(t *testing.T) {
	m := &mockChatService{content: "¿Confirmas la dirección Calle Mayor 1?"}
	client := newTestClient(m)
	out, err := client.ConfirmAddress(context.Background(), models.ChangeDeliveryParams{NewDeliveryInfo: "Calle Mayor 1"}, "cambia la dirección", nil, models.LanguageSpanish)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "¿Confirmas"))
}

func TestValidateAddress(t *testing.T) {
	client := newTestClient(&mockChatService{content: `{"formattedAddress": "Calle Mayor 1, 28013 Madrid, Madrid, España"}`})
	v, err := client.ValidateAddress(context.Background(), "calle mayor 1 28013 madrid")
	require.NoError(t, err)
	assert.True(t, v.Valid())

	client = newTestClient(&mockChatService{content: `{"formattedAddress": ""}`})
	v, err = client.ValidateAddress(context.Background(), "mi casa")
	require.NoError(t, err)
	assert.False(t, v.Valid())
}

func TestParseAddressValidation_Garbage(t *testing.T) {
	assert.False(t, ParseAddressValidation("not json").Valid())
}

func TestAnswerPrompt_Language(t *testing.T) {
	assert.Contains(t, answerPrompt(models.IntentOrderTracking, models.LanguageSpanish), "Reply in Spanish.")
	assert.Contains(t, answerPrompt(models.IntentOtherGeneral, "French"), "Reply in English.")
}
