package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/BTreeMap/ShopAssist/internal/models"
)

// GenerateRequest is the input of a final answer.
type GenerateRequest struct {
	Intent     models.Intent
	Parameters models.Parameters
	// Data is the domain data retrieved for the intent (order, size chart).
	// Nil means the answer is generated from the conversation alone.
	Data     any
	Message  string
	Turns    []models.ChatTurn
	Language models.Language
}

// Generate produces the natural-language reply for a handled intent.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	payload := map[string]any{
		"intent":     req.Intent,
		"parameters": models.EncodeParameters(req.Parameters),
		"language":   req.Language,
	}
	if req.Data != nil {
		payload["data"] = req.Data
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode generation context: %w", err)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(answerPrompt(req.Intent, req.Language)),
		openai.SystemMessage("Context:\n" + string(body)),
	}
	messages = append(messages, history(req.Turns)...)
	messages = append(messages, openai.UserMessage(req.Message))

	out, err := c.complete(ctx, messages, c.temperature)
	if err != nil {
		slog.Error("GenAI.Generate: completion failed", "intent", req.Intent, "error", err)
		return "", err
	}
	if out == "" {
		return "", ErrNoChoicesReturned
	}
	return out, nil
}

// ConfirmAddress asks the shopper for (or to confirm) the new delivery address.
func (c *Client) ConfirmAddress(ctx context.Context, params models.Parameters, text string, turns []models.ChatTurn, language models.Language) (string, error) {
	body, err := json.Marshal(models.EncodeParameters(params))
	if err != nil {
		return "", fmt.Errorf("failed to encode parameters: %w", err)
	}
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(confirmAddressPrompt(language)),
		openai.SystemMessage("Known parameters:\n" + string(body)),
	}
	messages = append(messages, history(turns)...)
	messages = append(messages, openai.UserMessage(text))

	out, err := c.complete(ctx, messages, c.temperature)
	if err != nil {
		slog.Error("GenAI.ConfirmAddress: completion failed", "error", err)
		return "", err
	}
	return out, nil
}

// ValidateAddress normalises free-text address input. An input that is not a
// complete postal address yields an empty FormattedAddress and no error.
func (c *Client) ValidateAddress(ctx context.Context, text string) (models.AddressValidation, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(validateAddressPrompt),
		openai.UserMessage(text),
	}
	out, err := c.complete(ctx, messages, 0)
	if err != nil {
		slog.Error("GenAI.ValidateAddress: completion failed", "error", err)
		return models.AddressValidation{}, err
	}
	return ParseAddressValidation(out), nil
}

// ParseAddressValidation reads {"formattedAddress": "..."} from model output.
func ParseAddressValidation(out string) models.AddressValidation {
	raw := extractJSONObject(out)
	if raw == "" || !gjson.Valid(raw) {
		return models.AddressValidation{}
	}
	formatted := strings.TrimSpace(gjson.Get(raw, "formattedAddress").String())
	return models.AddressValidation{FormattedAddress: formatted}
}
