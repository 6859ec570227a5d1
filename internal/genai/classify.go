package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/BTreeMap/ShopAssist/internal/models"
)

// ErrInvalidClassification is returned when the model output is not a usable
// classification object.
var ErrInvalidClassification = errors.New("invalid classification output")

// Classify determines the intent, parameters and language of a shopper message.
// Earlier turns let the model carry order numbers and emails across messages.
func (c *Client) Classify(ctx context.Context, text string, turns []models.ChatTurn) (models.ClassifiedMessage, error) {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(classifierPrompt)}
	messages = append(messages, history(turns)...)
	messages = append(messages, openai.UserMessage(text))

	out, err := c.complete(ctx, messages, 0)
	if err != nil {
		slog.Error("GenAI.Classify: completion failed", "error", err)
		return models.ClassifiedMessage{}, err
	}
	msg, err := ParseClassification(out)
	if err != nil {
		slog.Warn("GenAI.Classify: unusable classifier output", "error", err, "output", out)
		return models.ClassifiedMessage{}, err
	}
	slog.Debug("GenAI.Classify: classified", "intent", msg.Intent, "language", msg.Language)
	return msg, nil
}

// ParseClassification decodes classifier output of the form
// {"intent": "...", "parameters": {...}, "language": "..."}.
func ParseClassification(out string) (models.ClassifiedMessage, error) {
	raw := extractJSONObject(out)
	if raw == "" || !gjson.Valid(raw) {
		return models.ClassifiedMessage{}, ErrInvalidClassification
	}
	res := gjson.Parse(raw)
	intent := models.Intent(strings.TrimSpace(res.Get("intent").String()))
	if intent == "" {
		return models.ClassifiedMessage{}, fmt.Errorf("%w: missing intent", ErrInvalidClassification)
	}

	var paramsRaw json.RawMessage
	if p := res.Get("parameters"); p.Exists() && p.IsObject() {
		paramsRaw = json.RawMessage(p.Raw)
	}
	params, err := models.DecodeParameters(intent, paramsRaw)
	if err != nil {
		return models.ClassifiedMessage{}, fmt.Errorf("%w: %v", ErrInvalidClassification, err)
	}

	lang := models.Language(strings.TrimSpace(res.Get("language").String()))
	if lang == "" {
		lang = models.LanguageEnglish
	}
	return models.ClassifiedMessage{Intent: intent, Parameters: params, Language: lang}, nil
}
