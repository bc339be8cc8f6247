package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/detailbook/detailbook/services/booking-service/internal/catalog"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
)

const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiParser asks a Gemini model for a JSON intent.
type GeminiParser struct {
	client   *genai.Client
	generate func(ctx context.Context, prompt string) (string, error)
}

func NewGeminiParser(ctx context.Context, apiKey, modelName string) (*GeminiParser, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	gm := client.GenerativeModel(modelName)
	gm.ResponseMIMEType = "application/json"
	gm.SetTemperature(0)

	return &GeminiParser{
		client: client,
		generate: func(ctx context.Context, prompt string) (string, error) {
			resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
			if err != nil {
				return "", err
			}
			return responseText(resp), nil
		},
	}, nil
}

func (p *GeminiParser) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *GeminiParser) Parse(ctx context.Context, text string) (Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Intent{}, fmt.Errorf("%w: empty request", model.ErrValidation)
	}
	raw, err := p.generate(ctx, buildPrompt(text, nowFrom(ctx).Format(model.DateLayout)))
	if err != nil {
		return Intent{}, fmt.Errorf("gemini generate: %w", err)
	}
	return decodeIntent(raw)
}

func buildPrompt(text, today string) string {
	names := make([]string, 0, len(catalog.All()))
	for _, s := range catalog.All() {
		names = append(names, s.Name)
	}
	var b strings.Builder
	b.WriteString("Extract a car detailing booking request as JSON with keys ")
	b.WriteString(`clientName, clientEmail, clientPhone, service, date, time, notes. `)
	b.WriteString("Use date format YYYY-MM-DD and 24-hour time HH:MM. ")
	b.WriteString("Today is " + today + ". ")
	b.WriteString("service must be one of: " + strings.Join(names, ", ") + ". ")
	b.WriteString("Leave unknown fields empty.\n\nRequest:\n")
	b.WriteString(text)
	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

// decodeIntent parses model output, tolerating a fenced code block around the JSON.
func decodeIntent(raw string) (Intent, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Intent{}, fmt.Errorf("%w: empty model response", model.ErrValidation)
	}

	var in Intent
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return Intent{}, fmt.Errorf("%w: malformed model response: %v", model.ErrValidation, err)
	}
	in = in.Normalize()
	if in.Service == "" && in.Date == "" && in.Time == "" {
		return Intent{}, fmt.Errorf("%w: model returned no booking details", model.ErrValidation)
	}
	return in, nil
}
