// Package gemini adapts llmclient.Client onto Google's genai SDK,
// grounded on the teacher's GeminiProvider: per-call genai.NewClient with
// an API key, a SystemInstruction content block, and GenerateContent
// followed by a JSON-encoded response body.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/coursebot/assistant/domain"
	"github.com/coursebot/assistant/llmclient"
)

const DefaultModel = "gemini-2.0-flash"

type Provider struct {
	apiKey string
	model  string
}

func New(apiKey string) *Provider {
	return &Provider{apiKey: apiKey, model: DefaultModel}
}

var closedIntents = []string{
	"add_course", "create_recurring_course", "modify_course", "cancel_course",
	"stop_recurring_course", "query_schedule", "query_course_content",
	"record_content", "add_course_content", "set_reminder", "confirm_action",
	"modify_action", "cancel_action", "restart_input", "correction_intent", "unknown",
}

type classifyPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func (p *Provider) newClient(ctx context.Context) (*genai.Client, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("gemini: no API key configured")
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (p *Provider) ClassifyIntent(ctx context.Context, text string) (llmclient.ClassifyResult, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return llmclient.ClassifyResult{}, err
	}

	system := fmt.Sprintf(
		"Classify the user's message into exactly one of: %v. Reply with JSON only: {\"intent\": string, \"confidence\": number between 0 and 1}.",
		closedIntents,
	)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, ""),
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}}}

	result, err := client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return llmclient.ClassifyResult{}, err
	}

	var payload classifyPayload
	if err := json.Unmarshal([]byte(result.Text()), &payload); err != nil {
		return llmclient.ClassifyResult{}, fmt.Errorf("gemini: malformed classify response: %w", err)
	}

	usage := llmclient.Usage{}
	if result.UsageMetadata != nil {
		usage.PromptTokens = int(result.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	return llmclient.ClassifyResult{Intent: payload.Intent, Confidence: payload.Confidence, Usage: usage}, nil
}

func (p *Provider) ExtractSlots(ctx context.Context, text, intent string, existing domain.Slots) (domain.Slots, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return domain.Slots{}, err
	}

	existingJSON, _ := json.Marshal(existing)
	system := fmt.Sprintf(
		"Extract course-scheduling fields for intent %q as JSON matching this schema: "+
			"studentName, courseName, scheduleTime (HH:MM), courseDate (YYYY-MM-DD), "+
			"timeReference, location, teacher, content. Fields already known: %s. "+
			"Only fill fields you are confident about; omit the rest.", intent, existingJSON,
	)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, ""),
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}}}

	result, err := client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return domain.Slots{}, err
	}

	var extracted domain.Slots
	if err := json.Unmarshal([]byte(result.Text()), &extracted); err != nil {
		return domain.Slots{}, fmt.Errorf("gemini: malformed extract response: %w", err)
	}
	return extracted, nil
}
