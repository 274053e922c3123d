// Package openai adapts llmclient.Client onto the OpenAI chat-completions
// API, grounded on the teacher's OpenAIProvider: a single client built
// per-call from an API key, a system-instruction message, and structured
// JSON parsed out of the completion's content.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"

	"github.com/coursebot/assistant/domain"
	"github.com/coursebot/assistant/llmclient"
)

const DefaultModel = "gpt-4o-mini"

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

func (p *Provider) ClassifyIntent(ctx context.Context, text string) (llmclient.ClassifyResult, error) {
	if p.apiKey == "" {
		return llmclient.ClassifyResult{}, fmt.Errorf("openai: no API key configured")
	}
	client := oai.NewClient(option.WithAPIKey(p.apiKey))

	system := fmt.Sprintf(
		"Classify the user's message into exactly one of: %v. Reply with JSON only: {\"intent\": string, \"confidence\": number between 0 and 1}.",
		closedIntents,
	)
	params := oai.ChatCompletionNewParams{
		Model: oai.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(text),
		},
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llmclient.ClassifyResult{}, err
	}
	if len(completion.Choices) == 0 {
		return llmclient.ClassifyResult{}, fmt.Errorf("openai: empty completion")
	}

	var payload classifyPayload
	content := completion.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return llmclient.ClassifyResult{}, fmt.Errorf("openai: malformed classify response: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"intent":     payload.Intent,
		"confidence": payload.Confidence,
	}).Debug("[LLM_OPENAI] classifyIntent")

	return llmclient.ClassifyResult{
		Intent:     payload.Intent,
		Confidence: payload.Confidence,
		Usage: llmclient.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func (p *Provider) ExtractSlots(ctx context.Context, text, intent string, existing domain.Slots) (domain.Slots, error) {
	if p.apiKey == "" {
		return domain.Slots{}, fmt.Errorf("openai: no API key configured")
	}
	client := oai.NewClient(option.WithAPIKey(p.apiKey))

	existingJSON, _ := json.Marshal(existing)
	system := fmt.Sprintf(
		"Extract course-scheduling fields for intent %q as JSON matching this schema: "+
			"studentName, courseName, scheduleTime (HH:MM), courseDate (YYYY-MM-DD), "+
			"timeReference, location, teacher, content. Fields already known: %s. "+
			"Only fill fields you are confident about; omit the rest.", intent, existingJSON,
	)
	params := oai.ChatCompletionNewParams{
		Model: oai.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(text),
		},
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.Slots{}, err
	}
	if len(completion.Choices) == 0 {
		return domain.Slots{}, fmt.Errorf("openai: empty completion")
	}

	var extracted domain.Slots
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &extracted); err != nil {
		return domain.Slots{}, fmt.Errorf("openai: malformed extract response: %w", err)
	}
	return extracted, nil
}
