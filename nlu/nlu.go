// Package nlu implements the layered intent classifier: a safety
// short-circuit, supplement routing against pending slots, an LLM primary
// classifier with confidence gating, deterministic rules, and a scored
// RuleMatcher fallback — in that strict order, first decisive wins.
package nlu

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/coursebot/assistant/config"
	"github.com/coursebot/assistant/domain"
	"github.com/coursebot/assistant/llmclient"
	"github.com/coursebot/assistant/slots"
)

// ClosedIntents is the full set NLUPipeline.decide may return.
var ClosedIntents = map[string]bool{
	"add_course": true, "create_recurring_course": true, "modify_course": true,
	"cancel_course": true, "stop_recurring_course": true, "query_schedule": true,
	"query_course_content": true, "record_content": true, "add_course_content": true,
	"set_reminder": true, "confirm_action": true, "modify_action": true,
	"cancel_action": true, "restart_input": true, "correction_intent": true, "unknown": true,
}

var contextRequiredIntents = map[string]bool{
	"confirm_action": true, "modify_action": true, "cancel_action": true, "correction_intent": true,
}

var domainSwitchTokens = []string{"課表", "查詢", "新增", "刪除", "取消", "設定", "記錄"}

const supplementWindow = 2 * time.Minute

// Decision is what Pipeline.Decide returns: the chosen intent plus,
// when supplement routing fired, the merged slots to seed the extractor
// cache with instead of re-running extraction from scratch.
type Decision struct {
	Intent        string
	MergedSlots   *domain.Slots
	ViaSupplement bool
}

// Pipeline implements the NLUPipeline contract.
type Pipeline struct {
	registry  *config.Registry
	llm       llmclient.Client
	extractor *slots.Extractor
}

func New(registry *config.Registry, llm llmclient.Client, extractor *slots.Extractor) *Pipeline {
	return &Pipeline{registry: registry, llm: llm, extractor: extractor}
}

// Decide is deterministic given the same (text, ctx, configSnapshot) when
// the LLM is mocked/unavailable, per the testable property in §8.
func (p *Pipeline) Decide(ctx context.Context, text string, convCtx domain.ConversationContext) Decision {
	if intent, ok := safetyShortCircuit(text); ok {
		return Decision{Intent: intent}
	}

	if dec, ok := p.supplementRouting(text, convCtx); ok {
		return dec
	}

	if p.registry.Flags().EnableAIFallback && p.llm != nil {
		if intent, ok := p.llmClassify(ctx, text); ok {
			return p.gateContextRequired(intent, convCtx)
		}
	}

	if intent, ok := deterministicRules(text); ok {
		return p.gateContextRequired(intent, convCtx)
	}

	if intent, ok := p.ruleMatch(text); ok {
		return p.gateContextRequired(intent, convCtx)
	}

	return Decision{Intent: "unknown"}
}

func safetyShortCircuit(text string) (string, bool) {
	if strings.Contains(text, "提醒") {
		return "set_reminder", true
	}
	if strings.Contains(text, "取消") || strings.Contains(text, "刪除") || strings.Contains(text, "刪掉") {
		return "cancel_course", true
	}
	return "", false
}

func (p *Pipeline) supplementRouting(text string, convCtx domain.ConversationContext) (Decision, bool) {
	if len(convCtx.ExpectingInput) == 0 || convCtx.PendingData == nil {
		return Decision{}, false
	}
	for _, tok := range domainSwitchTokens {
		if strings.Contains(text, tok) {
			return Decision{}, false
		}
	}
	age := time.Since(time.UnixMilli(convCtx.PendingData.CreatedAtUnixMs))
	if age > supplementWindow {
		return Decision{}, false
	}

	pendingIntent := convCtx.PendingData.Intent
	extracted := p.extractor.ExtractRule(text, pendingIntent, convCtx)
	merged := slots.Merge(convCtx.PendingData.ExistingSlots, extracted)

	if !slots.IsCompleteForIntent(merged, pendingIntent) {
		return Decision{}, false
	}
	return Decision{Intent: pendingIntent, MergedSlots: &merged, ViaSupplement: true}, true
}

func (p *Pipeline) llmClassify(ctx context.Context, text string) (string, bool) {
	flags := p.registry.Flags()
	timeout := time.Duration(flags.AIFallbackTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	llmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := p.llm.ClassifyIntent(llmCtx, text)
	if err != nil {
		return "", false
	}
	if result.Confidence < flags.AIFallbackMinConfidence {
		return "", false
	}
	if !ClosedIntents[result.Intent] {
		return "", false
	}
	return result.Intent, true
}

var (
	modifyTokens = []string{"改到", "改成", "修改", "更改", "換到", "換成", "改"}
	addTokens    = []string{"要上", "安排", "新增"}
	timeHints    = []string{"點", ":", "上午", "中午", "下午", "晚上", "每週", "每周", "每天", "每月"}
	queryCues    = []string{"課表", "查詢", "課程安排"}
)

func deterministicRules(text string) (string, bool) {
	if containsAny(text, modifyTokens) {
		return "modify_course", true
	}
	if containsAny(text, addTokens) && containsAny(text, timeHints) {
		return "add_course", true
	}
	if containsAny(text, queryCues) {
		return "query_schedule", true
	}
	return "", false
}

func containsAny(text string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

// ruleMatch scores every intent rule and returns the best candidate, per
// the formula 10*keywords + 15*patterns + (20-priority).
func (p *Pipeline) ruleMatch(text string) (string, bool) {
	type scored struct {
		intent   string
		score    int
		priority int
	}
	var best *scored

	for _, rule := range p.registry.Rules() {
		if !passesGates(text, rule) {
			continue
		}
		score := 10*countMatches(text, rule.Keywords) + 15*countPatternMatches(text, rule.Patterns) + (20 - rule.Priority)
		if score <= (20 - rule.Priority) {
			// no keyword/pattern actually matched this utterance
			continue
		}
		if best == nil || score > best.score || (score == best.score && rule.Priority < best.priority) {
			best = &scored{intent: rule.Intent, score: score, priority: rule.Priority}
		}
	}
	if best == nil {
		return "", false
	}
	return best.intent, true
}

func passesGates(text string, rule config.IntentRule) bool {
	for _, excl := range rule.Exclusions {
		if strings.Contains(text, excl) {
			return false
		}
	}
	if len(rule.RequiredKeywords) > 0 && !containsAny(text, rule.RequiredKeywords) {
		return false
	}
	for _, group := range rule.RequiredGroups {
		if !containsAny(text, group) {
			return false
		}
	}
	return true
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func countPatternMatches(text string, patterns []*regexp.Regexp) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

// gateContextRequired downgrades confirm/modify/cancel/correction intents
// to unknown unless the conversation actually has the context they need.
func (p *Pipeline) gateContextRequired(intent string, convCtx domain.ConversationContext) Decision {
	if !contextRequiredIntents[intent] {
		return Decision{Intent: intent}
	}
	if len(convCtx.LastActions) > 0 {
		return Decision{Intent: intent}
	}
	for _, tag := range convCtx.ExpectingInput {
		if tag == domain.ExpectConfirmation || tag == domain.ExpectModification || tag == domain.ExpectCancellation {
			return Decision{Intent: intent}
		}
	}
	return Decision{Intent: "unknown"}
}
