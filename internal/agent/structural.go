package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

const translationSystem = `You translate customer support messages into Korean for internal routing.
Detect the language of the message (ISO 639-1 code) and translate it. If it is already Korean, return it unchanged.
Answer with JSON only: {"translatedText": "...", "detectedLanguage": "ko"}`

const sentimentSystem = `You analyse the mood of customer support messages.
Answer with JSON only:
{"sentiment": "positive|neutral|negative|angry", "urgency": "low|medium|high|critical", "priority": "low|medium|high|urgent", "confidence": 0.0-1.0, "keywords": ["..."]}`

const reviewSystem = `You are the quality reviewer for customer support replies.
Check the draft for factual consistency with the customer's message, tone, policy risk and language.
Answer with JSON only: {"approved": true|false, "revisedContent": "<full corrected reply, only when not approved>", "issues": ["..."]}`

// TranslationResult is the parsed translation stage output.
type TranslationResult struct {
	TranslatedText   string `json:"translatedText"`
	DetectedLanguage string `json:"detectedLanguage"`
}

// ParseTranslation decodes a translation reply. It reports false unless a
// non-empty translation is present.
func ParseTranslation(content string) (TranslationResult, bool) {
	v, ok := DecodeObject[TranslationResult](content)
	if !ok || strings.TrimSpace(v.TranslatedText) == "" {
		return TranslationResult{}, false
	}
	v.DetectedLanguage = strings.ToLower(strings.TrimSpace(v.DetectedLanguage))
	return v, true
}

// ParseSentiment decodes a sentiment reply. Unknown sentiment or urgency
// values make the whole result absent; a missing priority is derived from
// the urgency.
func ParseSentiment(content string) (*domain.SentimentResult, bool) {
	v, ok := DecodeObject[domain.SentimentResult](content)
	if !ok || !v.Sentiment.Valid() || !v.Urgency.Valid() {
		return nil, false
	}
	if !v.Priority.Valid() {
		v.Priority = v.Urgency.Priority()
	}
	if v.Keywords == nil {
		v.Keywords = []string{}
	}
	v.Confidence = clamp(v.Confidence)
	return &v, true
}

// ReviewResult is the parsed QA review.
type ReviewResult struct {
	Approved       bool
	RevisedContent string
	Issues         []string
}

type reviewJSON struct {
	Approved       *bool    `json:"approved"`
	RevisedContent string   `json:"revisedContent"`
	Issues         []string `json:"issues"`
}

// ParseReview decodes a QA reply. The approval flag is required.
func ParseReview(content string) (ReviewResult, bool) {
	v, ok := DecodeObject[reviewJSON](content)
	if !ok || v.Approved == nil {
		return ReviewResult{}, false
	}
	return ReviewResult{
		Approved:       *v.Approved,
		RevisedContent: strings.TrimSpace(v.RevisedContent),
		Issues:         v.Issues,
	}, true
}

func translationPrompt(ctx context.Context, in *domain.AgentInput) (string, map[string]any, error) {
	return in.OriginalMessage, nil, nil
}

func sentimentPrompt(ctx context.Context, in *domain.AgentInput) (string, map[string]any, error) {
	return in.Message(), nil, nil
}

var errNoReviewContext = errors.New("review context is required")

func reviewPrompt(ctx context.Context, in *domain.AgentInput) (string, map[string]any, error) {
	rc := in.Context.Review
	if rc == nil {
		return "", nil, errNoReviewContext
	}
	prompt := fmt.Sprintf("%s\nDraft reply written by %s (%s):\n%s\n",
		messageContext(in), rc.OriginalAgentID.DisplayName(), rc.OriginalAgentID, rc.OriginalContent)
	return prompt, nil, nil
}
