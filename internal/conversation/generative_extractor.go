package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
)

const defaultGenerativeConfidence = 0.8

// Fallback reasons reported when generative extraction is abandoned.
const (
	FallbackUnavailable      = "unavailable"
	FallbackTimeout          = "timeout"
	FallbackTransport        = "transport"
	FallbackMalformed        = "malformed_json"
	FallbackInvalidIntent    = "invalid_intent"
	FallbackInvalidCandidate = "invalid_candidate"
	FallbackMissingCandidate = "missing_candidate"
	FallbackPastCandidate    = "past_candidate"
	FallbackOutsideHours     = "outside_hours"
)

// fallbackError carries the reason generative extraction gave up.
type fallbackError struct {
	reason string
	err    error
}

func (e *fallbackError) Error() string {
	if e.err == nil {
		return "conversation: generative extraction failed: " + e.reason
	}
	return "conversation: generative extraction failed: " + e.reason + ": " + e.err.Error()
}

func (e *fallbackError) Unwrap() error { return e.err }

type generativePayload struct {
	Reply                string   `json:"reply"`
	Intent               string   `json:"intent"`
	AppointmentCandidate *string  `json:"appointment_candidate"`
	NeedsConfirmation    bool     `json:"needs_confirmation"`
	Confidence           *float64 `json:"confidence"`
}

// GenerativeExtractor asks an LLM to classify the message and validates
// whatever comes back. Every failure is reported as a *fallbackError.
type GenerativeExtractor struct {
	client  LLMClient
	model   string
	hours   BusinessHours
	loc     *time.Location
	now     func() time.Time
	timeout time.Duration
}

func NewGenerativeExtractor(client LLMClient, model string, hours BusinessHours, loc *time.Location, now func() time.Time, timeout time.Duration) *GenerativeExtractor {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &GenerativeExtractor{
		client:  client,
		model:   model,
		hours:   hours,
		loc:     loc,
		now:     now,
		timeout: timeout,
	}
}

// Extract returns ctx.Err() unwrapped when the caller cancels; all other
// failures come back as *fallbackError.
func (g *GenerativeExtractor) Extract(ctx context.Context, message string, recent []Turn, pending *time.Time) (ExtractionResult, error) {
	if g == nil || g.client == nil {
		return ExtractionResult{}, &fallbackError{reason: FallbackUnavailable}
	}

	now := g.now().In(g.loc)
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Complete(callCtx, LLMRequest{
		Model:       g.model,
		System:      []string{buildSystemPrompt(g.hours, now)},
		Messages:    buildExtractionMessages(recent, message),
		MaxTokens:   500,
		Temperature: 0.2,
		Schema:      extractionSchema(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return ExtractionResult{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return ExtractionResult{}, &fallbackError{reason: FallbackTimeout, err: err}
		}
		return ExtractionResult{}, &fallbackError{reason: FallbackTransport, err: err}
	}

	return g.parse(resp.Text, now, pending)
}

func (g *GenerativeExtractor) parse(raw string, now time.Time, pending *time.Time) (ExtractionResult, error) {
	var payload generativePayload
	if err := json.Unmarshal([]byte(extractJSONObject(stripCodeFence(raw))), &payload); err != nil {
		return ExtractionResult{}, &fallbackError{reason: FallbackMalformed, err: err}
	}

	intent := Intent(strings.ToLower(strings.TrimSpace(payload.Intent)))
	if !intent.Valid() {
		return ExtractionResult{}, &fallbackError{reason: FallbackInvalidIntent, err: errors.New(payload.Intent)}
	}

	var candidate *time.Time
	if intent != IntentChat && payload.AppointmentCandidate != nil && strings.TrimSpace(*payload.AppointmentCandidate) != "" {
		t, err := ParseCandidate(strings.TrimSpace(*payload.AppointmentCandidate))
		if err != nil {
			return ExtractionResult{}, &fallbackError{reason: FallbackInvalidCandidate, err: err}
		}
		if !t.After(now) {
			return ExtractionResult{}, &fallbackError{reason: FallbackPastCandidate}
		}
		local := t.In(g.loc)
		if !g.hours.Contains(local) {
			return ExtractionResult{}, &fallbackError{reason: FallbackOutsideHours}
		}
		candidate = &local
	}
	if intent == IntentPropose && candidate == nil {
		return ExtractionResult{}, &fallbackError{reason: FallbackMissingCandidate}
	}
	// Confirming a different time than the pending one is a new proposal.
	if intent == IntentConfirm && candidate != nil && !sameInstant(candidate, pending) {
		intent = IntentPropose
	}

	confidence := defaultGenerativeConfidence
	if payload.Confidence != nil && !math.IsNaN(*payload.Confidence) {
		confidence = clamp01(*payload.Confidence)
	}

	reply := strings.TrimSpace(payload.Reply)
	res := ExtractionResult{
		Reply:      reply,
		Intent:     intent,
		Candidate:  candidate,
		Confidence: confidence,
		Strategy:   StrategyGenerative,
	}
	if intent == IntentPropose {
		res.NeedsConfirmation = true
		question := "Would you like me to confirm this appointment for " + FormatSlot(*candidate) + "?"
		if reply == "" {
			res.Reply = question
		} else {
			res.Reply = reply + " " + question
		}
	}
	if intent == IntentChat && reply == "" {
		res.Reply = "I'm here to help with your appointment needs. What day and time would work best for you?"
	}
	return res, nil
}

func buildExtractionMessages(recent []Turn, message string) []ChatMessage {
	out := make([]ChatMessage, 0, len(recent)+1)
	for _, turn := range recent {
		if turn.Role != ChatRoleUser && turn.Role != ChatRoleAssistant {
			continue
		}
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		out = append(out, ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	return append(out, ChatMessage{Role: ChatRoleUser, Content: message})
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func extractJSONObject(text string) string {
	if strings.HasPrefix(text, "{") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
