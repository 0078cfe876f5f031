package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/dentbot/internal/observability/metrics"
	"github.com/wolfman30/dentbot/pkg/logging"
)

// ExtractionResult is the interpretation of one patient message.
type ExtractionResult struct {
	Reply             string     `json:"reply"`
	Intent            Intent     `json:"intent"`
	Candidate         *time.Time `json:"appointment_candidate"`
	NeedsConfirmation bool       `json:"needs_confirmation"`
	Confidence        float64    `json:"confidence"`
	Strategy          Strategy   `json:"strategy"`
	FellBack          bool       `json:"fell_back"`
	FallbackReason    string     `json:"fallback_reason,omitempty"`
}

// ExtractRequest carries the message and the context the extractor may use.
type ExtractRequest struct {
	Message     string
	RecentTurns []Turn
	Strategy    Strategy
	// Pending is the proposal awaiting confirmation, if any.
	Pending *time.Time
}

// Extractor picks a strategy per call. Generative failures degrade to the
// deterministic parser and are never surfaced to the caller.
type Extractor struct {
	generative    *GenerativeExtractor
	deterministic *DeterministicExtractor
	logger        *logging.Logger
	metrics       *metrics.NegotiationMetrics
}

// ExtractorConfig wires an Extractor. LLM may be nil, in which case the
// generative strategy always falls back with reason "unavailable".
type ExtractorConfig struct {
	LLM      LLMClient
	Model    string
	Hours    BusinessHours
	Location *time.Location
	Timeout  time.Duration
	Now      func() time.Time
	Logger   *logging.Logger
	Metrics  *metrics.NegotiationMetrics
}

func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	ext := &Extractor{
		deterministic: NewDeterministicExtractor(cfg.Hours, cfg.Location, cfg.Now),
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
	if cfg.LLM != nil {
		ext.generative = NewGenerativeExtractor(cfg.LLM, cfg.Model, cfg.Hours, cfg.Location, cfg.Now, cfg.Timeout)
	}
	return ext
}

// GenerativeAvailable reports whether a generative backend is wired.
func (e *Extractor) GenerativeAvailable() bool {
	return e.generative != nil
}

// Extract interprets req.Message. The only error is caller cancellation.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) (ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return ExtractionResult{}, err
	}
	requested := req.Strategy
	if requested == "" {
		requested = StrategyDeterministic
	}

	if requested == StrategyGenerative {
		start := time.Now()
		res, err := e.generative.Extract(ctx, req.Message, req.RecentTurns, req.Pending)
		if err == nil {
			e.metrics.ObserveLLMLatency("ok", time.Since(start).Seconds())
			e.metrics.ObserveExtraction(string(requested), string(res.Strategy), string(res.Intent))
			return res, nil
		}

		var fb *fallbackError
		if !errors.As(err, &fb) {
			// Caller cancellation.
			return ExtractionResult{}, err
		}
		if fb.reason != FallbackUnavailable {
			e.metrics.ObserveLLMLatency("error", time.Since(start).Seconds())
		}
		e.metrics.ObserveFallback(fb.reason)
		e.logger.Warn("generative extraction fell back to deterministic parser", "reason", fb.reason, "error", err)

		res = e.deterministic.Extract(req.Message, req.Pending)
		res.FellBack = true
		res.FallbackReason = fb.reason
		e.metrics.ObserveExtraction(string(requested), string(res.Strategy), string(res.Intent))
		return res, nil
	}

	res := e.deterministic.Extract(req.Message, req.Pending)
	e.metrics.ObserveExtraction(string(requested), string(res.Strategy), string(res.Intent))
	return res, nil
}
