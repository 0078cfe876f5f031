package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/dentbot/internal/bookings"
	appconfig "github.com/wolfman30/dentbot/internal/config"
	"github.com/wolfman30/dentbot/internal/conversation"
	"github.com/wolfman30/dentbot/internal/observability/metrics"
	"github.com/wolfman30/dentbot/pkg/logging"
)

// NegotiationDeps are the collaborators BuildNegotiationService wires
// together. LLM, Audit and Metrics are optional.
type NegotiationDeps struct {
	Turns   conversation.TurnStore
	Store   bookings.Store
	LLM     conversation.LLMClient
	Model   string
	Audit   conversation.AuditLogger
	Metrics *metrics.NegotiationMetrics
	Now     func() time.Time
}

// BuildExtractor reads clinic policy from cfg and returns the dual-strategy
// extractor.
func BuildExtractor(cfg *appconfig.Config, llm conversation.LLMClient, model string, m *metrics.NegotiationMetrics, now func() time.Time, logger *logging.Logger) (*conversation.Extractor, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	hours, err := conversation.ParseBusinessHours(cfg.BusinessHours)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: business hours: %w", err)
	}
	return conversation.NewExtractor(conversation.ExtractorConfig{
		LLM:      llm,
		Model:    model,
		Hours:    hours,
		Location: conversation.ClinicLocation(cfg.ClinicTimezone),
		Timeout:  cfg.LLMTimeout,
		Now:      now,
		Logger:   logger,
		Metrics:  m,
	}), nil
}

// BuildNegotiationService wires the extractor, booking service and session
// store. The default strategy is generative only when USE_LLM is set and a
// client is available.
func BuildNegotiationService(cfg *appconfig.Config, deps NegotiationDeps, logger *logging.Logger) (*conversation.NegotiationService, *conversation.Extractor, error) {
	if cfg == nil {
		return nil, nil, errors.New("bootstrap: config required")
	}
	if deps.Turns == nil || deps.Store == nil {
		return nil, nil, errors.New("bootstrap: turn store and booking store required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	llm := deps.LLM
	if !cfg.UseLLM {
		llm = nil
	}
	extractor, err := BuildExtractor(cfg, llm, deps.Model, deps.Metrics, deps.Now, logger)
	if err != nil {
		return nil, nil, err
	}

	bookingOpts := []bookings.Option{
		bookings.WithMetrics(deps.Metrics),
		bookings.WithDefaultDuration(cfg.DefaultDurationMinutes),
		bookings.WithClock(deps.Now),
	}
	bookingSvc := bookings.NewService(deps.Store, logger, bookingOpts...)

	strategy := conversation.StrategyDeterministic
	if extractor.GenerativeAvailable() {
		strategy = conversation.StrategyGenerative
	}
	opts := []conversation.ServiceOption{
		conversation.WithServiceMetrics(deps.Metrics),
		conversation.WithHistoryTurns(cfg.LLMHistoryTurns),
		conversation.WithDefaultStrategy(strategy),
		conversation.WithServiceClock(deps.Now),
	}
	if deps.Audit != nil {
		opts = append(opts, conversation.WithAuditLogger(deps.Audit))
	}
	svc := conversation.NewNegotiationService(deps.Turns, extractor, bookingSvc, logger, opts...)
	logger.Info("negotiation service ready",
		"default_strategy", strategy,
		"generative_available", extractor.GenerativeAvailable(),
	)
	return svc, extractor, nil
}
