package conversation

import (
	"context"

	"github.com/wolfman30/dentbot/pkg/logging"
)

// FallbackLLMClient sends extraction requests to the configured provider and,
// when it errors, makes one attempt against the other provider. Output
// validation stays with GenerativeExtractor, so a well-formed but wrong
// answer from the primary is not retried here.
type FallbackLLMClient struct {
	primary   LLMClient
	secondary LLMClient
	logger    *logging.Logger
}

// NewFallbackLLMClient pairs two providers. A nil secondary makes the client
// a pass-through to primary.
func NewFallbackLLMClient(primary, secondary LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{primary: primary, secondary: secondary, logger: logger}
}

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, primaryErr := c.primary.Complete(ctx, req)
	if primaryErr == nil {
		return resp, nil
	}
	// Once the extraction deadline is spent the secondary cannot answer in
	// time either; the extractor falls back to deterministic parsing.
	if c.secondary == nil || ctx.Err() != nil {
		c.logger.Warn("extraction provider failed", "error", primaryErr, "secondary_attempted", false)
		return LLMResponse{}, primaryErr
	}

	c.logger.Warn("extraction provider failed, trying secondary", "error", primaryErr)
	req.Model = "" // model ids are provider specific
	resp, err := c.secondary.Complete(ctx, req)
	if err != nil {
		c.logger.Error("secondary extraction provider failed",
			"primary_error", primaryErr,
			"secondary_error", err,
		)
		return LLMResponse{}, err
	}
	return resp, nil
}
