package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/dentbot/internal/config"
	"github.com/wolfman30/dentbot/internal/conversation"
	"github.com/wolfman30/dentbot/pkg/logging"
)

// LoadAWSConfig centralizes AWS SDK initialization so every binary shares the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}
	return awsCfg, nil
}

// NewBedrockClient builds a Bedrock runtime client, honouring
// AWS_ENDPOINT_OVERRIDE for local stacks.
func NewBedrockClient(awsCfg aws.Config, cfg *appconfig.Config) *bedrockruntime.Client {
	return bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// LLMClients holds the configured generative backends. Primary is nil when
// nothing is configured; Close releases provider connections.
type LLMClients struct {
	Primary conversation.LLMClient
	Model   string
	closers []func() error
}

func (c *LLMClients) Close() {
	for _, closeFn := range c.closers {
		_ = closeFn()
	}
}

// BuildLLMClients wires the selected provider as primary. When credentials
// for the other provider are also present it becomes the fallback.
func BuildLLMClients(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*LLMClients, error) {
	out := &LLMClients{}

	var gemini, bedrock conversation.LLMClient
	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		client, err := conversation.NewGeminiLLMClient(ctx, key, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("mainconfig: gemini client: %w", err)
		}
		out.closers = append(out.closers, client.Close)
		gemini = client
	}
	if modelID := strings.TrimSpace(cfg.BedrockModelID); modelID != "" {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("mainconfig: aws config: %w", err)
		}
		bedrock = conversation.NewBedrockLLMClient(NewBedrockClient(awsCfg, cfg), modelID)
	}

	primary, fallback := gemini, bedrock
	if cfg.LLMProvider == "bedrock" {
		primary, fallback = bedrock, gemini
	}
	switch {
	case primary == nil:
		// Selected provider is unconfigured; the other one is not promoted.
		return out, nil
	case fallback != nil:
		out.Primary = conversation.NewFallbackLLMClient(primary, fallback, logger)
	default:
		out.Primary = primary
	}
	out.Model = cfg.LLMModel()
	return out, nil
}
