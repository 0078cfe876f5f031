package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/dentbot/cmd/mainconfig"
	"github.com/wolfman30/dentbot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/dentbot/internal/config"
	"github.com/wolfman30/dentbot/internal/conversation"
	"github.com/wolfman30/dentbot/pkg/logging"
)

// llmtest runs one message through both extraction strategies and prints the
// results side by side:
//
//	go run ./cmd/llmtest "can I come in next monday at 2pm?"
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	message := strings.TrimSpace(strings.Join(os.Args[1:], " "))
	if message == "" {
		message = "Can I come in next Monday at 2pm?"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := appconfig.Load()
	cfg.UseLLM = true
	logger := logging.New(cfg.LogLevel)

	llm, err := mainconfig.BuildLLMClients(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("build llm clients: %v", err)
	}
	defer llm.Close()
	if llm.Primary == nil {
		fmt.Printf("Provider %q is not configured; generative results will fall back\n", cfg.LLMProvider)
	}

	extractor, err := bootstrap.BuildExtractor(cfg, llm.Primary, llm.Model, nil, nil, logger)
	if err != nil {
		log.Fatalf("build extractor: %v", err)
	}

	fmt.Printf("Message: %q\n", message)
	for _, strategy := range []conversation.Strategy{conversation.StrategyDeterministic, conversation.StrategyGenerative} {
		start := time.Now()
		res, err := extractor.Extract(ctx, conversation.ExtractRequest{Message: message, Strategy: strategy})
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			fmt.Printf("\n[%s] error after %v: %v\n", strategy, elapsed, err)
			continue
		}
		out, _ := json.MarshalIndent(res, "", "  ")
		fmt.Printf("\n[%s] %v\n%s\n", strategy, elapsed, out)
	}
}
