package router

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthConfig describes the extraction backend for /health.
type HealthConfig struct {
	UseLLM       bool
	LLMAvailable bool
	Model        string
	Now          func() time.Time
}

type healthResponse struct {
	Status       string `json:"status"`
	UseLLM       bool   `json:"use_llm"`
	LLMAvailable bool   `json:"llm_available"`
	Model        string `json:"model,omitempty"`
	NaiveParsing bool   `json:"naive_parsing,omitempty"`
	Timestamp    string `json:"timestamp"`
}

func healthHandler(cfg HealthConfig) http.HandlerFunc {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:       "ok",
			UseLLM:       cfg.UseLLM,
			LLMAvailable: cfg.LLMAvailable,
			Timestamp:    now().UTC().Format(time.RFC3339),
		}
		if cfg.UseLLM && cfg.LLMAvailable {
			resp.Model = cfg.Model
		} else {
			resp.NaiveParsing = true
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
