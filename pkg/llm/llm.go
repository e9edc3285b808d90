package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Request is a structured-generation request. The reply is expected to be a
// single JSON document matching the schema described in the prompt.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Client is the single language-model capability the pipeline depends on.
// Tests substitute a deterministic implementation.
type Client interface {
	// GenerateStructured issues the request and decodes the model's JSON
	// reply into out.
	GenerateStructured(ctx context.Context, req Request, out any) error
}

// Config selects and configures a provider.
type Config struct {
	Provider string `yaml:"provider"` // "openai", "anthropic", "openrouter", "gemini"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// New builds the configured provider client.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: no API key configured for provider %q", cfg.Provider)
	}
	switch cfg.Provider {
	case "anthropic":
		return newAnthropic(cfg), nil
	case "gemini":
		return newGemini(cfg)
	case "openrouter":
		return newOpenRouter(cfg), nil
	case "openai", "":
		return newOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// decodeReply strips markdown fences, extracts the outermost JSON document,
// and unmarshals it into out. Models wrap JSON in prose and code fences often
// enough that both repairs are applied before giving up.
func decodeReply(raw string, out any) error {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}

	// Fall back to the outermost {...} or [...] block.
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return fmt.Errorf("llm: no JSON found in reply: %s", truncate(text, 200))
	}
	var end int
	if text[start] == '{' {
		end = strings.LastIndex(text, "}")
	} else {
		end = strings.LastIndex(text, "]")
	}
	if end <= start {
		return fmt.Errorf("llm: unterminated JSON in reply: %s", truncate(text, 200))
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("llm: parse reply: %w (raw: %s)", err, truncate(text, 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
