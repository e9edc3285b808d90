package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// openAIClient talks to the OpenAI chat completions API. OpenRouter exposes
// the same wire format, so it reuses this client with a different base URL
// and identification headers.
type openAIClient struct {
	client     *http.Client
	model      string
	apiKey     string
	baseURL    string
	openRouter bool
}

func newOpenAI(cfg Config) *openAIClient {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &openAIClient{
		client:  &http.Client{Timeout: 120 * time.Second},
		model:   model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
	}
}

func newOpenRouter(cfg Config) *openAIClient {
	model := cfg.Model
	if model == "" {
		model = "anthropic/claude-sonnet-4"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api"
	}
	return &openAIClient{
		client:     &http.Client{Timeout: 120 * time.Second},
		model:      model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		openRouter: true,
	}
}

func (c *openAIClient) GenerateStructured(ctx context.Context, req Request, out any) error {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var messages []map[string]string
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": 0.2,
	}
	if !c.openRouter {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.openRouter {
		httpReq.Header.Set("HTTP-Referer", "https://github.com/elonfeng/narradar")
		httpReq.Header.Set("X-Title", "narradar")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call chat completions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("chat completions status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode chat response: %w", err)
	}
	if len(result.Choices) == 0 {
		return fmt.Errorf("chat completions: no choices returned")
	}

	return decodeReply(result.Choices[0].Message.Content, out)
}
