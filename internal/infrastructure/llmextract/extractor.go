// Package llmextract implements the §6.4 LLMExtractor collaborator: a
// non-streaming OpenAI-compatible chat completions client that asks the
// configured model for structured citation metadata.
package llmextract

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
)

// Config mirrors infrastructure/config.LLMConfig.
type Config struct {
	Provider  string // local | remote | disabled
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
}

// Extractor is the OpenAI-compatible implementation of service.LLMExtractor.
type Extractor struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// New builds an extractor. The transport tunes connection pooling for LLM
// HTTP calls' latency profile (slow first-byte, idle-heavy keep-alive)
// typical of any chat-completions client.
func New(cfg Config, logger *zap.Logger) *Extractor {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Extractor{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Transport: transport, Timeout: timeout},
		logger:  logger.With(zap.String("component", "llm_extractor")),
	}
}

var _ service.LLMExtractor = (*Extractor)(nil)

const extractionSystemPrompt = `You extract bibliographic metadata from the supplied document text.
Respond with a single JSON object with keys: title, authors (array of strings), date, publication, type, abstract, identifier.
Omit any key you cannot determine. Do not include any text outside the JSON object.`

type chatRequest struct {
	Model          string             `json:"model"`
	Messages       []chatMessage      `json:"messages"`
	ResponseFormat *responseFormatObj `json:"response_format,omitempty"`
}

type responseFormatObj struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ExtractMetadata sends the content content references (dereferenced here
// to raw text by the caller's content-fetch cache) to the chat-completions
// endpoint and parses the structured JSON reply.
func (e *Extractor) ExtractMetadata(ctx context.Context, contentRef string) (service.LLMExtraction, error) {
	reqBody := chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: contentRef},
		},
		ResponseFormat: &responseFormatObj{Type: "json_object"},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return service.LLMExtraction{}, fmt.Errorf("marshal llm request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return service.LLMExtraction{}, fmt.Errorf("build llm request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return service.LLMExtraction{}, fmt.Errorf("llm http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return service.LLMExtraction{}, fmt.Errorf("read llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return service.LLMExtraction{}, fmt.Errorf("llm api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return service.LLMExtraction{}, fmt.Errorf("parse llm response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return service.LLMExtraction{}, fmt.Errorf("empty llm response: no choices")
	}

	var metadata map[string]interface{}
	if err := json.Unmarshal([]byte(apiResp.Choices[0].Message.Content), &metadata); err != nil {
		return service.LLMExtraction{}, fmt.Errorf("parse extracted metadata: %w", err)
	}

	return service.LLMExtraction{
		Metadata:   metadata,
		Confidence: confidenceFromUsage(apiResp.Usage.TotalTokens),
		TokensUsed: apiResp.Usage.TotalTokens,
		Provider:   "openai-compatible",
		Model:      apiResp.Model,
	}, nil
}

// confidenceFromUsage is a coarse heuristic: extractions grounded in enough
// context to need a non-trivial token budget tend to be more complete than
// ones the model answered from a near-empty prompt.
func confidenceFromUsage(tokens int) float64 {
	switch {
	case tokens <= 0:
		return 0
	case tokens < 200:
		return 0.5
	default:
		return 0.85
	}
}
