package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yegors/voxprompt/pkg/logger"
)

// GeminiClient calls the Gemini generateContent REST endpoint.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// GeminiOption is a functional option for GeminiClient.
type GeminiOption func(*GeminiClient)

// WithGeminiBaseURL overrides the API base URL. Used in tests to point at
// a local mock server.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithGeminiTimeout sets the per-request HTTP timeout.
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(c *GeminiClient) { c.httpClient.Timeout = d }
}

// NewGeminiClient creates a Gemini REST client.
func NewGeminiClient(apiKey string, log *logger.Logger, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		apiKey:  apiKey,
		baseURL: "https://generativelanguage.googleapis.com",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: log.Named("gemini"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// generateContent request/response payloads (the subset this service uses).

type geminiGenerateRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	ThinkingConfig *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate implements Generator against the generateContent endpoint.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", &RequestError{Kind: KindAuth, Message: "Gemini API key is not configured"}
	}

	payload := geminiGenerateRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
	}
	if req.SystemInstruction != "" {
		payload.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemInstruction}},
		}
	}
	if req.ThinkingBudget > 0 {
		payload.GenerationConfig = &geminiGenerationConfig{
			ThinkingConfig: &geminiThinkingConfig{ThinkingBudget: req.ThinkingBudget},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", wrapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapTransportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		var errResp geminiErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			message = errResp.Error.Message
		}
		c.logger.Warn("Generate request failed",
			logger.String("model", req.Model),
			logger.Int("status_code", resp.StatusCode),
			logger.String("message", message))
		return "", &RequestError{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}

	var genResp geminiGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", &RequestError{Kind: KindServer, Message: "malformed response body", Err: err}
	}
	if len(genResp.Candidates) == 0 {
		return "", &RequestError{Kind: KindServer, Message: "no candidates in response"}
	}

	var sb strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &RequestError{Kind: KindServer, Message: "empty candidate text"}
	}

	c.logger.Debug("Generate request completed",
		logger.String("model", req.Model),
		logger.Int("prompt_chars", len(req.Prompt)),
		logger.Int("response_chars", len(text)),
		logger.Duration("duration", time.Since(start)))

	return text, nil
}
