package genai

import (
	"context"
	"errors"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/yegors/voxprompt/pkg/logger"
)

// OpenAIClient implements Generator on the OpenAI chat completions API,
// for deployments that point the service at an OpenAI-compatible backend
// instead of Gemini.
type OpenAIClient struct {
	client oai.Client
	logger *logger.Logger
}

// OpenAIOption is a functional option for OpenAIClient.
type OpenAIOption func(*[]option.RequestOption)

// WithOpenAIBaseURL overrides the API base URL. Used in tests.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithBaseURL(url))
	}
}

// WithOpenAITimeout sets the per-request HTTP timeout.
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// NewOpenAIClient creates an OpenAI-backed Generator.
func NewOpenAIClient(apiKey string, log *logger.Logger, opts ...OpenAIOption) *OpenAIClient {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &OpenAIClient{
		client: oai.NewClient(reqOpts...),
		logger: log.Named("openai"),
	}
}

// Generate implements Generator.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	if req.SystemInstruction != "" {
		messages = append(messages, oai.SystemMessage(req.SystemInstruction))
	}
	messages = append(messages, oai.UserMessage(req.Prompt))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}

	// The chat API has no token-denominated thinking budget; map the
	// requested budget onto reasoning effort tiers instead.
	if req.ThinkingBudget > 0 {
		if req.ThinkingBudget >= 16384 {
			params.ReasoningEffort = shared.ReasoningEffortHigh
		} else {
			params.ReasoningEffort = shared.ReasoningEffortMedium
		}
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", c.wrapError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", &RequestError{Kind: KindServer, Message: "empty choices in response"}
	}

	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", &RequestError{Kind: KindServer, Message: "empty completion text"}
	}

	c.logger.Debug("Generate request completed",
		logger.String("model", req.Model),
		logger.Int("response_chars", len(text)),
		logger.Duration("duration", time.Since(start)))

	return text, nil
}

// wrapError converts SDK errors into the shared taxonomy.
func (c *OpenAIClient) wrapError(ctx context.Context, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &RequestError{
			Kind:       classifyStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return wrapTransportError(ctx, err)
}
