// Package optimizer rewrites user prompts into structured prompts via
// the one-shot generation collaborator, applying one of a fixed set of
// prompt-engineering frameworks.
package optimizer

import (
	"context"
	"errors"
	"strings"

	"github.com/yegors/voxprompt/internal/genai"
	"github.com/yegors/voxprompt/pkg/logger"
)

// ErrEmptyPrompt is returned when there is nothing to optimize.
var ErrEmptyPrompt = errors.New("optimizer: prompt is empty")

// ErrUnknownStrategy is returned for a strategy the service does not know.
var ErrUnknownStrategy = errors.New("optimizer: unknown strategy")

// Thinking budgets for the reasoning strategy, keyed on model tier.
const (
	proThinkingBudget     = 16384
	defaultThinkingBudget = 8192
)

// HistorySaver records one finalized prompt submission.
// *sqlite.HistoryStorage satisfies it.
type HistorySaver interface {
	Save(text string) error
}

// Request is one optimize call.
type Request struct {
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model"`
	Strategy       Strategy `json:"strategy"`
	Tone           string   `json:"tone,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
}

// Service runs prompt optimization.
type Service struct {
	gen          genai.Generator
	history      HistorySaver
	defaultModel string
	logger       *logger.Logger
}

// NewService creates an optimizer service. history may be nil when no
// persistence is wired.
func NewService(gen genai.Generator, history HistorySaver, defaultModel string, log *logger.Logger) *Service {
	return &Service{
		gen:          gen,
		history:      history,
		defaultModel: defaultModel,
		logger:       log.Named("optimizer"),
	}
}

// Optimize rewrites one prompt. The submitted prompt is appended to the
// history list before the call, so it is recorded even if generation
// fails.
func (s *Service) Optimize(ctx context.Context, req Request) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyGeneral
	}
	if !strategy.Valid() {
		return "", ErrUnknownStrategy
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	if s.history != nil {
		if err := s.history.Save(prompt); err != nil {
			s.logger.Warn("Failed to save prompt history", logger.Error(err))
		}
	}

	genReq := genai.Request{
		Model:             model,
		Prompt:            prompt,
		SystemInstruction: buildSystemInstruction(strategy, req.Tone, strings.TrimSpace(req.NegativePrompt)),
	}
	if strategy == StrategyReasoning {
		genReq.ThinkingBudget = thinkingBudgetFor(model)
	}

	s.logger.Info("Optimizing prompt",
		logger.String("strategy", string(strategy)),
		logger.String("model", model),
		logger.Int("chars", len(prompt)))

	text, err := s.gen.Generate(ctx, genReq)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// thinkingBudgetFor sizes the reasoning budget to the model tier: pro
// models get the larger budget.
func thinkingBudgetFor(model string) int {
	if strings.Contains(model, "pro") {
		return proThinkingBudget
	}
	return defaultThinkingBudget
}
