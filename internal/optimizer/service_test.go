package optimizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yegors/voxprompt/internal/genai"
	"github.com/yegors/voxprompt/pkg/logger"
)

type fakeGenerator struct {
	lastReq genai.Request
	text    string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, req genai.Request) (string, error) {
	f.lastReq = req
	return f.text, f.err
}

type fakeHistory struct {
	saved []string
	err   error
}

func (f *fakeHistory) Save(text string) error {
	f.saved = append(f.saved, text)
	return f.err
}

func TestOptimizeGeneral(t *testing.T) {
	gen := &fakeGenerator{text: "  An optimized prompt.  "}
	hist := &fakeHistory{}
	s := NewService(gen, hist, "gemini-2.5-flash", logger.Nop())

	text, err := s.Optimize(context.Background(), Request{Prompt: "  write me a poem  "})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if text != "An optimized prompt." {
		t.Errorf("want trimmed output, got %q", text)
	}
	if gen.lastReq.Model != "gemini-2.5-flash" {
		t.Errorf("default model not applied, got %q", gen.lastReq.Model)
	}
	if gen.lastReq.Prompt != "write me a poem" {
		t.Errorf("prompt not trimmed, got %q", gen.lastReq.Prompt)
	}
	if !strings.Contains(gen.lastReq.SystemInstruction, "world-class prompt engineer") {
		t.Errorf("base instruction missing: %q", gen.lastReq.SystemInstruction)
	}
	if !strings.Contains(gen.lastReq.SystemInstruction, "remove ambiguity") {
		t.Errorf("general addendum missing: %q", gen.lastReq.SystemInstruction)
	}
	if gen.lastReq.ThinkingBudget != 0 {
		t.Errorf("non-reasoning call must not request thinking, got %d", gen.lastReq.ThinkingBudget)
	}
	if len(hist.saved) != 1 || hist.saved[0] != "write me a poem" {
		t.Errorf("history hook: got %v", hist.saved)
	}
}

func TestOptimizeReasoningBudgetByModelTier(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"gemini-3-pro-preview", 16384},
		{"gemini-2.5-flash", 8192},
		{"gemini-flash-lite-latest", 8192},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			gen := &fakeGenerator{text: "out"}
			s := NewService(gen, nil, "d", logger.Nop())

			_, err := s.Optimize(context.Background(), Request{
				Prompt: "p", Model: tt.model, Strategy: StrategyReasoning,
			})
			if err != nil {
				t.Fatalf("Optimize: %v", err)
			}
			if gen.lastReq.ThinkingBudget != tt.want {
				t.Errorf("budget: want %d, got %d", tt.want, gen.lastReq.ThinkingBudget)
			}
			if !strings.Contains(gen.lastReq.SystemInstruction, "CHAIN OF THOUGHT") {
				t.Errorf("reasoning addendum missing: %q", gen.lastReq.SystemInstruction)
			}
		})
	}
}

func TestOptimizeWritingTone(t *testing.T) {
	gen := &fakeGenerator{text: "out"}
	s := NewService(gen, nil, "d", logger.Nop())

	_, err := s.Optimize(context.Background(), Request{
		Prompt: "p", Strategy: StrategyWriting, Tone: "whimsical",
	})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !strings.Contains(gen.lastReq.SystemInstruction, "Tone: whimsical.") {
		t.Errorf("tone not interpolated: %q", gen.lastReq.SystemInstruction)
	}
}

func TestOptimizeNegativeConstraint(t *testing.T) {
	gen := &fakeGenerator{text: "out"}
	s := NewService(gen, nil, "d", logger.Nop())

	_, err := s.Optimize(context.Background(), Request{
		Prompt: "p", NegativePrompt: "emojis",
	})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !strings.Contains(gen.lastReq.SystemInstruction, `forbidding: "emojis"`) {
		t.Errorf("negative constraint missing: %q", gen.lastReq.SystemInstruction)
	}
}

func TestOptimizeEmptyPrompt(t *testing.T) {
	s := NewService(&fakeGenerator{}, nil, "d", logger.Nop())
	if _, err := s.Optimize(context.Background(), Request{Prompt: "   "}); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("want ErrEmptyPrompt, got %v", err)
	}
}

func TestOptimizeUnknownStrategy(t *testing.T) {
	s := NewService(&fakeGenerator{}, nil, "d", logger.Nop())
	if _, err := s.Optimize(context.Background(), Request{Prompt: "p", Strategy: "sonnet"}); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("want ErrUnknownStrategy, got %v", err)
	}
}

func TestOptimizeHistoryFailureNonFatal(t *testing.T) {
	gen := &fakeGenerator{text: "out"}
	hist := &fakeHistory{err: errors.New("disk full")}
	s := NewService(gen, hist, "d", logger.Nop())

	text, err := s.Optimize(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("history failure must not fail optimization: %v", err)
	}
	if text != "out" {
		t.Errorf("got %q", text)
	}
}

func TestOptimizeGenerationError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	hist := &fakeHistory{}
	s := NewService(gen, hist, "d", logger.Nop())

	if _, err := s.Optimize(context.Background(), Request{Prompt: "keep me"}); err == nil {
		t.Fatal("expected generation error")
	}
	// The prompt is still recorded even when generation fails.
	if len(hist.saved) != 1 {
		t.Errorf("prompt should be saved before the call, got %v", hist.saved)
	}
}

func TestStrategiesListedInOrder(t *testing.T) {
	infos := Strategies()
	if len(infos) != 10 {
		t.Fatalf("want 10 strategies, got %d", len(infos))
	}
	if infos[0].ID != StrategyGeneral {
		t.Errorf("general should lead the list, got %v", infos[0].ID)
	}
	for _, info := range infos {
		if info.Description == "" {
			t.Errorf("strategy %q missing description", info.ID)
		}
		if !info.ID.Valid() {
			t.Errorf("listed strategy %q not valid", info.ID)
		}
	}
}
