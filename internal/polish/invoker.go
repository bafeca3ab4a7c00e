// Package polish cleans up raw dictation transcripts: it sends the
// accumulated text to a generation model with a fixed cleanup
// instruction and returns the polished English text.
package polish

import (
	"context"
	"fmt"
	"strings"

	"github.com/yegors/voxprompt/internal/genai"
	"github.com/yegors/voxprompt/pkg/logger"
)

// Mode distinguishes the quiet-interval refinements from the one final
// pass on stop. The request is identical either way; the mode only
// feeds logging and status reporting.
type Mode string

const (
	ModeIntermediate Mode = "intermediate"
	ModeFinal        Mode = "final"
)

// ErrTooShort is returned when the transcript is below the minimum
// length worth sending to the model.
var ErrTooShort = fmt.Errorf("polish: transcript too short")

const systemInstruction = `You are a translator and grammar expert. The user has just dictated a prompt via voice.
1. Detect the language.
2. If not English, translate to English.
3. Fix any transcription errors, stuttering, or grammar mistakes.
4. **FORMATTING RULE**: If the input contains a numbered sequence, multiple steps, or list-like items, format the output as a bulleted list. Otherwise, output a clean, standard paragraph.
5. Output ONLY the clean, final English text.`

// Invoker runs polish calls against a generation backend.
type Invoker struct {
	gen      genai.Generator
	model    string
	minChars int
	logger   *logger.Logger
}

// NewInvoker creates a polish invoker. Transcripts shorter than
// minChars are rejected with ErrTooShort.
func NewInvoker(gen genai.Generator, model string, minChars int, log *logger.Logger) *Invoker {
	return &Invoker{
		gen:      gen,
		model:    model,
		minChars: minChars,
		logger:   log.Named("polish"),
	}
}

// Polish cleans up one transcript snapshot. The returned text is
// trimmed; an empty model response is an error so callers never
// overwrite the display with nothing.
func (iv *Invoker) Polish(ctx context.Context, transcript string, mode Mode) (string, error) {
	if len(transcript) < iv.minChars {
		return "", ErrTooShort
	}

	iv.logger.Debug("Polishing transcript",
		logger.String("mode", string(mode)),
		logger.Int("chars", len(transcript)))

	text, err := iv.gen.Generate(ctx, genai.Request{
		Model:             iv.model,
		Prompt:            transcript,
		SystemInstruction: systemInstruction,
	})
	if err != nil {
		return "", fmt.Errorf("polish: %s: %w", mode, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("polish: %s: model returned empty text", mode)
	}
	return text, nil
}
