package genai

import (
	"context"
	"errors"
	"fmt"
)

// Request is one one-shot text generation call.
type Request struct {
	Model             string
	Prompt            string
	SystemInstruction string
	// ThinkingBudget caps reasoning tokens for models that support it.
	// Zero means provider default.
	ThinkingBudget int
}

// Generator is the text-generation collaborator. Implementations are
// stateless and safe for concurrent use: the optimize flow and the polish
// flow may call the same Generator at the same time.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Kind classifies a failed generation request.
type Kind string

const (
	KindNetwork Kind = "network"
	KindAuth    Kind = "auth"
	KindServer  Kind = "server"
	KindTimeout Kind = "timeout"
)

// RequestError is returned for any failed generation call.
type RequestError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("genai: %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("genai: %s error: %s", e.Kind, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ErrKind extracts the failure kind from err, or "" if err is not a
// RequestError.
func ErrKind(err error) Kind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return ""
}

// wrapTransportError classifies transport-level failures, distinguishing
// deadline expiry from plain connectivity problems.
func wrapTransportError(ctx context.Context, err error) *RequestError {
	kind := KindNetwork
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		kind = KindTimeout
	}
	return &RequestError{Kind: kind, Message: err.Error(), Err: err}
}

// classifyStatus maps an HTTP status code to a failure kind.
func classifyStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 408 || status == 504:
		return KindTimeout
	default:
		return KindServer
	}
}
