// Package llm abstracts the external language-model engine used for
// intent classification. Implementations return the model's raw text;
// interpretation of that text happens upstream.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the model service could not be reached or
// returned an unusable response. Distinct from context deadline errors,
// which signal a timeout.
var ErrUnavailable = errors.New("llm unavailable")

type Turn struct {
	Role    string // user or assistant
	Content string
}

type Request struct {
	System string
	Turns  []Turn
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
