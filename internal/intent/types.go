// Package intent maps user text to a recognized intent and fulfillment text,
// either through Dialogflow or through a deterministic local matcher.
package intent

import (
	"context"
	"errors"
	"fmt"
)

// DefaultLanguageCode is used when a query does not carry one.
const DefaultLanguageCode = "en-US"

// Query is the intent-detection request sent to a Resolver.
type Query struct {
	SessionID    string `json:"sessionId"`
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
	AgentID      string `json:"agentId,omitempty"`
}

// Intent identifies the matched intent.
type Intent struct {
	DisplayName string  `json:"displayName"`
	Confidence  float64 `json:"confidence"`
}

// OutputContext is a Dialogflow context returned alongside a match.
type OutputContext struct {
	Name          string         `json:"name"`
	LifespanCount int            `json:"lifespanCount"`
	Parameters    map[string]any `json:"parameters"`
}

// Result is the intent-detection response.
type Result struct {
	QueryText       string          `json:"queryText"`
	FulfillmentText string          `json:"fulfillmentText"`
	Intent          Intent          `json:"intent"`
	Parameters      map[string]any  `json:"parameters"`
	OutputContexts  []OutputContext `json:"outputContexts"`
}

// Resolver detects the intent of a single utterance.
type Resolver interface {
	DetectIntent(ctx context.Context, q Query) (Result, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, q Query) (Result, error)

func (f ResolverFunc) DetectIntent(ctx context.Context, q Query) (Result, error) { return f(ctx, q) }

var (
	// ErrEmptyText is returned when a query has no text.
	ErrEmptyText = errors.New("intent: text is required")
	// ErrNotImplemented marks endpoints that exist but are reserved, as
	// opposed to transient failures.
	ErrNotImplemented = errors.New("intent: not implemented")
	// ErrNotConfigured is returned by remote resolvers missing credentials.
	ErrNotConfigured = errors.New("intent: resolver not configured")
)

// StatusError is a non-2xx answer from an upstream HTTP service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// HTTPStatusCode reports the upstream status code.
func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }
