// Package filter provides the admission filter chain for enqueue requests.
package filter

import (
	"context"

	"github.com/ricglz/Groovemin/internal/domain/media"
)

// QueueView is the queue state filters may inspect.
type QueueView interface {
	Len() int
	CountFor(requesterID string) int
	HasSourceURL(url string) bool
}

// Request represents an enqueue request to be validated.
type Request struct {
	PlayerID  string
	Requester media.Requester
	Queue     QueueView
	// PlaylistSize is how many items the request expands to, 1 for a
	// single entry.
	PlaylistSize int
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duration_limit_exceeded", "duplicate_media"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for enqueue admission filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to the given requester kind.
	AppliesTo(kind media.RequesterKind) bool
	// Check performs the filter check.
	Check(ctx context.Context, req Request, desc media.Descriptor) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
