// Package autoplay provides source providers that refill the queue when
// it runs dry.
package autoplay

import (
	"context"
)

// Provider is the interface for autoplay source providers.
// Different implementations can supply sources through various strategies
// (e.g., file-based rotation, fixed lists).
type Provider interface {
	// GetCandidates returns up to count source URLs or search queries,
	// skipping any whose URL is in exclude.
	GetCandidates(ctx context.Context, count int, exclude map[string]bool) ([]string, error)

	// Name returns the provider name (used in config).
	Name() string
}
