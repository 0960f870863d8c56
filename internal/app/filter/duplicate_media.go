package filter

import (
	"context"

	"github.com/ricglz/Groovemin/internal/domain/media"
)

// DuplicateMediaFilter rejects requests whose source is already queued.
// Matching is by source URL, so the same media reached through different
// URLs slips past; the check is best effort.
type DuplicateMediaFilter struct{}

// NewDuplicateMediaFilter creates a new duplicate media filter.
func NewDuplicateMediaFilter() *DuplicateMediaFilter {
	return &DuplicateMediaFilter{}
}

func (f *DuplicateMediaFilter) Name() string {
	return "duplicate_media_filter"
}

func (f *DuplicateMediaFilter) Description() string {
	return "Rejects media whose source URL is already queued"
}

func (f *DuplicateMediaFilter) ReturnCodes() []string {
	return []string{"duplicate_media"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateMediaFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

func (f *DuplicateMediaFilter) AppliesTo(kind media.RequesterKind) bool {
	// Autoplay fills are filtered too; system entries (restores) are not.
	return kind == media.RequesterKindUser || kind == media.RequesterKindAutoplay
}

func (f *DuplicateMediaFilter) Check(ctx context.Context, req Request, desc media.Descriptor) Result {
	if req.Queue == nil || desc.SourceURL == "" {
		return Accept()
	}
	if req.Queue.HasSourceURL(desc.SourceURL) {
		return Reject("duplicate_media")
	}
	return Accept()
}

func init() {
	Register("duplicate_media_filter", func() Filter {
		return &DuplicateMediaFilter{}
	})
}
