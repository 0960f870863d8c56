package media

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Resolution and transfer failure classes. Wrapped causes are marked with
// these so callers can classify across wrap chains with errors.Is.
var (
	// ErrResolution marks failures to turn a query into a descriptor.
	ErrResolution = errors.New("media: resolution failed")
	// ErrDownload marks failures while transferring media bytes.
	ErrDownload = errors.New("media: download failed")
	// ErrExtraction marks failures of the resolver backend itself.
	ErrExtraction = errors.New("media: extraction failed")
)

// WrongEntryKindError reports a playlist arriving where a single item was
// required, or the reverse.
type WrongEntryKindError struct {
	WantPlaylist bool
	URL          string
}

func (e *WrongEntryKindError) Error() string {
	if e.WantPlaylist {
		return fmt.Sprintf("media: expected a playlist but got a single item: %s", e.URL)
	}
	return fmt.Sprintf("media: expected a single item but got a playlist: %s", e.URL)
}

// AsWrongEntryKind extracts a WrongEntryKindError from err's chain.
func AsWrongEntryKind(err error) (*WrongEntryKindError, bool) {
	var wek *WrongEntryKindError
	if errors.As(err, &wek) {
		return wek, true
	}
	return nil, false
}
