package sheetsync

import "context"

// Source yields records page by page.
type Source interface {
	// Fetch returns up to limit records starting at offset. An empty slice
	// means the source is exhausted.
	Fetch(ctx context.Context, offset, limit int) ([]*Record, error)

	// Complete reports whether paging through Fetch visits the whole,
	// unfiltered population. Delete tracking is only allowed when it does.
	Complete() bool
}
