// Package ledger is the dedupe record of already-published resource titles.
// It is the single source of truth for "already published": an entry is
// written only after the post document is safely in the store, so a crash
// mid-pipeline leaves the resource eligible for retry.
package ledger

import (
	"context"
	"strings"
	"time"
)

// Ledger tracks published titles. Has and Record operate on normalized
// titles; a CheckAndRecord-style sequence for the same normalized title must
// be atomic, which implementations guarantee with a process-level or
// store-level lock.
type Ledger interface {
	// Has reports whether the title has already been published.
	Has(ctx context.Context, title string) (bool, error)

	// Record marks the title as published. Called only after a successful
	// store write.
	Record(ctx context.Context, title string, publishedAt time.Time) error

	// Truncate removes every entry, forcing re-publication of all
	// resources. Destructive maintenance operation, always logged.
	Truncate(ctx context.Context) error

	Close() error
}

// Normalize maps a title to its dedupe key: trimmed, case-folded, inner
// whitespace collapsed. Trivial formatting differences must not cause
// duplicate publication.
func Normalize(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
