// Package store persists post and category documents in a Sanity-compatible
// document store over its HTTP API. All writes are idempotent: document ids
// are pure functions of the resource title (posts) or the canonical slug
// (categories), so re-invoking an upsert updates instead of duplicating.
package store

import (
	"context"
	"errors"

	"github.com/sswl/panpub/internal/ledger"
	"github.com/sswl/panpub/internal/models"
	"github.com/sswl/panpub/internal/utils"
)

// ErrUnavailable means the document store cannot be reached at all. It is the
// only error that aborts a whole batch run.
var ErrUnavailable = errors.New("document store unavailable")

// PostFilter narrows ListPosts. The zero value returns all live posts;
// soft-deleted documents are excluded unless IncludeDeleted is set.
type PostFilter struct {
	CategorySlug   string
	IncludeDeleted bool
	MissingLink    string // only posts whose body lacks this URL pattern
}

// ContentStore is the write/read surface the pipeline depends on.
type ContentStore interface {
	UpsertPost(ctx context.Context, post *models.Post) (string, error)
	DeletePost(ctx context.Context, id string, hard bool) error
	ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, error)
	GetCategoryByTitle(ctx context.Context, title string) (*models.Category, error)
	UpsertCategory(ctx context.Context, cat *models.Category) (string, error)
	PatchCategorySlug(ctx context.Context, id, slug string) error
	Ping(ctx context.Context) error
}

// PostID derives the stable document id for a resource title. Normalization
// matches the ledger's so the same title always maps to the same document.
func PostID(title string) string {
	return "post-" + utils.ShortHash(ledger.Normalize(title))
}

// CategoryID derives the stable document id for a category slug.
func CategoryID(slug string) string {
	return "category-" + slug
}
