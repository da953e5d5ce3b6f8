// Package taxonomy maps free-text category names to canonical URL-safe slugs
// and keeps the category documents in the store in sync with them.
package taxonomy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/models"
	"github.com/sswl/panpub/internal/store"
)

// canonicalSlugs is the fixed domain vocabulary. Anything outside it falls
// back to deterministic transliteration via Slugify.
var canonicalSlugs = map[string]string{
	"电影": "movies",
	"软件": "software",
	"教育": "education",
	"游戏": "games",
	"音乐": "music",
	"图书": "books",
	"其他": "others",
}

var (
	nonSlugChars = regexp.MustCompile(`[^\w\s-]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Slug returns the canonical slug for a category title. Pure function: the
// same title always yields the same slug.
func Slug(title string) string {
	title = strings.TrimSpace(title)
	if slug, ok := canonicalSlugs[title]; ok {
		return slug
	}
	return Slugify(title)
}

// Slugify lowercases, strips characters outside the word/hyphen class and
// collapses whitespace runs to single hyphens.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlugChars.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "others"
	}
	return s
}

// Normalizer resolves raw category names to store-backed Category documents,
// creating missing ones and repairing non-canonical slugs. Resolution is
// serialized per category name so parallel resource processing cannot
// race-create duplicates.
type Normalizer struct {
	store store.ContentStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string]models.Category
}

func NewNormalizer(st store.ContentStore) *Normalizer {
	return &Normalizer{
		store: st,
		locks: make(map[string]*sync.Mutex),
		cache: make(map[string]models.Category),
	}
}

func (n *Normalizer) nameLock(name string) *sync.Mutex {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.locks[name]
	if !ok {
		l = &sync.Mutex{}
		n.locks[name] = l
	}
	return l
}

// Resolve returns the Category for rawName, creating it in the store when
// missing. An existing category whose slug differs from the canonical one is
// patched in place; the document identity never changes.
func (n *Normalizer) Resolve(ctx context.Context, rawName string) (models.Category, error) {
	name := strings.TrimSpace(rawName)
	if name == "" {
		name = "其他"
	}

	lock := n.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	n.mu.Lock()
	cached, ok := n.cache[name]
	n.mu.Unlock()
	if ok {
		return cached, nil
	}

	slug := Slug(name)

	existing, err := n.store.GetCategoryByTitle(ctx, name)
	if err != nil {
		return models.Category{}, fmt.Errorf("failed to look up category %q: %w", name, err)
	}

	var cat models.Category
	switch {
	case existing == nil:
		cat = models.Category{
			Title:       name,
			Slug:        models.Slug{Current: slug},
			Description: name + "相关资源分享",
		}
		id, err := n.store.UpsertCategory(ctx, &cat)
		if err != nil {
			return models.Category{}, fmt.Errorf("failed to create category %q: %w", name, err)
		}
		cat.ID = id
		logger.Get().Info().Str("category", name).Str("slug", slug).Msg("Created category")

	case existing.Slug.Current != slug:
		logger.Get().Warn().
			Str("category", name).
			Str("old_slug", existing.Slug.Current).
			Str("new_slug", slug).
			Msg("Repairing non-canonical category slug")
		if err := n.store.PatchCategorySlug(ctx, existing.ID, slug); err != nil {
			return models.Category{}, fmt.Errorf("failed to patch category slug for %q: %w", name, err)
		}
		existing.Slug.Current = slug
		cat = *existing

	default:
		cat = *existing
	}

	n.mu.Lock()
	n.cache[name] = cat
	n.mu.Unlock()

	return cat, nil
}
