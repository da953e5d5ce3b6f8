package models

import "time"

// Slug matches the document store's slug object shape.
type Slug struct {
	Type    string `json:"_type,omitempty"`
	Current string `json:"current"`
}

// Reference points at another document in the store.
type Reference struct {
	Type string `json:"_type,omitempty"`
	Ref  string `json:"_ref"`
}

// Category is a taxonomy document. The slug is a pure function of the title
// given the canonical map, so re-normalizing never changes an assigned slug.
type Category struct {
	ID          string `json:"_id,omitempty"`
	Type        string `json:"_type,omitempty"`
	Title       string `json:"title"`
	Slug        Slug   `json:"slug"`
	Description string `json:"description,omitempty"`
}

// Post is the persisted article document. Deletion is soft: maintenance
// tooling sets Deleted instead of removing the document, and a deleted post
// still counts as published for dedupe purposes.
type Post struct {
	ID              string     `json:"_id,omitempty"`
	Type            string     `json:"_type,omitempty"`
	Title           string     `json:"title"`
	Slug            Slug       `json:"slug"`
	Excerpt         string     `json:"excerpt"`
	MarkdownContent string     `json:"markdownContent"`
	MainImage       string     `json:"mainImage,omitempty"`
	Category        *Reference `json:"category,omitempty"`
	Tags            []string   `json:"tags"`
	ResourceLinks   []string   `json:"resourceLinks,omitempty"`
	PublishedAt     time.Time  `json:"publishedAt"`
	AIGenerated     bool       `json:"aiGenerated"`
	AIModel         string     `json:"aiModel,omitempty"`
	Deleted         bool       `json:"deleted,omitempty"`
}

// PushResult is the outcome of one search-engine push. Ephemeral, only logged.
type PushResult struct {
	URLs           []string
	Accepted       int
	RemainingQuota int
}
