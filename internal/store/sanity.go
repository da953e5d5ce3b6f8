package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sswl/panpub/internal/config"
	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/models"
)

// SanityClient talks to the Sanity HTTP API: GROQ reads via /data/query,
// writes via /data/mutate.
type SanityClient struct {
	client  *resty.Client
	baseURL string
	dataset string
}

type queryResponse struct {
	Result json.RawMessage `json:"result"`
}

type mutateRequest struct {
	Mutations []map[string]any `json:"mutations"`
}

type mutateResponse struct {
	Results []struct {
		ID        string `json:"id"`
		Operation string `json:"operation"`
	} `json:"results"`
	Error *struct {
		Description string `json:"description"`
	} `json:"error"`
}

func NewSanityClient(cfg *config.Config) *SanityClient {
	client := resty.New().
		SetTimeout(cfg.StoreTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(cfg.StoreTimeout / 10).
		SetAuthToken(cfg.SanityToken).
		SetHeader("Content-Type", "application/json")

	return &SanityClient{
		client:  client,
		baseURL: fmt.Sprintf("https://%s.api.sanity.io/v%s", cfg.SanityProjectID, cfg.SanityAPIVersion),
		dataset: cfg.SanityDataset,
	}
}

// SetBaseURL overrides the API endpoint, used against self-hosted mirrors and
// in tests.
func (s *SanityClient) SetBaseURL(url string) {
	s.baseURL = strings.TrimSuffix(url, "/")
}

func (s *SanityClient) query(ctx context.Context, groq string, params map[string]string, out any) error {
	req := s.client.R().
		SetContext(ctx).
		SetQueryParam("query", groq)

	for name, value := range params {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode query param %s: %w", name, err)
		}
		req.SetQueryParam("$"+name, string(encoded))
	}

	var resp queryResponse
	httpResp, err := req.SetResult(&resp).Get(s.baseURL + "/data/query/" + s.dataset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if httpResp.StatusCode() != http.StatusOK {
		return fmt.Errorf("query failed with status %d: %s", httpResp.StatusCode(), httpResp.String())
	}

	if out != nil && len(resp.Result) > 0 && string(resp.Result) != "null" {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("failed to decode query result: %w", err)
		}
	}
	return nil
}

func (s *SanityClient) mutate(ctx context.Context, mutations []map[string]any) (*mutateResponse, error) {
	var resp mutateResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(mutateRequest{Mutations: mutations}).
		SetResult(&resp).
		Post(s.baseURL + "/data/mutate/" + s.dataset + "?returnIds=true")

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mutation rejected: %s", resp.Error.Description)
	}
	if httpResp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("mutation failed with status %d: %s", httpResp.StatusCode(), httpResp.String())
	}
	return &resp, nil
}

// UpsertPost writes the post under its stable id. Re-invoking with the same
// title replaces the existing document instead of creating a second one.
func (s *SanityClient) UpsertPost(ctx context.Context, post *models.Post) (string, error) {
	if post.ID == "" {
		post.ID = PostID(post.Title)
	}
	post.Type = "post"
	post.Slug.Type = "slug"
	if post.Category != nil {
		post.Category.Type = "reference"
	}

	doc := map[string]any{}
	raw, err := json.Marshal(post)
	if err != nil {
		return "", fmt.Errorf("failed to encode post: %w", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("failed to encode post: %w", err)
	}

	resp, err := s.mutate(ctx, []map[string]any{{"createOrReplace": doc}})
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("mutation returned no results for post %s", post.ID)
	}
	return resp.Results[0].ID, nil
}

// DeletePost soft-deletes by default; hard deletion removes the document and
// is reserved for explicit maintenance.
func (s *SanityClient) DeletePost(ctx context.Context, id string, hard bool) error {
	var mutation map[string]any
	if hard {
		logger.Get().Warn().Str("post_id", id).Msg("Hard-deleting post document")
		mutation = map[string]any{"delete": map[string]any{"id": id}}
	} else {
		mutation = map[string]any{"patch": map[string]any{
			"id":  id,
			"set": map[string]any{"deleted": true},
		}}
	}

	_, err := s.mutate(ctx, []map[string]any{mutation})
	return err
}

// ListPosts returns posts matching the filter, newest first. Soft-deleted
// documents are excluded unless the filter asks for them.
func (s *SanityClient) ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, error) {
	clauses := []string{`_type == "post"`}
	params := map[string]string{}

	if !filter.IncludeDeleted {
		clauses = append(clauses, "!defined(deleted)")
	}
	if filter.CategorySlug != "" {
		clauses = append(clauses, "category->slug.current == $slug")
		params["slug"] = filter.CategorySlug
	}

	groq := fmt.Sprintf(
		`*[%s] | order(publishedAt desc){_id, title, slug, excerpt, markdownContent, mainImage, tags, resourceLinks, publishedAt, deleted}`,
		strings.Join(clauses, " && "))

	var posts []models.Post
	if err := s.query(ctx, groq, params, &posts); err != nil {
		return nil, err
	}

	if filter.MissingLink != "" {
		missing := posts[:0]
		for _, p := range posts {
			if !strings.Contains(p.MarkdownContent, filter.MissingLink) {
				missing = append(missing, p)
			}
		}
		posts = missing
	}

	return posts, nil
}

func (s *SanityClient) GetCategoryByTitle(ctx context.Context, title string) (*models.Category, error) {
	var cat models.Category
	groq := `*[_type == "category" && title == $title][0]{_id, title, slug, description}`
	if err := s.query(ctx, groq, map[string]string{"title": title}, &cat); err != nil {
		return nil, err
	}
	if cat.ID == "" {
		return nil, nil
	}
	return &cat, nil
}

// UpsertCategory creates the category if it does not exist. The id is derived
// from the slug, so concurrent creation of the same category collapses into a
// single document at the store level.
func (s *SanityClient) UpsertCategory(ctx context.Context, cat *models.Category) (string, error) {
	if cat.ID == "" {
		cat.ID = CategoryID(cat.Slug.Current)
	}
	cat.Type = "category"
	cat.Slug.Type = "slug"

	doc := map[string]any{}
	raw, err := json.Marshal(cat)
	if err != nil {
		return "", fmt.Errorf("failed to encode category: %w", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("failed to encode category: %w", err)
	}

	resp, err := s.mutate(ctx, []map[string]any{{"createIfNotExists": doc}})
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return cat.ID, nil
	}
	return resp.Results[0].ID, nil
}

// PatchCategorySlug rewrites only the slug field, keeping the document
// identity intact. Used to migrate categories created before the canonical
// map existed.
func (s *SanityClient) PatchCategorySlug(ctx context.Context, id, slug string) error {
	_, err := s.mutate(ctx, []map[string]any{{"patch": map[string]any{
		"id":  id,
		"set": map[string]any{"slug": map[string]any{"_type": "slug", "current": slug}},
	}}})
	return err
}

// Ping verifies the store is reachable. Its failure aborts a batch run early.
func (s *SanityClient) Ping(ctx context.Context) error {
	return s.query(ctx, "true", nil, nil)
}
