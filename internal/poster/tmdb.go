// Package poster resolves a representative image for a resource via TMDB
// metadata lookup. Lookup failure is never a pipeline failure: callers get an
// empty result and publish with a deterministic placeholder instead.
package poster

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/models"
	"github.com/sswl/panpub/internal/utils"
)

const posterImageBase = "https://image.tmdb.org/t/p/w500"

// Resolver looks up movie posters for movie-like resources.
type Resolver struct {
	client  *resty.Client
	apiKey  string
	baseURL string
}

type searchResponse struct {
	Results []struct {
		Title      string `json:"title"`
		PosterPath string `json:"poster_path"`
	} `json:"results"`
}

func NewResolver(apiKey string, timeout time.Duration) *Resolver {
	return &Resolver{
		client: resty.New().
			SetTimeout(timeout).
			SetRetryCount(1).
			SetRetryWaitTime(500 * time.Millisecond),
		apiKey:  apiKey,
		baseURL: "https://api.themoviedb.org/3",
	}
}

// SetBaseURL overrides the API endpoint, used in tests.
func (r *Resolver) SetBaseURL(url string) {
	r.baseURL = strings.TrimSuffix(url, "/")
}

var (
	bracketChars   = regexp.MustCompile(`[《》【】]`)
	parenthesized  = regexp.MustCompile(`\([^)]*\)`)
	dashSuffix     = regexp.MustCompile(`\s*-\s*.*$`)
	sequenceSuffix = regexp.MustCompile(`第[一二三四五六七八九十\d]+[部季]`)
)

// NormalizeTitle strips the decorations resource titles carry (book-title
// marks, parenthesized notes, "第X部/季" suffixes) down to a searchable name.
func NormalizeTitle(title string) string {
	title = bracketChars.ReplaceAllString(title, "")
	title = parenthesized.ReplaceAllString(title, "")
	title = dashSuffix.ReplaceAllString(title, "")
	title = sequenceSuffix.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

var movieKeywords = []string{"电影", "影片", "电视剧", "纪录片", "动画", "剧集", "影视"}

// IsMovieContent reports whether the resource looks like film/TV material,
// the only kind TMDB can answer for.
func IsMovieContent(res models.Resource) bool {
	for _, kw := range movieKeywords {
		if strings.Contains(res.Title, kw) || strings.Contains(res.Category, kw) || strings.Contains(res.Type, kw) {
			return true
		}
	}
	for _, tag := range res.Tags {
		for _, kw := range movieKeywords {
			if strings.Contains(tag, kw) {
				return true
			}
		}
	}
	return false
}

// Resolve returns a poster URL for the resource, or "" when nothing could be
// found. Chinese search first, English as fallback; a definitive no-match is
// not retried.
func (r *Resolver) Resolve(ctx context.Context, res models.Resource) string {
	if r.apiKey == "" || !IsMovieContent(res) {
		return ""
	}

	query := NormalizeTitle(res.Title)
	if query == "" {
		return ""
	}

	for _, lang := range []string{"zh-CN", "en-US"} {
		url, err := r.search(ctx, query, lang)
		if err != nil {
			logger.Get().Warn().
				Err(err).
				Str("title", res.Title).
				Str("language", lang).
				Msg("Poster lookup failed")
			return ""
		}
		if url != "" {
			return url
		}
	}

	logger.Get().Debug().Str("title", res.Title).Msg("No poster found")
	return ""
}

func (r *Resolver) search(ctx context.Context, query, language string) (string, error) {
	var resp searchResponse
	httpResp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key":  r.apiKey,
			"query":    query,
			"language": language,
		}).
		SetResult(&resp).
		Get(r.baseURL + "/search/movie")

	if err != nil {
		return "", fmt.Errorf("tmdb search failed: %w", err)
	}
	if httpResp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("tmdb search returned status %d", httpResp.StatusCode())
	}

	for _, result := range resp.Results {
		if result.PosterPath != "" {
			return posterImageBase + result.PosterPath, nil
		}
	}
	return "", nil
}

// FallbackPoster returns a stable placeholder image URL seeded by the title,
// so the same resource always gets the same picture.
func FallbackPoster(title string) string {
	seed := 0
	for _, b := range []byte(utils.ShortHash(title)) {
		seed = (seed*31 + int(b)) % 1000
	}
	return fmt.Sprintf("https://picsum.photos/400/600?random=%d", seed)
}
