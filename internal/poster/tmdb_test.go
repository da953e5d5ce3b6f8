package poster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sswl/panpub/internal/models"
)

func movieResource(title string) models.Resource {
	return models.Resource{Title: title, Category: "电影"}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "流浪地球", NormalizeTitle("《流浪地球》"))
	assert.Equal(t, "星际穿越", NormalizeTitle("星际穿越(2014)"))
	assert.Equal(t, "某剧集", NormalizeTitle("某剧集第二季"))
	assert.Equal(t, "片名", NormalizeTitle("片名 - 高清资源"))
}

func TestIsMovieContent(t *testing.T) {
	assert.True(t, IsMovieContent(models.Resource{Title: "x", Category: "电影"}))
	assert.True(t, IsMovieContent(models.Resource{Title: "某纪录片合集"}))
	assert.True(t, IsMovieContent(models.Resource{Title: "x", Tags: []string{"剧集"}}))
	assert.False(t, IsMovieContent(models.Resource{Title: "办公软件", Category: "软件"}))
}

func TestResolveChineseFirstEnglishFallback(t *testing.T) {
	var languages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		lang := r.URL.Query().Get("language")
		languages = append(languages, lang)

		resp := map[string]any{"results": []any{}}
		if lang == "en-US" {
			resp["results"] = []any{map[string]any{"title": "The Movie", "poster_path": "/abc.jpg"}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	r := NewResolver("test-key", 5*time.Second)
	r.SetBaseURL(srv.URL)

	url := r.Resolve(context.Background(), movieResource("《某电影》"))
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/abc.jpg", url)
	assert.Equal(t, []string{"zh-CN", "en-US"}, languages)
}

func TestResolveNoMatchReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer srv.Close()

	r := NewResolver("test-key", 5*time.Second)
	r.SetBaseURL(srv.URL)

	assert.Empty(t, r.Resolve(context.Background(), movieResource("《无名影片》")))
}

func TestResolveSkipsNonMovies(t *testing.T) {
	r := NewResolver("test-key", 5*time.Second)
	r.SetBaseURL("http://127.0.0.1:0") // would fail if called
	assert.Empty(t, r.Resolve(context.Background(), models.Resource{Title: "办公软件", Category: "软件"}))
}

func TestResolveWithoutAPIKey(t *testing.T) {
	r := NewResolver("", 5*time.Second)
	assert.Empty(t, r.Resolve(context.Background(), movieResource("《某电影》")))
}

func TestFallbackPosterIsDeterministic(t *testing.T) {
	a := FallbackPoster("测试电影资源")
	b := FallbackPoster("测试电影资源")
	assert.Equal(t, a, b)
	assert.Contains(t, a, "picsum.photos")
	assert.NotEqual(t, a, FallbackPoster("另一个资源"))
}
