package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/sswl/panpub/internal/config"
)

func testS3Client(t *testing.T, endpoint string) *s3.Client {
	t.Helper()
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("key", "secret", "")),
	)
	require.NoError(t, err)

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
}

func TestNilMirrorPassesThrough(t *testing.T) {
	var m *Mirror
	url := "https://image.tmdb.org/t/p/w500/abc.jpg"
	assert.Equal(t, url, m.MirrorImage(context.Background(), url))
}

func TestNewMirrorUnconfigured(t *testing.T) {
	m, err := NewMirror(&appconfig.Config{})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMirrorImageFetchFailureKeepsSource(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer imgSrv.Close()

	m := &Mirror{
		http:      resty.New().SetTimeout(5 * time.Second),
		bucket:    "assets",
		publicURL: "https://cdn.example.com",
	}

	src := imgSrv.URL + "/missing.jpg"
	assert.Equal(t, src, m.MirrorImage(context.Background(), src))
}

func TestMirrorImageUploadsAndRewrites(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer imgSrv.Close()

	var putKey string
	s3Srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			putKey = r.URL.Path
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer s3Srv.Close()

	m := &Mirror{
		s3:        testS3Client(t, s3Srv.URL),
		http:      resty.New().SetTimeout(5 * time.Second),
		bucket:    "assets",
		publicURL: "https://cdn.example.com",
	}

	out := m.MirrorImage(context.Background(), imgSrv.URL+"/poster.png")
	assert.True(t, strings.HasPrefix(out, "https://cdn.example.com/posters/"), "got %q", out)
	assert.True(t, strings.HasSuffix(out, ".png"), "got %q", out)
	assert.Contains(t, putKey, "/assets/posters/")
}

func TestMirrorImageUploadFailureKeepsSource(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer imgSrv.Close()

	s3Srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer s3Srv.Close()

	m := &Mirror{
		s3:        testS3Client(t, s3Srv.URL),
		http:      resty.New().SetTimeout(5 * time.Second),
		bucket:    "assets",
		publicURL: "https://cdn.example.com",
	}

	src := imgSrv.URL + "/poster.jpg"
	assert.Equal(t, src, m.MirrorImage(context.Background(), src))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".png", extensionFor("image/png"))
	assert.Equal(t, ".webp", extensionFor("image/webp"))
	assert.Equal(t, ".jpg", extensionFor("image/jpeg"))
	assert.Equal(t, ".jpg", extensionFor(""))
}
