// Package assets mirrors resolved poster images into an R2 bucket so
// published posts do not hotlink third-party image CDNs.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-resty/resty/v2"
	appconfig "github.com/sswl/panpub/internal/config"
	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/utils"
)

// Mirror copies remote images into object storage and returns their public
// URLs. A nil *Mirror is valid and passes source URLs through untouched.
type Mirror struct {
	s3        *s3.Client
	http      *resty.Client
	bucket    string
	publicURL string
}

// NewMirror builds an R2-backed mirror, or nil when R2 is not configured.
func NewMirror(cfg *appconfig.Config) (*Mirror, error) {
	if cfg.R2Endpoint == "" || cfg.R2AccessKey == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.R2AccessKey, cfg.R2SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 credentials: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.R2Endpoint)
		o.UsePathStyle = true
	})

	return &Mirror{
		s3:        client,
		http:      resty.New().SetTimeout(30 * time.Second),
		bucket:    cfg.R2Bucket,
		publicURL: strings.TrimSuffix(cfg.R2PublicURL, "/"),
	}, nil
}

// MirrorImage fetches sourceURL and stores it under a content-addressed key.
// On any failure the source URL is returned as-is, mirroring is best effort.
func (m *Mirror) MirrorImage(ctx context.Context, sourceURL string) string {
	if m == nil || sourceURL == "" {
		return sourceURL
	}

	resp, err := m.http.R().SetContext(ctx).Get(sourceURL)
	if err != nil || resp.StatusCode() != http.StatusOK {
		logger.Get().Warn().
			Err(err).
			Str("url", sourceURL).
			Msg("Failed to fetch poster for mirroring, keeping source URL")
		return sourceURL
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := "posters/" + utils.ShortHash(sourceURL) + extensionFor(contentType)

	_, err = m.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(resp.Body()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		logger.Get().Warn().
			Err(err).
			Str("url", sourceURL).
			Str("key", key).
			Msg("Failed to upload poster to R2, keeping source URL")
		return sourceURL
	}

	if m.publicURL == "" {
		return sourceURL
	}
	return m.publicURL + "/" + key
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
