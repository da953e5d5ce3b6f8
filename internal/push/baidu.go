// Package push reports published URLs to the Baidu URL submission endpoint.
// Push failures are logged and left for the next scheduled run; they never
// block or roll back publication.
package push

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/models"
)

// Notifier submits URL batches to a search indexing endpoint.
type Notifier interface {
	Notify(ctx context.Context, urls []string) (*models.PushResult, error)
}

// BaiduNotifier pushes newline-separated URL lists to the zz.baidu.com
// submission API and tracks the remaining daily quota it reports.
type BaiduNotifier struct {
	client     *resty.Client
	endpoint   string
	site       string
	token      string
	batchSize  int
	batchDelay time.Duration
}

type baiduResponse struct {
	Success     int      `json:"success"`
	Remain      int      `json:"remain"`
	NotSameSite []string `json:"not_same_site"`
	NotValid    []string `json:"not_valid"`
	Error       int      `json:"error"`
	Message     string   `json:"message"`
}

func NewBaiduNotifier(site, token string, batchSize int) *BaiduNotifier {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &BaiduNotifier{
		client:     resty.New().SetTimeout(30 * time.Second),
		endpoint:   "http://data.zz.baidu.com/urls",
		site:       site,
		token:      token,
		batchSize:  batchSize,
		batchDelay: time.Second,
	}
}

// SetEndpoint overrides the push endpoint, used in tests.
func (b *BaiduNotifier) SetEndpoint(url string) {
	b.endpoint = url
}

// TopLevelURLs are always included in a push so the index keeps the listing
// pages fresh alongside new posts.
func TopLevelURLs(site string) []string {
	site = strings.TrimSuffix(site, "/")
	return []string{
		site + "/",
		site + "/posts",
		site + "/categories",
		site + "/search",
	}
}

// Notify submits the URLs in batches. A failed batch is logged and skipped;
// the aggregate result covers whatever the endpoint accepted. RemainingQuota
// is -1 when the endpoint never reported it.
func (b *BaiduNotifier) Notify(ctx context.Context, urls []string) (*models.PushResult, error) {
	log := logger.Get()
	result := &models.PushResult{URLs: urls, RemainingQuota: -1}

	if b.token == "" {
		log.Warn().Msg("Baidu push token not configured, skipping push")
		return result, nil
	}

	for start := 0; start < len(urls); start += b.batchSize {
		end := start + b.batchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]

		resp, err := b.pushBatch(ctx, batch)
		if err != nil {
			log.Warn().
				Err(err).
				Int("batch_start", start).
				Int("batch_size", len(batch)).
				Msg("Baidu push batch failed, will retry on next run")
			continue
		}

		result.Accepted += resp.Success
		result.RemainingQuota = resp.Remain

		log.Info().
			Int("accepted", resp.Success).
			Int("remaining_quota", resp.Remain).
			Msg("Pushed URL batch to Baidu")

		// The endpoint throttles rapid submissions.
		if end < len(urls) {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(b.batchDelay):
			}
		}
	}

	return result, nil
}

func (b *BaiduNotifier) pushBatch(ctx context.Context, urls []string) (*baiduResponse, error) {
	var resp baiduResponse
	httpResp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain").
		SetQueryParams(map[string]string{
			"site":  b.site,
			"token": b.token,
		}).
		SetBody(strings.Join(urls, "\n")).
		SetResult(&resp).
		SetError(&resp).
		Post(b.endpoint)

	if err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	if httpResp.StatusCode() != http.StatusOK || resp.Error != 0 {
		return nil, fmt.Errorf("push rejected with status %d: %s", httpResp.StatusCode(), resp.Message)
	}
	return &resp, nil
}
