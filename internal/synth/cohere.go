package synth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sswl/panpub/internal/models"
)

// CohereProvider is the secondary generative provider. Cohere returns plain
// prose rather than structured JSON, so the article fields are assembled
// around its text.
type CohereProvider struct {
	client  *resty.Client
	apiKey  string
	baseURL string
	used    atomic.Int64
	budget  int64
}

type cohereRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type cohereResponse struct {
	Generations []struct {
		Text string `json:"text"`
	} `json:"generations"`
	Message string `json:"message"`
}

func NewCohereProvider(apiKey string, budget int, timeout time.Duration) *CohereProvider {
	return &CohereProvider{
		client:  resty.New().SetTimeout(timeout),
		apiKey:  apiKey,
		baseURL: "https://api.cohere.ai/v1",
		budget:  int64(budget),
	}
}

// SetBaseURL overrides the API endpoint, used in tests.
func (c *CohereProvider) SetBaseURL(url string) {
	c.baseURL = strings.TrimSuffix(url, "/")
}

func (c *CohereProvider) Name() string { return "cohere-command" }

func (c *CohereProvider) Generate(ctx context.Context, res models.Resource) (*models.SynthesizedContent, error) {
	// Quota is reserved before the call, failed requests included.
	if c.used.Add(1) > c.budget {
		return nil, ErrQuotaExhausted
	}

	prompt := fmt.Sprintf(
		"为网盘资源\"%s\"写一篇博客文章。分类：%s。描述：%s。要求包含资源介绍、特色、使用说明和免责声明，使用Markdown格式。",
		res.Title, res.Category, res.Description)

	var resp cohereResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(c.apiKey).
		SetBody(cohereRequest{
			Model:       "command",
			Prompt:      prompt,
			MaxTokens:   1000,
			Temperature: 0.7,
		}).
		SetResult(&resp).
		SetError(&resp).
		Post(c.baseURL + "/generate")

	if err != nil {
		return nil, fmt.Errorf("cohere request failed: %w", err)
	}

	switch httpResp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrAuthFailed, httpResp.StatusCode())
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: rate limited by Cohere", ErrQuotaExhausted)
	}
	if httpResp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: cohere status %d: %s", ErrMalformed, httpResp.StatusCode(), resp.Message)
	}
	if len(resp.Generations) == 0 || strings.TrimSpace(resp.Generations[0].Text) == "" {
		return nil, fmt.Errorf("%w: empty cohere generation", ErrMalformed)
	}

	text := strings.TrimSpace(resp.Generations[0].Text)
	return &models.SynthesizedContent{
		Title:       res.Title,
		Excerpt:     text,
		Body:        fmt.Sprintf("# %s\n\n%s", res.Title, text),
		Tags:        res.Tags,
		ImagePrompt: fmt.Sprintf("%s themed abstract art", strings.ToLower(res.Category)),
	}, nil
}
