package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sswl/panpub/internal/models"
)

// GeminiProvider generates content through the Gemini REST API. It keeps a
// local usage budget below the free-tier quota and reports exhaustion instead
// of burning the last requests.
type GeminiProvider struct {
	client  *resty.Client
	apiKey  string
	model   string
	baseURL string
	used    atomic.Int64
	budget  int64
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *geminiError) text() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func NewGeminiProvider(apiKey, model string, budget int, timeout time.Duration) *GeminiProvider {
	return &GeminiProvider{
		client:  resty.New().SetTimeout(timeout),
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com/v1beta/models",
		budget:  int64(budget),
	}
}

// SetBaseURL overrides the API endpoint, used in tests.
func (g *GeminiProvider) SetBaseURL(url string) {
	g.baseURL = strings.TrimSuffix(url, "/")
}

func (g *GeminiProvider) Name() string { return "gemini-" + g.model }

func (g *GeminiProvider) Generate(ctx context.Context, res models.Resource) (*models.SynthesizedContent, error) {
	// Quota is reserved before the call: a failed request still spends
	// upstream quota, and the single atomic add cannot overshoot the
	// budget under concurrent workers.
	if g.used.Add(1) > g.budget {
		return nil, ErrQuotaExhausted
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)

	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{
				Text: BuildResourcePrompt(res),
			}},
		}},
	}

	var resp geminiResponse
	httpResp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(url)

	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	switch httpResp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d: %s", ErrAuthFailed, httpResp.StatusCode(), resp.Error.text())
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: rate limited by Gemini: %s", ErrQuotaExhausted, resp.Error.text())
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("%w: gemini error %d: %s", ErrMalformed, resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no candidates in gemini response", ErrMalformed)
	}

	content, err := ParseContentJSON(resp.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}
	return content, nil
}

// ParseContentJSON extracts the JSON payload from provider output. Models
// routinely wrap the JSON in code fences or prose, so everything outside the
// outermost braces is ignored.
func ParseContentJSON(text string) (*models.SynthesizedContent, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformed)
	}

	var content models.SynthesizedContent
	if err := json.Unmarshal([]byte(text[start:end+1]), &content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if content.Title == "" || content.Body == "" {
		return nil, fmt.Errorf("%w: missing title or body", ErrMalformed)
	}
	return &content, nil
}
