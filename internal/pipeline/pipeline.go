// Package pipeline sequences the publication stages for a batch of resources:
// dedupe, category resolution, content synthesis, link verification, poster
// resolution, persistence and ledger recording, with one search push per
// successful batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sswl/panpub/internal/ledger"
	"github.com/sswl/panpub/internal/linkguard"
	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/models"
	"github.com/sswl/panpub/internal/poster"
	"github.com/sswl/panpub/internal/push"
	"github.com/sswl/panpub/internal/store"
	"github.com/sswl/panpub/internal/synth"
	"github.com/sswl/panpub/internal/taxonomy"
	"github.com/sswl/panpub/internal/utils"
)

// ContentSynthesizer is the synthesis stage as the orchestrator sees it.
type ContentSynthesizer interface {
	Generate(ctx context.Context, res models.Resource) (*models.SynthesizedContent, error)
}

// PosterResolver resolves a representative image URL, "" meaning none.
type PosterResolver interface {
	Resolve(ctx context.Context, res models.Resource) string
}

// ImageMirror re-hosts an image and returns the URL to publish.
type ImageMirror interface {
	MirrorImage(ctx context.Context, url string) string
}

// Options tune a pipeline run.
type Options struct {
	BaseURL         string
	Concurrency     int
	ResourceTimeout time.Duration
	StoreRetries    int
	StoreBackoff    time.Duration
}

func (o *Options) defaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.ResourceTimeout <= 0 {
		o.ResourceTimeout = 3 * time.Minute
	}
	if o.StoreRetries <= 0 {
		o.StoreRetries = 3
	}
	if o.StoreBackoff <= 0 {
		o.StoreBackoff = 2 * time.Second
	}
}

// Pipeline wires the publication stages together. The ledger and the category
// normalizer are the only shared mutable state; everything else is
// per-resource.
type Pipeline struct {
	ledger     ledger.Ledger
	categories *taxonomy.Normalizer
	synth      ContentSynthesizer
	guard      *linkguard.Guard
	posters    PosterResolver
	mirror     ImageMirror
	store      store.ContentStore
	notifier   push.Notifier
	opts       Options

	// claimMu serializes the ledger check-then-claim so two workers can
	// never both pass it for the same normalized title. The claim set
	// itself is scoped to a single Run.
	claimMu sync.Mutex
}

func New(
	led ledger.Ledger,
	categories *taxonomy.Normalizer,
	synthesizer ContentSynthesizer,
	guard *linkguard.Guard,
	posters PosterResolver,
	mirror ImageMirror,
	st store.ContentStore,
	notifier push.Notifier,
	opts Options,
) *Pipeline {
	opts.defaults()
	return &Pipeline{
		ledger:     led,
		categories: categories,
		synth:      synthesizer,
		guard:      guard,
		posters:    posters,
		mirror:     mirror,
		store:      st,
		notifier:   notifier,
		opts:       opts,
	}
}

// Run processes every resource in the batch. Per-resource failures never
// abort the run; only an unreachable store does.
func (p *Pipeline) Run(ctx context.Context, resources []models.Resource) (*models.RunSummary, error) {
	log := logger.Get()

	if err := p.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("aborting run, document store unreachable: %w", err)
	}

	summary := &models.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Results:   make([]models.ResourceResult, len(resources)),
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("resources", len(resources)).
		Int("concurrency", p.opts.Concurrency).
		Msg("Starting publication run")

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.opts.Concurrency)

	// Claims live only as long as this run: a resource that fails here
	// stays eligible for the next run, the ledger alone decides dedupe
	// across runs.
	claimed := make(map[string]bool)

	for i, res := range resources {
		select {
		case <-ctx.Done():
			summary.Results[i] = models.ResourceResult{
				Title:  res.Title,
				State:  models.StateFailed,
				Reason: ctx.Err().Error(),
			}
			continue
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, res models.Resource) {
			defer wg.Done()
			defer func() { <-semaphore }()

			resCtx, cancel := context.WithTimeout(ctx, p.opts.ResourceTimeout)
			defer cancel()

			summary.Results[i] = p.processResource(resCtx, claimed, res)
		}(i, res)
	}

	wg.Wait()

	var publishedURLs []string
	for _, r := range summary.Results {
		switch r.State {
		case models.StateRecorded:
			summary.Recorded++
			publishedURLs = append(publishedURLs, PostSlug(r.Title))
		case models.StateDeduped:
			summary.Deduped++
		case models.StateFailed:
			summary.Failed++
		}
	}

	// One push per successfully published batch.
	if summary.Recorded > 0 && p.notifier != nil {
		p.notifyBatch(ctx, publishedURLs)
	}

	summary.FinishedAt = time.Now()

	log.Info().
		Str("run_id", summary.RunID).
		Int("recorded", summary.Recorded).
		Int("deduped", summary.Deduped).
		Int("failed", summary.Failed).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Publication run finished")

	return summary, nil
}

// claimTitle reserves a normalized title for this worker. Returns false when
// the title is already published or already claimed by another worker in this
// run.
func (p *Pipeline) claimTitle(ctx context.Context, claimed map[string]bool, title string) (bool, error) {
	p.claimMu.Lock()
	defer p.claimMu.Unlock()

	key := ledger.Normalize(title)
	if claimed[key] {
		return false, nil
	}

	published, err := p.ledger.Has(ctx, title)
	if err != nil {
		return false, fmt.Errorf("ledger check failed: %w", err)
	}
	if published {
		return false, nil
	}

	claimed[key] = true
	return true, nil
}

func (p *Pipeline) processResource(ctx context.Context, claimed map[string]bool, res models.Resource) models.ResourceResult {
	log := logger.Get()

	ok, err := p.claimTitle(ctx, claimed, res.Title)
	if err != nil {
		return models.ResourceResult{Title: res.Title, State: models.StateFailed, Reason: err.Error()}
	}
	if !ok {
		log.Debug().Str("title", res.Title).Msg("Skipping already published resource")
		return models.ResourceResult{Title: res.Title, State: models.StateDeduped}
	}

	category, err := p.categories.Resolve(ctx, res.Category)
	if err != nil {
		return models.ResourceResult{
			Title:  res.Title,
			State:  models.StateFailed,
			Reason: fmt.Sprintf("category resolution failed: %v", err),
		}
	}

	content, err := p.synth.Generate(ctx, res)
	if err != nil {
		if errors.Is(err, synth.ErrProviderExhausted) {
			log.Warn().Str("title", res.Title).Msg("All content providers failed, resource skipped this run")
		}
		return models.ResourceResult{
			Title:  res.Title,
			State:  models.StateFailed,
			Reason: fmt.Sprintf("synthesis failed: %v", err),
		}
	}

	content = p.guard.Verify(res, content)

	mainImage := ""
	if p.posters != nil {
		mainImage = p.posters.Resolve(ctx, res)
	}
	if mainImage == "" {
		mainImage = poster.FallbackPoster(res.Title)
	}
	if p.mirror != nil {
		mainImage = p.mirror.MirrorImage(ctx, mainImage)
	}

	now := time.Now()
	post := &models.Post{
		ID:              store.PostID(res.Title),
		Title:           content.Title,
		Slug:            models.Slug{Current: PostSlug(res.Title)},
		Excerpt:         content.Excerpt,
		MarkdownContent: content.Body,
		MainImage:       mainImage,
		Category:        &models.Reference{Ref: category.ID},
		Tags:            content.Tags,
		ResourceLinks:   res.Files,
		PublishedAt:     now,
		AIGenerated:     content.Model != "template",
		AIModel:         content.Model,
	}

	postID, err := p.upsertWithRetry(ctx, post)
	if err != nil {
		// The ledger stays untouched so the resource is retried next run.
		return models.ResourceResult{
			Title:  res.Title,
			State:  models.StateFailed,
			Reason: fmt.Sprintf("store write failed: %v", err),
		}
	}

	if err := p.ledger.Record(ctx, res.Title, now); err != nil {
		// The post exists; a missing ledger entry only risks a redundant
		// idempotent upsert next run.
		log.Error().Err(err).Str("title", res.Title).Msg("Failed to record ledger entry after publish")
	}

	log.Info().
		Str("title", res.Title).
		Str("post_id", postID).
		Str("category", category.Slug.Current).
		Msg("Resource published")

	return models.ResourceResult{
		Title:  res.Title,
		State:  models.StateRecorded,
		PostID: postID,
	}
}

func (p *Pipeline) upsertWithRetry(ctx context.Context, post *models.Post) (string, error) {
	var lastErr error
	backoff := p.opts.StoreBackoff

	for attempt := 1; attempt <= p.opts.StoreRetries; attempt++ {
		id, err := p.store.UpsertPost(ctx, post)
		if err == nil {
			return id, nil
		}
		lastErr = err

		logger.Get().Warn().
			Err(err).
			Str("post_id", post.ID).
			Int("attempt", attempt).
			Msg("Store write failed")

		if attempt == p.opts.StoreRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return "", lastErr
}

func (p *Pipeline) notifyBatch(ctx context.Context, slugs []string) {
	urls := push.TopLevelURLs(p.opts.BaseURL)
	for _, slug := range slugs {
		urls = append(urls, strings.TrimSuffix(p.opts.BaseURL, "/")+"/posts/"+slug)
	}

	result, err := p.notifier.Notify(ctx, urls)
	if err != nil {
		logger.Get().Warn().Err(err).Msg("Search push failed, will retry on next run")
		return
	}

	logger.Get().Info().
		Int("submitted", len(result.URLs)).
		Int("accepted", result.Accepted).
		Int("remaining_quota", result.RemainingQuota).
		Msg("Search push completed")
}

// PostSlug derives the URL slug for a resource title. Deterministic so
// repeated runs address the same document; the hash suffix keeps slugs unique
// when transliteration collapses distinct titles.
func PostSlug(title string) string {
	base := taxonomy.Slugify(title)
	hash := utils.ShortHash(ledger.Normalize(title))[:8]
	if base == "" || base == "others" {
		return hash
	}
	if len(base) > 50 {
		base = base[:50]
	}
	return base + "-" + hash
}
