package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sswl/panpub/internal/ledger"
	"github.com/sswl/panpub/internal/linkguard"
	"github.com/sswl/panpub/internal/models"
	"github.com/sswl/panpub/internal/push"
	"github.com/sswl/panpub/internal/store"
	"github.com/sswl/panpub/internal/synth"
	"github.com/sswl/panpub/internal/taxonomy"
)

type fakeStore struct {
	mu         sync.Mutex
	posts      map[string]models.Post
	categories map[string]models.Category
	upserts    int
	pingErr    error
	upsertErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:      make(map[string]models.Post),
		categories: make(map[string]models.Category),
	}
}

func (f *fakeStore) UpsertPost(ctx context.Context, post *models.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upsertErr != nil {
		return "", f.upsertErr
	}
	f.posts[post.ID] = *post
	return post.ID, nil
}

func (f *fakeStore) DeletePost(ctx context.Context, id string, hard bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hard {
		delete(f.posts, id)
		return nil
	}
	p := f.posts[id]
	p.Deleted = true
	f.posts[id] = p
	return nil
}

func (f *fakeStore) ListPosts(ctx context.Context, filter store.PostFilter) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Post
	for _, p := range f.posts {
		if p.Deleted && !filter.IncludeDeleted {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) GetCategoryByTitle(ctx context.Context, title string) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cat, ok := f.categories[title]; ok {
		return &cat, nil
	}
	return nil, nil
}

func (f *fakeStore) UpsertCategory(ctx context.Context, cat *models.Category) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cat.ID == "" {
		cat.ID = store.CategoryID(cat.Slug.Current)
	}
	if _, ok := f.categories[cat.Title]; !ok {
		f.categories[cat.Title] = *cat
	}
	return cat.ID, nil
}

func (f *fakeStore) PatchCategorySlug(ctx context.Context, id, slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for title, cat := range f.categories {
		if cat.ID == id {
			cat.Slug.Current = slug
			f.categories[title] = cat
		}
	}
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	urls  []string
}

func (f *fakeNotifier) Notify(ctx context.Context, urls []string) (*models.PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.urls = append(f.urls, urls...)
	return &models.PushResult{URLs: urls, Accepted: len(urls), RemainingQuota: 100}, nil
}

// synthFunc adapts a function to the ContentSynthesizer interface.
type synthFunc func(ctx context.Context, res models.Resource) (*models.SynthesizedContent, error)

func (f synthFunc) Generate(ctx context.Context, res models.Resource) (*models.SynthesizedContent, error) {
	return f(ctx, res)
}

func templateSynth() ContentSynthesizer {
	return synth.NewSynthesizer(synth.NewPostProcessor(8, 200), synth.NewTemplateProvider())
}

func newTestPipeline(st store.ContentStore, led ledger.Ledger, s ContentSynthesizer, notifier push.Notifier) *Pipeline {
	return New(
		led,
		taxonomy.NewNormalizer(st),
		s,
		linkguard.New(),
		nil,
		nil,
		st,
		notifier,
		Options{
			BaseURL:         "https://www.sswl.top",
			Concurrency:     2,
			ResourceTimeout: 10 * time.Second,
			StoreRetries:    1,
			StoreBackoff:    time.Millisecond,
		},
	)
}

func movieResource() models.Resource {
	return models.Resource{
		Title:       "测试电影资源",
		Category:    "电影",
		Files:       []string{"https://pan.quark.cn/s/abc123def"},
		Tags:        []string{"高清"},
		Description: "一部测试电影",
	}
}

func TestRunPublishesNewResource(t *testing.T) {
	st := newFakeStore()
	led := ledger.NewMemoryLedger()
	notifier := &fakeNotifier{}
	p := newTestPipeline(st, led, templateSynth(), notifier)

	res := movieResource()
	summary, err := p.Run(context.Background(), []models.Resource{res})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Recorded)
	assert.Equal(t, 0, summary.Deduped)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, models.StateRecorded, summary.Results[0].State)

	// The post lives under its deterministic id in the movies category.
	post, ok := st.posts[store.PostID(res.Title)]
	require.True(t, ok)
	assert.Equal(t, "category-movies", post.Category.Ref)
	assert.Equal(t, PostSlug(res.Title), post.Slug.Current)
	assert.Equal(t, res.Files, post.ResourceLinks)
	assert.NotEmpty(t, post.MainImage)
	assert.False(t, post.AIGenerated)

	// Every file link appears verbatim in the body.
	for _, f := range res.Files {
		assert.Contains(t, post.MarkdownContent, f)
	}

	published, err := led.Has(context.Background(), res.Title)
	require.NoError(t, err)
	assert.True(t, published)

	// One push covering the top-level URLs and the new post.
	assert.Equal(t, 1, notifier.calls)
	assert.Contains(t, notifier.urls, "https://www.sswl.top/")
	assert.Contains(t, notifier.urls, "https://www.sswl.top/posts/"+PostSlug(res.Title))
}

func TestRunDeduplicatesAcrossRuns(t *testing.T) {
	st := newFakeStore()
	led := ledger.NewMemoryLedger()
	p := newTestPipeline(st, led, templateSynth(), nil)

	res := movieResource()
	_, err := p.Run(context.Background(), []models.Resource{res})
	require.NoError(t, err)
	upsertsAfterFirst := st.upserts

	// The same pipeline serves the next scheduled run.
	summary, err := p.Run(context.Background(), []models.Resource{res})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Recorded)
	assert.Equal(t, 1, summary.Deduped)
	assert.Equal(t, upsertsAfterFirst, st.upserts)
}

func TestRunDeduplicatesWithinBatch(t *testing.T) {
	st := newFakeStore()
	led := ledger.NewMemoryLedger()
	p := newTestPipeline(st, led, templateSynth(), nil)

	// Same title, differing whitespace and case still collapse.
	a := movieResource()
	b := movieResource()
	b.Title = "  " + b.Title + "  "

	summary, err := p.Run(context.Background(), []models.Resource{a, b})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Recorded)
	assert.Equal(t, 1, summary.Deduped)
	assert.Equal(t, 1, st.postCount())
	assert.Equal(t, 1, led.Len())
}

func TestRunSynthesisFailureSkipsResource(t *testing.T) {
	st := newFakeStore()
	led := ledger.NewMemoryLedger()
	notifier := &fakeNotifier{}
	failing := synthFunc(func(ctx context.Context, res models.Resource) (*models.SynthesizedContent, error) {
		return nil, fmt.Errorf("no providers left: %w", synth.ErrProviderExhausted)
	})
	p := newTestPipeline(st, led, failing, notifier)

	summary, err := p.Run(context.Background(), []models.Resource{movieResource()})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Recorded)
	assert.Contains(t, summary.Results[0].Reason, "synthesis failed")

	// Nothing stored, nothing recorded, nothing pushed: the resource is
	// eligible for the next run.
	assert.Equal(t, 0, st.postCount())
	assert.Equal(t, 0, led.Len())
	assert.Equal(t, 0, notifier.calls)
}

func TestRunOneFailureDoesNotAbortBatch(t *testing.T) {
	st := newFakeStore()
	led := ledger.NewMemoryLedger()
	selective := synthFunc(func(ctx context.Context, res models.Resource) (*models.SynthesizedContent, error) {
		if res.Title == "坏资源" {
			return nil, errors.New("provider blew up")
		}
		return templateSynth().Generate(ctx, res)
	})
	p := newTestPipeline(st, led, selective, nil)

	good := movieResource()
	bad := models.Resource{Title: "坏资源", Category: "软件", Files: []string{"https://pan.quark.cn/s/bad"}}

	summary, err := p.Run(context.Background(), []models.Resource{bad, good})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Recorded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, st.postCount())
}

func TestRunFailedResourceRetriedOnNextRun(t *testing.T) {
	st := newFakeStore()
	led := ledger.NewMemoryLedger()

	// Synthesis fails the first time the resource is seen and recovers
	// afterwards, like a provider outage between scheduled runs.
	var calls atomic.Int32
	flaky := synthFunc(func(ctx context.Context, res models.Resource) (*models.SynthesizedContent, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("provider outage")
		}
		return templateSynth().Generate(ctx, res)
	})

	p := newTestPipeline(st, led, flaky, nil)

	first, err := p.Run(context.Background(), []models.Resource{movieResource()})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failed)
	assert.Equal(t, 0, led.Len())

	// The same pipeline serves the next run; the failure must not linger
	// as a claim and masquerade as dedupe.
	second, err := p.Run(context.Background(), []models.Resource{movieResource()})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Recorded)
	assert.Equal(t, 0, second.Deduped)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, 1, st.postCount())
	assert.Equal(t, 1, led.Len())
}

func TestRunStoreWriteFailureLeavesLedgerClean(t *testing.T) {
	st := newFakeStore()
	st.upsertErr = errors.New("write rejected")
	led := ledger.NewMemoryLedger()
	p := newTestPipeline(st, led, templateSynth(), nil)

	summary, err := p.Run(context.Background(), []models.Resource{movieResource()})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Results[0].Reason, "store write failed")
	assert.Equal(t, 0, led.Len())
}

func TestRunAbortsWhenStoreUnreachable(t *testing.T) {
	st := newFakeStore()
	st.pingErr = store.ErrUnavailable
	p := newTestPipeline(st, ledger.NewMemoryLedger(), templateSynth(), nil)

	summary, err := p.Run(context.Background(), []models.Resource{movieResource()})
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Equal(t, 0, st.upserts)
}

func TestRunRetriesStoreWrites(t *testing.T) {
	led := ledger.NewMemoryLedger()
	// First two writes fail, the third succeeds.
	flaky := &flakyStore{fakeStore: newFakeStore(), failFirst: 2}
	p := newTestPipeline(flaky, led, templateSynth(), nil)
	p.opts.StoreRetries = 3

	summary, err := p.Run(context.Background(), []models.Resource{movieResource()})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Recorded)
	assert.Equal(t, 3, flaky.attemptCount())
	assert.Equal(t, 1, led.Len())
}

type flakyStore struct {
	*fakeStore
	failFirst int
	attempts  int
}

func (f *flakyStore) UpsertPost(ctx context.Context, post *models.Post) (string, error) {
	f.mu.Lock()
	f.attempts++
	n := f.attempts
	f.mu.Unlock()
	if n <= f.failFirst {
		return "", errors.New("transient write failure")
	}
	return f.fakeStore.UpsertPost(ctx, post)
}

func (f *flakyStore) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func TestPostSlugDeterministic(t *testing.T) {
	a := PostSlug("测试电影资源")
	b := PostSlug("测试电影资源")
	assert.Equal(t, a, b)

	// Chinese-only titles slugify to nothing, leaving the hash alone.
	assert.Len(t, a, 8)

	c := PostSlug("Ubuntu 24.04 ISO")
	assert.True(t, strings.HasPrefix(c, "ubuntu-2404-iso-"))
	assert.NotEqual(t, a, c)
}

func TestPostSlugCapsLongTitles(t *testing.T) {
	long := strings.Repeat("resource ", 20)
	slug := PostSlug(long)
	parts := strings.Split(slug, "-")
	require.GreaterOrEqual(t, len(parts), 2)
	assert.LessOrEqual(t, len(slug), 50+1+8)
}
