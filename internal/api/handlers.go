package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sswl/panpub/internal/config"
	"github.com/sswl/panpub/internal/feed"
	"github.com/sswl/panpub/internal/linkguard"
	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/pipeline"
	"github.com/sswl/panpub/internal/push"
	"github.com/sswl/panpub/internal/store"
)

type Handlers struct {
	config   *config.Config
	store    store.ContentStore
	pipe     *pipeline.Pipeline
	loader   *feed.Loader
	parser   *feed.Parser
	notifier push.Notifier
}

func NewHandlers(cfg *config.Config, st store.ContentStore, pipe *pipeline.Pipeline, notifier push.Notifier) *Handlers {
	return &Handlers{
		config:   cfg,
		store:    st,
		pipe:     pipe,
		loader:   feed.NewLoader(),
		parser:   feed.NewParser(),
		notifier: notifier,
	}
}

// HealthCheck handles GET /api/v1/health
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// ListPosts handles GET /api/v1/posts
func (h *Handlers) ListPosts(c *fiber.Ctx) error {
	posts, err := h.store.ListPosts(c.Context(), store.PostFilter{
		CategorySlug: c.Query("category"),
	})
	if err != nil {
		logger.Get().Error().Err(err).Msg("Error listing posts")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list posts",
		})
	}

	return c.JSON(fiber.Map{
		"total": len(posts),
		"items": posts,
	})
}

// Publish handles POST /api/v1/admin/publish. The batch runs in the
// background; the response only acknowledges the start.
func (h *Handlers) Publish(c *fiber.Ctx) error {
	log := logger.Get()

	var req struct {
		Source string `json:"source"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body: " + err.Error(),
		})
	}

	source := req.Source
	if source == "" {
		source = h.config.FeedSource
	}

	log.Info().Str("source", source).Str("ip", c.IP()).Msg("Received publish request")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		resources, err := h.loader.Load(ctx, source)
		if err != nil {
			log.Error().Err(err).Str("source", source).Msg("Error loading resource feed")
			return
		}

		valid, errs := h.parser.Process(resources)
		if len(errs) > 0 {
			log.Warn().Int("rejected", len(errs)).Msg("Some resource records were rejected")
		}

		summary, err := h.pipe.Run(ctx, valid)
		if err != nil {
			log.Error().Err(err).Msg("Publication run aborted")
			return
		}

		log.Info().
			Str("run_id", summary.RunID).
			Int("recorded", summary.Recorded).
			Int("deduped", summary.Deduped).
			Int("failed", summary.Failed).
			Msg("Background publication run finished")
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "publishing",
		"source": source,
	})
}

// PushAll handles POST /api/v1/admin/push: submits every live post URL plus
// the fixed top-level pages to the search indexer.
func (h *Handlers) PushAll(c *fiber.Ctx) error {
	posts, err := h.store.ListPosts(c.Context(), store.PostFilter{})
	if err != nil {
		logger.Get().Error().Err(err).Msg("Error listing posts for push")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list posts",
		})
	}

	base := strings.TrimSuffix(h.config.BaseURL, "/")
	urls := push.TopLevelURLs(base)
	for _, p := range posts {
		urls = append(urls, base+"/posts/"+p.Slug.Current)
	}

	result, err := h.notifier.Notify(c.Context(), urls)
	if err != nil {
		logger.Get().Warn().Err(err).Msg("Search push failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Push failed: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"submitted":       len(result.URLs),
		"accepted":        result.Accepted,
		"remaining_quota": result.RemainingQuota,
	})
}

// Audit handles GET /api/v1/admin/audit: reports posts whose content lost
// their netdisk links.
func (h *Handlers) Audit(c *fiber.Ctx) error {
	posts, err := h.store.ListPosts(c.Context(), store.PostFilter{})
	if err != nil {
		logger.Get().Error().Err(err).Msg("Error listing posts for audit")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list posts",
		})
	}

	missing := linkguard.Audit(posts)
	titles := make([]string, 0, len(missing))
	for _, p := range missing {
		titles = append(titles, p.Title)
	}

	return c.JSON(fiber.Map{
		"total":         len(posts),
		"missing_links": len(missing),
		"titles":        titles,
	})
}

// DeletePost handles DELETE /api/v1/admin/posts/:id. Soft delete by default;
// ?hard=true removes the document.
func (h *Handlers) DeletePost(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Post ID is required",
		})
	}

	hard := c.Query("hard") == "true"
	if err := h.store.DeletePost(c.Context(), id, hard); err != nil {
		logger.Get().Error().Err(err).Str("id", id).Msg("Error deleting post")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete post",
		})
	}

	return c.JSON(fiber.Map{
		"deleted": id,
		"hard":    hard,
	})
}
