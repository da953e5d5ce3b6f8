package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/sswl/panpub/internal/api"
	"github.com/sswl/panpub/internal/assets"
	"github.com/sswl/panpub/internal/config"
	"github.com/sswl/panpub/internal/feed"
	"github.com/sswl/panpub/internal/ledger"
	"github.com/sswl/panpub/internal/linkguard"
	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/middleware"
	"github.com/sswl/panpub/internal/models"
	"github.com/sswl/panpub/internal/pipeline"
	"github.com/sswl/panpub/internal/poster"
	"github.com/sswl/panpub/internal/push"
	"github.com/sswl/panpub/internal/store"
	"github.com/sswl/panpub/internal/synth"
	"github.com/sswl/panpub/internal/taxonomy"
)

var feedSource string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "panpub",
	Short: "Netdisk resource publication pipeline",
	Long:  "Turns netdisk resource records into deduplicated, AI-enriched blog posts and notifies search indexers.",
}

func init() {
	runCmd.Flags().StringVar(&feedSource, "source", "", "resource feed path or URL (overrides FEED_SOURCE)")
	ledgerCmd.AddCommand(ledgerTruncateCmd)
	rootCmd.AddCommand(runCmd, pushCmd, auditCmd, ledgerCmd, serveCmd)
}

// setup loads config, initializes logging and builds shared collaborators.
func setup() (*config.Config, *app) {
	cfg := config.Load()

	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Output: "stdout",
		Pretty: cfg.Env == "development",
	}); err != nil {
		panic(err)
	}

	return cfg, newApp(cfg)
}

// app bundles the wired pipeline collaborators.
type app struct {
	cfg      *config.Config
	ledger   ledger.Ledger
	store    *store.SanityClient
	notifier *push.BaiduNotifier
	pipe     *pipeline.Pipeline
}

func newApp(cfg *config.Config) *app {
	log := logger.Get()

	var led ledger.Ledger
	var err error
	switch cfg.LedgerBackend {
	case "redis":
		led, err = ledger.NewRedisLedger(cfg)
	default:
		led, err = ledger.NewFileLedger(cfg.LedgerPath)
	}
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.LedgerBackend).Msg("Failed to initialize ledger")
	}

	st := store.NewSanityClient(cfg)
	notifier := push.NewBaiduNotifier(cfg.BaseURL, cfg.BaiduPushToken, cfg.BaiduBatchSize)

	var providers []synth.Provider
	if cfg.GeminiAPIKey != "" {
		providers = append(providers, synth.NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBudget, cfg.SynthTimeout))
	}
	if cfg.CohereAPIKey != "" {
		providers = append(providers, synth.NewCohereProvider(cfg.CohereAPIKey, cfg.CohereBudget, cfg.SynthTimeout))
	}
	if len(providers) == 0 {
		log.Warn().Msg("No AI provider keys configured, content will come from templates")
	}
	providers = append(providers, synth.NewTemplateProvider())

	synthesizer := synth.NewSynthesizer(
		synth.NewPostProcessor(cfg.MaxTags, cfg.ExcerptLength),
		providers...,
	)

	mirror, err := assets.NewMirror(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize R2 mirror")
	}

	pipe := pipeline.New(
		led,
		taxonomy.NewNormalizer(st),
		synthesizer,
		linkguard.New(),
		poster.NewResolver(cfg.TMDBAPIKey, cfg.PosterTimeout),
		mirror,
		st,
		notifier,
		pipeline.Options{
			BaseURL:     cfg.BaseURL,
			Concurrency: cfg.MaxConcurrency,
		},
	)

	return &app{cfg: cfg, ledger: led, store: st, notifier: notifier, pipe: pipe}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the resource feed and publish new resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, a := setup()
		defer a.ledger.Close()

		source := feedSource
		if source == "" {
			source = cfg.FeedSource
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		resources, err := feed.NewLoader().Load(ctx, source)
		if err != nil {
			return fmt.Errorf("failed to load resource feed: %w", err)
		}

		valid, errs := feed.NewParser().Process(resources)
		if len(errs) > 0 {
			logger.Get().Warn().Int("rejected", len(errs)).Msg("Some resource records were rejected")
		}

		summary, err := a.pipe.Run(ctx, valid)
		if err != nil {
			return err
		}

		fmt.Printf("run %s: recorded=%d deduped=%d failed=%d\n",
			summary.RunID, summary.Recorded, summary.Deduped, summary.Failed)
		for _, r := range summary.Results {
			if r.State == models.StateFailed {
				fmt.Printf("  failed: %s (%s)\n", r.Title, r.Reason)
			}
		}
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push all published post URLs to the search indexer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, a := setup()
		defer a.ledger.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		posts, err := a.store.ListPosts(ctx, store.PostFilter{})
		if err != nil {
			return fmt.Errorf("failed to list posts: %w", err)
		}

		urls := push.TopLevelURLs(cfg.BaseURL)
		for _, p := range posts {
			urls = append(urls, cfg.BaseURL+"/posts/"+p.Slug.Current)
		}

		result, err := a.notifier.Notify(ctx, urls)
		if err != nil {
			return err
		}

		fmt.Printf("pushed %d urls, accepted=%d, remaining quota=%d\n",
			len(result.URLs), result.Accepted, result.RemainingQuota)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report published posts missing their netdisk links",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, a := setup()
		defer a.ledger.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		posts, err := a.store.ListPosts(ctx, store.PostFilter{})
		if err != nil {
			return fmt.Errorf("failed to list posts: %w", err)
		}

		missing := linkguard.Audit(posts)
		fmt.Printf("checked %d posts, %d missing netdisk links\n", len(posts), len(missing))
		for _, p := range missing {
			fmt.Printf("  %s (%s)\n", p.Title, p.ID)
		}
		return nil
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Ledger maintenance operations",
}

var ledgerTruncateCmd = &cobra.Command{
	Use:   "truncate",
	Short: "Clear the publication ledger (forces re-publication of everything)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, a := setup()
		defer a.ledger.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := a.ledger.Truncate(ctx); err != nil {
			return fmt.Errorf("failed to truncate ledger: %w", err)
		}
		fmt.Println("ledger truncated")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ops API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, a := setup()
		defer a.ledger.Close()

		log := logger.Get()

		fiberApp := fiber.New(fiber.Config{
			ReadTimeout:  cfg.HTTPTimeout,
			WriteTimeout: cfg.HTTPTimeout,
			IdleTimeout:  120 * time.Second,
			ErrorHandler: middleware.ErrorHandler,
		})

		handlers := api.NewHandlers(cfg, a.store, a.pipe, a.notifier)
		api.SetupRoutes(fiberApp, handlers, cfg.AdminAPIKey)

		go func() {
			log.Info().Str("port", cfg.Port).Msg("Starting ops API server")
			if err := fiberApp.Listen(":" + cfg.Port); err != nil {
				log.Fatal().Err(err).Msg("Server error")
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := fiberApp.ShutdownWithContext(ctx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		log.Info().Msg("Server exited properly")
		return nil
	},
}
