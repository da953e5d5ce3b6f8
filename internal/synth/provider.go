// Package synth generates publishable article content for a netdisk resource
// via an ordered chain of generative providers with a deterministic template
// fallback. Whatever the provider returns, every resource file link ends up
// embedded in the markdown body.
package synth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/models"
)

var (
	// ErrQuotaExhausted means the provider's usage budget for this run is
	// spent. Falls through to the next provider.
	ErrQuotaExhausted = errors.New("provider quota exhausted")

	// ErrAuthFailed means the provider rejected our credentials.
	ErrAuthFailed = errors.New("provider authentication failed")

	// ErrMalformed means the provider responded but the payload could not
	// be parsed into usable content.
	ErrMalformed = errors.New("malformed provider response")

	// ErrProviderExhausted means every provider in the chain failed. The
	// resource is skipped this run and retried on the next one.
	ErrProviderExhausted = errors.New("all content providers failed")
)

// Provider produces synthesized content for a single resource.
type Provider interface {
	Name() string
	Generate(ctx context.Context, res models.Resource) (*models.SynthesizedContent, error)
}

// Synthesizer tries providers in order and post-processes whichever output
// succeeds first.
type Synthesizer struct {
	providers []Provider
	post      *PostProcessor
}

func NewSynthesizer(post *PostProcessor, providers ...Provider) *Synthesizer {
	return &Synthesizer{providers: providers, post: post}
}

// Generate runs the provider chain for the resource. Quota exhaustion, auth
// failures and malformed responses fall through to the next provider; only
// chain exhaustion is returned as an error.
func (s *Synthesizer) Generate(ctx context.Context, res models.Resource) (*models.SynthesizedContent, error) {
	log := logger.Get()

	var lastErr error
	for _, p := range s.providers {
		content, err := p.Generate(ctx, res)
		if err != nil {
			log.Warn().
				Err(err).
				Str("provider", p.Name()).
				Str("title", res.Title).
				Msg("Content provider failed, trying next")
			lastErr = err
			continue
		}

		content.Model = p.Name()
		content.Body = EmbedLinks(content.Body, res.Files)
		s.post.Process(content, res)

		log.Info().
			Str("provider", p.Name()).
			Str("title", res.Title).
			Msg("Content generated")
		return content, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderExhausted, lastErr)
	}
	return nil, ErrProviderExhausted
}
