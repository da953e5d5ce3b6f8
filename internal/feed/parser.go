package feed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sswl/panpub/internal/logger"
	"github.com/sswl/panpub/internal/models"
)

// Parser normalizes and validates resource records before they enter the
// pipeline.
type Parser struct {
	validate *validator.Validate
}

func NewParser() *Parser {
	return &Parser{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Normalize trims whitespace on every field and drops empty file entries and
// tags. File order is preserved.
func (p *Parser) Normalize(res models.Resource) models.Resource {
	out := models.Resource{
		Title:       strings.TrimSpace(res.Title),
		Category:    strings.TrimSpace(res.Category),
		Type:        strings.TrimSpace(res.Type),
		Description: strings.TrimSpace(res.Description),
	}

	for _, f := range res.Files {
		if f = strings.TrimSpace(f); f != "" {
			out.Files = append(out.Files, f)
		}
	}
	for _, t := range res.Tags {
		if t = strings.TrimSpace(t); t != "" {
			out.Tags = append(out.Tags, t)
		}
	}

	return out
}

// Validate checks the record against the feed schema: title required, at
// least one file link, every file a URL.
func (p *Parser) Validate(res models.Resource) error {
	if err := p.validate.Struct(res); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			return fmt.Errorf("invalid resource record: field %s failed %q validation", errs[0].Field(), errs[0].Tag())
		}
		return fmt.Errorf("invalid resource record: %w", err)
	}
	return nil
}

// Process normalizes and validates a batch, returning the valid records and
// one error per rejected record.
func (p *Parser) Process(resources []models.Resource) ([]models.Resource, []error) {
	var valid []models.Resource
	var errs []error

	for _, res := range resources {
		normalized := p.Normalize(res)
		if err := p.Validate(normalized); err != nil {
			logger.Get().Warn().
				Err(err).
				Str("title", res.Title).
				Msg("Dropping invalid resource record")
			errs = append(errs, fmt.Errorf("resource %q: %w", res.Title, err))
			continue
		}
		valid = append(valid, normalized)
	}

	return valid, errs
}
