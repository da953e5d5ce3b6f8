// Package feed reads and validates the resource records a batch run consumes.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sswl/panpub/internal/models"
)

// Loader reads resource records from a local JSON file or an HTTP feed. Both
// a single object and an array are accepted.
type Loader struct {
	client *resty.Client
}

func NewLoader() *Loader {
	return &Loader{
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetRetryCount(3).
			SetRetryWaitTime(2 * time.Second).
			SetRetryMaxWaitTime(10 * time.Second),
	}
}

// Load reads resources from source, which is either a file path or an
// http(s) URL.
func (l *Loader) Load(ctx context.Context, source string) ([]models.Resource, error) {
	var data []byte

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := l.client.R().
			SetContext(ctx).
			SetHeader("Accept", "application/json").
			Get(source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch resource feed from %s: %w", source, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode(), source)
		}
		data = resp.Body()
	} else {
		var err error
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read resource feed %s: %w", source, err)
		}
	}

	return parseResources(data)
}

func parseResources(data []byte) ([]models.Resource, error) {
	var resources []models.Resource
	if err := json.Unmarshal(data, &resources); err != nil {
		// Not an array, try a single record.
		var single models.Resource
		if singleErr := json.Unmarshal(data, &single); singleErr != nil {
			return nil, fmt.Errorf("failed to parse resource feed: %w (tried both array and single record)", err)
		}
		resources = []models.Resource{single}
	}
	return resources, nil
}
