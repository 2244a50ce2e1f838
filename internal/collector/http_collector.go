package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lienledger/api/internal/logger"
	"github.com/lienledger/api/internal/models"
	"github.com/lienledger/api/internal/services"
)

// feed is the JSON document a data source endpoint serves.
type feed struct {
	Properties []models.Property `json:"properties"`
}

// HTTPCollector fetches a property feed from a data source's URL. It is the
// reference services.CollectorFunc implementation; county-specific scrapers
// plug in the same way.
type HTTPCollector struct {
	client *http.Client
	log    *logger.Logger
}

// NewHTTPCollector creates a collector with the given per-request timeout.
// The scheduler applies its own per-source deadline on top via context.
func NewHTTPCollector(log *logger.Logger, timeout time.Duration) *HTTPCollector {
	return &HTTPCollector{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Collect fetches and decodes the source's feed, reporting how long the
// fetch took. Transport and decode failures surface as errors; the
// scheduler records them against the source.
func (c *HTTPCollector) Collect(ctx context.Context, source models.DataSource) (*services.CollectorResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for source %s: %w", source.ID, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed for source %s: %w", source.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source %s returned status %d", source.ID, resp.StatusCode)
	}

	var f feed
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode feed for source %s: %w", source.ID, err)
	}

	duration := time.Since(start)
	c.log.Debug("Feed collected", map[string]interface{}{
		"source_id":   source.ID,
		"url":         source.URL,
		"properties":  len(f.Properties),
		"duration_ms": duration.Milliseconds(),
	})

	return &services.CollectorResult{
		Properties: f.Properties,
		Duration:   duration,
		Success:    true,
	}, nil
}
