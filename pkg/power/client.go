// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package power

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/antimetal/powertrain/pkg/exposition"
	"github.com/go-logr/logr"
)

const scrapeTimeout = 2 * time.Second

// Client scrapes per-VM power readings from a Kepler metrics endpoint.
// Scrapes are retried a bounded number of times with a fixed backoff; the
// short request timeout keeps a slow exporter from stalling the sampling
// schedule.
type Client struct {
	logger     logr.Logger
	endpoint   string
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
}

// NewClient creates a Client for the given endpoint.
func NewClient(logger logr.Logger, endpoint string, maxRetries int, backoff time.Duration) *Client {
	return &Client{
		logger:     logger,
		endpoint:   endpoint,
		maxRetries: maxRetries,
		backoff:    backoff,
		httpClient: &http.Client{Timeout: scrapeTimeout},
	}
}

// Endpoint returns the metrics URL the client scrapes.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Scrape fetches the endpoint and returns all per-VM power readings found
// in the response, retrying on transport errors. Readings from all zones are
// returned; callers partition by Zone.
func (c *Client) Scrape(ctx context.Context) ([]VMReading, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		readings, err := c.scrapeOnce(ctx)
		if err == nil {
			return readings, nil
		}
		lastErr = err
		c.logger.V(1).Info("scrape failed", "attempt", attempt, "error", err)

		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff):
		}
	}
	return nil, fmt.Errorf("failed to scrape %s after %d attempts: %w", c.endpoint, c.maxRetries, lastErr)
}

// Probe checks connectivity by performing a full scrape and reports how many
// VM readings the endpoint currently exposes.
func (c *Client) Probe(ctx context.Context) (int, error) {
	readings, err := c.Scrape(ctx)
	if err != nil {
		return 0, err
	}
	return len(readings), nil
}

func (c *Client) scrapeOnce(ctx context.Context) ([]VMReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var readings []VMReading
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		sample, ok := exposition.ParseLine(line)
		if !ok {
			// A malformed target-metric line is worth a diagnostic; any
			// other unparsable line is just not ours.
			if strings.HasPrefix(line, MetricName) {
				c.logger.V(2).Info("skipping malformed metric line", "line", line)
			}
			continue
		}
		if sample.Name != MetricName {
			continue
		}
		zone := Zone(sample.Labels["zone"])
		if zone != ZoneCore && zone != ZonePackage {
			continue
		}
		readings = append(readings, VMReading{
			VMID:       sample.Labels["vm_id"],
			VMName:     sample.Labels["vm_name"],
			Hypervisor: sample.Labels["hypervisor"],
			NodeName:   sample.Labels["node_name"],
			Zone:       zone,
			Watts:      sample.Value,
			State:      sample.Labels["state"],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return readings, nil
}
