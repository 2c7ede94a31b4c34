package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"trendwatch/internal/config"
	"trendwatch/internal/models"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

const (
	fetchTimeout   = 30 * time.Second
	requestTimeout = 15 * time.Second
	maxBodySize    = 4 << 20 // 4MB
)

// Fetcher pulls the current board state from every active platform. Boards
// come in two kinds: "hotboard" JSON APIs and plain RSS feeds. Requests are
// paced through a shared rate limiter so the upstream aggregator is never
// hammered, even though platforms are fetched in parallel.
type Fetcher struct {
	client  *http.Client
	parser  *gofeed.Parser
	limiter *rate.Limiter
}

// PlatformResult is the outcome of fetching one platform board.
type PlatformResult struct {
	PlatformID   string
	Observations []models.Observation
	Error        error
}

func New(requestInterval time.Duration) *Fetcher {
	if requestInterval <= 0 {
		requestInterval = 100 * time.Millisecond
	}
	return &Fetcher{
		client:  &http.Client{Timeout: requestTimeout},
		parser:  gofeed.NewParser(),
		limiter: rate.NewLimiter(rate.Every(requestInterval), 1),
	}
}

// FetchAll fetches every platform in parallel and returns one result per
// platform. A platform failure is recorded in its result, never fatal to
// the batch.
func (f *Fetcher) FetchAll(ctx context.Context, platforms []config.PlatformConfig, crawlTime time.Time) []PlatformResult {
	var wg sync.WaitGroup
	results := make(chan PlatformResult, len(platforms))

	for _, p := range platforms {
		wg.Add(1)
		go func(platform config.PlatformConfig) {
			defer wg.Done()
			observations, err := f.fetchPlatform(ctx, platform, crawlTime)
			results <- PlatformResult{
				PlatformID:   platform.ID,
				Observations: observations,
				Error:        err,
			}
		}(p)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	timeout := time.After(fetchTimeout)
	var all []PlatformResult

	for {
		select {
		case result, ok := <-results:
			if !ok {
				return all
			}
			if result.Error != nil {
				log.Printf("Error fetching platform %s: %v", result.PlatformID, result.Error)
			}
			all = append(all, result)
		case <-timeout:
			log.Printf("Timeout waiting for platform results")
			return all
		case <-ctx.Done():
			return all
		}
	}
}

func (f *Fetcher) fetchPlatform(ctx context.Context, p config.PlatformConfig, crawlTime time.Time) ([]models.Observation, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %v", err)
	}

	switch p.Kind {
	case "rss":
		return f.fetchRSS(ctx, p, crawlTime)
	case "hotboard", "":
		return f.fetchHotboard(ctx, p, crawlTime)
	default:
		return nil, fmt.Errorf("unknown platform kind %q", p.Kind)
	}
}

// hotboardResponse is the upstream aggregator's JSON shape. A "cache" status
// means the upstream served a cached board, which is still valid data.
type hotboardResponse struct {
	Status string `json:"status"`
	Items  []struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		MobileURL string `json:"mobileUrl"`
	} `json:"items"`
}

func (f *Fetcher) fetchHotboard(ctx context.Context, p config.PlatformConfig, crawlTime time.Time) ([]models.Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	var board hotboardResponse
	if err := json.Unmarshal(body, &board); err != nil {
		return nil, fmt.Errorf("failed to parse board JSON: %v", err)
	}

	if board.Status != "success" && board.Status != "cache" {
		return nil, fmt.Errorf("board returned status %q", board.Status)
	}

	var observations []models.Observation
	for i, item := range board.Items {
		if item.Title == "" {
			continue
		}
		observations = append(observations, models.Observation{
			PlatformID: p.ID,
			Title:      item.Title,
			URL:        item.URL,
			MobileURL:  item.MobileURL,
			Rank:       i + 1,
			CrawlTime:  crawlTime,
		})
	}

	return observations, nil
}

func (f *Fetcher) fetchRSS(ctx context.Context, p config.PlatformConfig, crawlTime time.Time) ([]models.Observation, error) {
	feed, err := f.parser.ParseURLWithContext(p.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %v", err)
	}

	var observations []models.Observation
	for i, item := range feed.Items {
		if item.Title == "" {
			continue
		}
		observations = append(observations, models.Observation{
			PlatformID: p.ID,
			Title:      item.Title,
			URL:        item.Link,
			Rank:       i + 1,
			CrawlTime:  crawlTime,
		})
	}

	return observations, nil
}
