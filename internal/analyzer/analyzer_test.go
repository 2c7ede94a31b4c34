package analyzer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trendwatch/internal/cache"
	"trendwatch/internal/config"
	"trendwatch/internal/fetcher"
	"trendwatch/internal/models"
	"trendwatch/internal/pushgate"
	"trendwatch/internal/ranking"
	"trendwatch/internal/report"
	"trendwatch/internal/storage"
)

const boardJSON = `{
	"status": "success",
	"items": [
		{"title": "Story one", "url": "https://example.com/1"},
		{"title": "Story two", "url": "https://example.com/2"},
		{"title": "Story three", "url": "https://example.com/3"}
	]
}`

// captureDeliverer records delivered reports and can be told to fail.
type captureDeliverer struct {
	reports []*models.Report
	fail    bool
}

func (d *captureDeliverer) Deliver(ctx context.Context, rpt *models.Report) error {
	if d.fail {
		return errors.New("delivery refused")
	}
	d.reports = append(d.reports, rpt)
	return nil
}

type testHarness struct {
	analyzer  *Analyzer
	store     storage.Storage
	deliverer *captureDeliverer
	cache     *cache.Manager
}

func newHarness(t *testing.T, mode models.ReportMode, boardURL string) *testHarness {
	t.Helper()

	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.ReportMode = mode
	cfg.TopK = 10
	cfg.RankThreshold = 10
	cfg.Platforms = []config.PlatformConfig{
		{ID: "toutiao", Name: "Toutiao", URL: boardURL, Kind: "hotboard"},
	}

	gate, err := pushgate.NewGate(cfg.Push, store)
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}

	deliverer := &captureDeliverer{}
	cacheManager := cache.NewManager(cfg.CacheTTL())

	a := New(
		cfg,
		store,
		fetcher.New(time.Millisecond),
		ranking.NewEngine(cfg.Ranking, store),
		report.NewSelector(cfg, store),
		gate,
		deliverer,
		cacheManager,
	)

	return &testHarness{analyzer: a, store: store, deliverer: deliverer, cache: cacheManager}
}

func boardServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAnalyzer_FullCycle(t *testing.T) {
	server := boardServer(t, boardJSON)
	h := newHarness(t, models.ModeCurrent, server.URL)

	crawlTime := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	result, err := h.analyzer.RunCycle(context.Background(), crawlTime)
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	if result.ItemUpserts != 3 {
		t.Errorf("Expected 3 upserts, got %d", result.ItemUpserts)
	}
	if result.ItemsSkipped != 0 {
		t.Errorf("Expected no skipped items, got %d", result.ItemsSkipped)
	}
	if !result.Delivered {
		t.Error("Expected report to be delivered")
	}
	if len(result.Report.Entries) != 3 {
		t.Errorf("Expected 3 report entries, got %d", len(result.Report.Entries))
	}
	if result.Report.NewCount != 3 {
		t.Errorf("Expected all entries new on first cycle, got %d", result.Report.NewCount)
	}

	// Session bookkeeping
	record, err := h.store.GetCrawlRecord(crawlTime)
	if err != nil {
		t.Fatalf("Failed to get crawl record: %v", err)
	}
	if !record.Finalized || record.TotalItems != 3 {
		t.Errorf("Unexpected crawl record: %+v", record)
	}
	if len(record.Statuses) != 1 || !record.Statuses[0].Success {
		t.Errorf("Unexpected platform statuses: %+v", record.Statuses)
	}

	// Identity store
	item, err := h.store.GetItem("toutiao", "https://example.com/1")
	if err != nil {
		t.Fatalf("Expected item to be stored: %v", err)
	}
	if item.Rank != 1 || item.OccurrenceCount != 1 {
		t.Errorf("Unexpected stored item: %+v", item)
	}

	// Delivery and read path
	if len(h.deliverer.reports) != 1 {
		t.Fatalf("Expected 1 delivered report, got %d", len(h.deliverer.reports))
	}
	if cached, found := h.cache.GetLatestReport(); !found || len(cached.Entries) != 3 {
		t.Error("Expected latest report in cache")
	}
	if _, found := h.cache.GetLeaderboard(); !found {
		t.Error("Expected leaderboard in cache")
	}
}

func TestAnalyzer_RepeatSightingsAccumulate(t *testing.T) {
	server := boardServer(t, boardJSON)
	h := newHarness(t, models.ModeCurrent, server.URL)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := h.analyzer.RunCycle(context.Background(), base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Cycle %d failed: %v", i+1, err)
		}
	}

	item, err := h.store.GetItem("toutiao", "https://example.com/2")
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if item.OccurrenceCount != 3 {
		t.Errorf("Expected 3 sightings, got %d", item.OccurrenceCount)
	}

	observations, err := h.store.RankObservations(item.ID)
	if err != nil {
		t.Fatalf("Failed to get observations: %v", err)
	}
	if len(observations) != 3 {
		t.Errorf("Expected 3 rank observations, got %d", len(observations))
	}
}

func TestAnalyzer_DuplicateCrawlTimeAbortsCycle(t *testing.T) {
	server := boardServer(t, boardJSON)
	h := newHarness(t, models.ModeCurrent, server.URL)

	crawlTime := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	if _, err := h.analyzer.RunCycle(context.Background(), crawlTime); err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}

	_, err := h.analyzer.RunCycle(context.Background(), crawlTime)
	if !errors.Is(err, storage.ErrDuplicateCrawl) {
		t.Fatalf("Expected ErrDuplicateCrawl, got %v", err)
	}

	// The aborted cycle must not have delivered anything
	if len(h.deliverer.reports) != 1 {
		t.Errorf("Expected exactly 1 delivery, got %d", len(h.deliverer.reports))
	}
}

func TestAnalyzer_IncrementalDoesNotReEmit(t *testing.T) {
	server := boardServer(t, boardJSON)
	h := newHarness(t, models.ModeIncremental, server.URL)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	first, err := h.analyzer.RunCycle(context.Background(), base)
	if err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}
	if !first.Delivered || len(first.Report.Entries) != 3 {
		t.Fatalf("Expected first cycle to deliver all items, got %+v", first)
	}

	// Same board an hour later: everything already reported
	second, err := h.analyzer.RunCycle(context.Background(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}
	if second.Delivered {
		t.Error("Second cycle should not deliver")
	}
	if len(second.Report.Entries) != 0 {
		t.Errorf("Expected empty incremental report, got %d entries", len(second.Report.Entries))
	}
	if second.Report.Suppression != pushgate.ReasonEmptyReport {
		t.Errorf("Expected empty-report suppression, got %q", second.Report.Suppression)
	}
	if len(h.deliverer.reports) != 1 {
		t.Errorf("Expected exactly 1 delivery overall, got %d", len(h.deliverer.reports))
	}
}

func TestAnalyzer_FailedDeliveryLeavesItemsEligible(t *testing.T) {
	server := boardServer(t, boardJSON)
	h := newHarness(t, models.ModeIncremental, server.URL)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	h.deliverer.fail = true
	first, err := h.analyzer.RunCycle(context.Background(), base)
	if err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}
	if first.Delivered {
		t.Error("Delivery should have failed")
	}

	// Markers were not written, so the next cycle re-emits everything
	h.deliverer.fail = false
	second, err := h.analyzer.RunCycle(context.Background(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}
	if !second.Delivered {
		t.Fatal("Expected second cycle to deliver")
	}
	if len(second.Report.Entries) != 3 {
		t.Errorf("Expected all 3 items re-emitted, got %d", len(second.Report.Entries))
	}
}

func TestAnalyzer_OncePerDayGate(t *testing.T) {
	server := boardServer(t, boardJSON)
	h := newHarness(t, models.ModeCurrent, server.URL)

	// Rebuild the gate with once-per-day enabled
	h.analyzer.cfg.Push.Window.OncePerDay = true
	gate, err := pushgate.NewGate(h.analyzer.cfg.Push, h.store)
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}
	h.analyzer.gate = gate

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	first, err := h.analyzer.RunCycle(context.Background(), base)
	if err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}
	if !first.Delivered {
		t.Fatal("First cycle of the day should deliver")
	}

	second, err := h.analyzer.RunCycle(context.Background(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}
	if second.Delivered {
		t.Error("Second cycle on the same day should be suppressed")
	}
	if second.Report.Suppression != pushgate.ReasonAlreadyPushed {
		t.Errorf("Expected already-pushed suppression, got %q", second.Report.Suppression)
	}

	third, err := h.analyzer.RunCycle(context.Background(), base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Third cycle failed: %v", err)
	}
	if !third.Delivered {
		t.Error("Next day's cycle should deliver again")
	}
}

func TestAnalyzer_Cleanup(t *testing.T) {
	server := boardServer(t, boardJSON)
	h := newHarness(t, models.ModeCurrent, server.URL)

	if _, err := h.analyzer.RunCycle(context.Background(), time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	if err := h.analyzer.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	// Recent items survive the sweep
	if _, err := h.store.GetItem("toutiao", "https://example.com/1"); err != nil {
		t.Errorf("Expected recent item to survive cleanup: %v", err)
	}
}
