package report

import (
	"testing"
	"time"

	"trendwatch/internal/config"
	"trendwatch/internal/models"
	"trendwatch/internal/storage"
)

func newSelectorTest(t *testing.T, mode models.ReportMode) (*Selector, storage.Storage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.ReportMode = mode
	cfg.TopK = 3
	cfg.RankThreshold = 10

	return NewSelector(cfg, store), store
}

func makeItem(t *testing.T, store storage.Storage, url string, rank int, at time.Time) models.NewsItem {
	t.Helper()
	item, _, err := store.UpsertItem(models.Observation{
		PlatformID: "toutiao",
		Title:      url,
		URL:        url,
		Rank:       rank,
		CrawlTime:  at,
	})
	if err != nil {
		t.Fatalf("Failed to upsert item: %v", err)
	}
	return *item
}

func TestSelector_CurrentMode(t *testing.T) {
	selector, store := newSelectorTest(t, models.ModeCurrent)

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Five qualifying items plus one past the rank threshold, in score order
	var scored []models.ScoredItem
	for i, rank := range []int{1, 2, 3, 4, 5, 30} {
		item := makeItem(t, store, urlFor(i), rank, now)
		scored = append(scored, models.ScoredItem{Item: item, Score: 1.0 - float64(i)*0.1, IsNew: i == 0})
	}

	report, err := selector.Build(scored, now)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if report.Mode != models.ModeCurrent {
		t.Errorf("Expected current mode, got %s", report.Mode)
	}
	if len(report.Entries) != 3 {
		t.Fatalf("Expected top-3 entries, got %d", len(report.Entries))
	}
	if report.Entries[0].Rank != 1 {
		t.Errorf("Expected best item first, got rank %d", report.Entries[0].Rank)
	}
	if report.NewCount != 1 {
		t.Errorf("Expected 1 new item in selection, got %d", report.NewCount)
	}
	if report.TotalItems != 6 {
		t.Errorf("Expected total of 6 scored items, got %d", report.TotalItems)
	}
}

func TestSelector_CurrentModeKeepsNewItemsPastCut(t *testing.T) {
	selector, store := newSelectorTest(t, models.ModeCurrent)

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Four established items outscore the newcomer, which sits past top-3
	var scored []models.ScoredItem
	for i := 0; i < 4; i++ {
		item := makeItem(t, store, urlFor(i), i+1, now)
		scored = append(scored, models.ScoredItem{Item: item, Score: 0.9 - float64(i)*0.1})
	}
	newcomer := makeItem(t, store, "https://example.com/newcomer", 9, now)
	scored = append(scored, models.ScoredItem{Item: newcomer, Score: 0.1, IsNew: true})

	report, err := selector.Build(scored, now)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if len(report.Entries) != 4 {
		t.Fatalf("Expected top-3 plus the newcomer, got %d entries", len(report.Entries))
	}
	last := report.Entries[len(report.Entries)-1]
	if last.ItemID != newcomer.ID || !last.IsNew {
		t.Errorf("Expected newcomer appended past the cut, got %+v", last)
	}

	// The established item past the cut stays dropped
	for _, e := range report.Entries {
		if e.ItemID == scored[3].Item.ID {
			t.Error("Expected non-new item past the cut to be dropped")
		}
	}
}

func TestSelector_CurrentModeIgnoresRankThreshold(t *testing.T) {
	selector, store := newSelectorTest(t, models.ModeCurrent)

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// A high-scoring item deep on the board still leads the report; the
	// rank threshold only gates incremental notability, never the leaderboard.
	deep := makeItem(t, store, "https://example.com/deep", 15, now)
	shallow := makeItem(t, store, "https://example.com/shallow", 2, now)

	report, err := selector.Build([]models.ScoredItem{
		{Item: deep, Score: 0.95},
		{Item: shallow, Score: 0.40},
	}, now)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if len(report.Entries) != 2 {
		t.Fatalf("Expected both items, got %d entries", len(report.Entries))
	}
	if report.Entries[0].ItemID != deep.ID {
		t.Errorf("Expected top-score item first despite its board rank, got item %d", report.Entries[0].ItemID)
	}
}

func TestSelector_IncrementalSkipsReported(t *testing.T) {
	selector, store := newSelectorTest(t, models.ModeIncremental)

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	seen := makeItem(t, store, "https://example.com/seen", 1, now)
	fresh := makeItem(t, store, "https://example.com/fresh", 2, now)

	if err := store.MarkReported([]int64{seen.ID}, models.ModeIncremental, now.Add(-time.Hour)); err != nil {
		t.Fatalf("Failed to mark reported: %v", err)
	}

	report, err := selector.Build([]models.ScoredItem{
		{Item: seen, Score: 0.9},
		{Item: fresh, Score: 0.8, IsNew: true},
	}, now)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if len(report.Entries) != 1 {
		t.Fatalf("Expected only the unreported item, got %d entries", len(report.Entries))
	}
	if report.Entries[0].ItemID != fresh.ID {
		t.Errorf("Expected fresh item, got item %d", report.Entries[0].ItemID)
	}
}

func TestSelector_IncrementalKeepsNewItemsPastThreshold(t *testing.T) {
	selector, store := newSelectorTest(t, models.ModeIncremental)

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// A first sighting deep on the board still surfaces; an established item
	// just as deep does not.
	deepNew := makeItem(t, store, "https://example.com/deep-new", 40, now)
	deepOld := makeItem(t, store, "https://example.com/deep-old", 35, now)

	report, err := selector.Build([]models.ScoredItem{
		{Item: deepOld, Score: 0.3},
		{Item: deepNew, Score: 0.2, IsNew: true},
	}, now)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if len(report.Entries) != 1 {
		t.Fatalf("Expected only the first sighting, got %d entries", len(report.Entries))
	}
	if report.Entries[0].ItemID != deepNew.ID {
		t.Errorf("Expected the new deep item, got item %d", report.Entries[0].ItemID)
	}
}

func TestSelector_IncrementalIsNotCapped(t *testing.T) {
	selector, store := newSelectorTest(t, models.ModeIncremental)

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// Five first sightings against TopK=3. A cut sighting would carry no
	// reported marker and, once no longer new, could never surface again.
	var scored []models.ScoredItem
	for i := 0; i < 5; i++ {
		item := makeItem(t, store, urlFor(i), i+1, now)
		scored = append(scored, models.ScoredItem{Item: item, Score: 0.9 - float64(i)*0.1, IsNew: true})
	}

	report, err := selector.Build(scored, now)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if len(report.Entries) != 5 {
		t.Fatalf("Expected all 5 first sightings emitted, got %d", len(report.Entries))
	}
	if report.NewCount != 5 {
		t.Errorf("Expected NewCount 5, got %d", report.NewCount)
	}
}

func TestSelector_IncrementalEmptyIsNormal(t *testing.T) {
	selector, store := newSelectorTest(t, models.ModeIncremental)

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	item := makeItem(t, store, "https://example.com/only", 1, now)
	if err := store.MarkReported([]int64{item.ID}, models.ModeIncremental, now.Add(-time.Hour)); err != nil {
		t.Fatalf("Failed to mark reported: %v", err)
	}

	report, err := selector.Build([]models.ScoredItem{{Item: item, Score: 0.9}}, now)
	if err != nil {
		t.Fatalf("Empty incremental selection should not be an error: %v", err)
	}
	if len(report.Entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(report.Entries))
	}
}

func TestSelector_DailyUnionsEarlierSelections(t *testing.T) {
	selector, store := newSelectorTest(t, models.ModeDaily)

	morning := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	noon := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// An item selected by an earlier cycle today but absent from this one
	earlier := makeItem(t, store, "https://example.com/earlier", 3, morning)
	if err := store.LogSelection("2025-06-01", []int64{earlier.ID}, models.ModeDaily, morning); err != nil {
		t.Fatalf("Failed to log earlier selection: %v", err)
	}

	// Yesterday's selection must not leak in
	yesterday := makeItem(t, store, "https://example.com/yesterday", 1, morning.Add(-24*time.Hour))
	if err := store.LogSelection("2025-05-31", []int64{yesterday.ID}, models.ModeDaily, morning.Add(-24*time.Hour)); err != nil {
		t.Fatalf("Failed to log yesterday selection: %v", err)
	}

	current := makeItem(t, store, "https://example.com/current", 1, noon)

	report, err := selector.Build([]models.ScoredItem{{Item: current, Score: 0.9, IsNew: true}}, noon)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if len(report.Entries) != 2 {
		t.Fatalf("Expected current + earlier selection, got %d entries", len(report.Entries))
	}
	if report.Entries[0].ItemID != current.ID {
		t.Errorf("Expected current cycle's item first, got item %d", report.Entries[0].ItemID)
	}
	if report.Entries[1].ItemID != earlier.ID {
		t.Errorf("Expected earlier selection appended, got item %d", report.Entries[1].ItemID)
	}
}

func TestSelector_DailyDeduplicatesCurrentItems(t *testing.T) {
	selector, store := newSelectorTest(t, models.ModeDaily)

	morning := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	noon := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	item := makeItem(t, store, "https://example.com/repeat", 2, morning)
	if err := store.LogSelection("2025-06-01", []int64{item.ID}, models.ModeDaily, morning); err != nil {
		t.Fatalf("Failed to log selection: %v", err)
	}

	report, err := selector.Build([]models.ScoredItem{{Item: item, Score: 0.8}}, noon)
	if err != nil {
		t.Fatalf("Failed to build report: %v", err)
	}

	if len(report.Entries) != 1 {
		t.Fatalf("Expected item to appear once, got %d entries", len(report.Entries))
	}
}

func urlFor(i int) string {
	return "https://example.com/item-" + string(rune('a'+i))
}
