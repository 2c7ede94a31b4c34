package report

import (
	"fmt"
	"sort"
	"time"

	"trendwatch/internal/config"
	"trendwatch/internal/models"
	"trendwatch/internal/storage"
)

// Selector turns a cycle's scored items into a report according to the
// configured mode:
//
//   - current: the full leaderboard's top-K by score, plus any
//     first-sighting items the cut would have dropped
//   - incremental: first sightings and newly notable items (within the
//     rank threshold) never reported before, uncapped
//   - daily: the current selection plus every item selected earlier the
//     same calendar day, so late readers see the whole day at once
//
// The selector only reads; selection logging and report markers are written
// by the caller after it knows the report was actually delivered.
type Selector struct {
	mode          models.ReportMode
	topK          int
	rankThreshold int
	store         storage.Storage
}

func NewSelector(cfg *config.Config, store storage.Storage) *Selector {
	return &Selector{
		mode:          cfg.ReportMode,
		topK:          cfg.TopK,
		rankThreshold: cfg.RankThreshold,
		store:         store,
	}
}

// Mode returns the selection mode in effect.
func (s *Selector) Mode() models.ReportMode {
	return s.mode
}

// Build assembles the report for one cycle from items already scored and
// ordered by the ranking engine.
func (s *Selector) Build(scored []models.ScoredItem, crawlTime time.Time) (*models.Report, error) {
	var selected []models.ScoredItem
	var err error

	switch s.mode {
	case models.ModeIncremental:
		selected, err = s.selectIncremental(scored)
	case models.ModeDaily, models.ModeCurrent:
		selected = s.selectCurrent(scored)
	default:
		return nil, fmt.Errorf("unknown report mode %q", s.mode)
	}
	if err != nil {
		return nil, err
	}

	report := &models.Report{
		Mode:       s.mode,
		CrawlTime:  crawlTime,
		TotalItems: len(scored),
	}

	for _, si := range selected {
		report.Entries = append(report.Entries, entryFromScored(si))
		if si.IsNew {
			report.NewCount++
		}
	}

	if s.mode == models.ModeDaily {
		if err := s.appendEarlierSelections(report, crawlTime); err != nil {
			return nil, err
		}
	}

	return report, nil
}

func (s *Selector) takeTopK(scored []models.ScoredItem) []models.ScoredItem {
	if s.topK > 0 && len(scored) > s.topK {
		return scored[:s.topK]
	}
	return scored
}

// selectCurrent takes the top-K by score and appends any first-sighting
// items the cut dropped, so a new story never goes unseen just because
// established stories outscore it.
func (s *Selector) selectCurrent(scored []models.ScoredItem) []models.ScoredItem {
	top := s.takeTopK(scored)
	if len(top) == len(scored) {
		return top
	}
	selected := append([]models.ScoredItem(nil), top...)
	for _, si := range scored[len(top):] {
		if si.IsNew {
			selected = append(selected, si)
		}
	}
	return selected
}

// selectIncremental surfaces first sightings and items notable for the first
// time: candidates are items new this cycle or within the rank threshold, and
// anything already carrying a reported marker is subtracted. The result is
// never capped: an unreported first sighting cut here would get no marker
// and could go unemitted forever. An empty result is normal and means this
// cycle surfaced nothing new.
func (s *Selector) selectIncremental(scored []models.ScoredItem) ([]models.ScoredItem, error) {
	var candidates []models.ScoredItem
	for _, si := range scored {
		if si.IsNew || s.rankThreshold <= 0 || si.Item.Rank <= s.rankThreshold {
			candidates = append(candidates, si)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(candidates))
	for i, si := range candidates {
		ids[i] = si.Item.ID
	}

	reported, err := s.store.ReportedItemIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load reported markers: %v", err)
	}

	var unreported []models.ScoredItem
	for _, si := range candidates {
		if !reported[si.Item.ID] {
			unreported = append(unreported, si)
		}
	}
	return unreported, nil
}

// appendEarlierSelections widens a daily report with the items selected by
// earlier cycles on the same date, most recently seen first, skipping any
// already present from the current cycle.
func (s *Selector) appendEarlierSelections(report *models.Report, crawlTime time.Time) error {
	earlier, err := s.store.ItemsSelectedOn(crawlTime.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("failed to load earlier selections: %v", err)
	}

	present := make(map[int64]bool, len(report.Entries))
	for _, e := range report.Entries {
		present[e.ItemID] = true
	}

	sort.SliceStable(earlier, func(i, j int) bool {
		return earlier[i].LastSeen.After(earlier[j].LastSeen)
	})

	for _, item := range earlier {
		if present[item.ID] {
			continue
		}
		report.Entries = append(report.Entries, models.ReportEntry{
			ItemID:      item.ID,
			PlatformID:  item.PlatformID,
			IdentityKey: item.IdentityKey,
			Title:       item.Title,
			URL:         item.URL,
			Rank:        item.Rank,
		})
	}
	return nil
}

func entryFromScored(si models.ScoredItem) models.ReportEntry {
	return models.ReportEntry{
		ItemID:      si.Item.ID,
		PlatformID:  si.Item.PlatformID,
		IdentityKey: si.Item.IdentityKey,
		Title:       si.Item.Title,
		URL:         si.Item.URL,
		Rank:        si.Item.Rank,
		IsNew:       si.IsNew,
		Score:       si.Score,
	}
}
