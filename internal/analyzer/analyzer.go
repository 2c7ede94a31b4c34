package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trendwatch/internal/cache"
	"trendwatch/internal/config"
	"trendwatch/internal/fetcher"
	"trendwatch/internal/models"
	"trendwatch/internal/notifier"
	"trendwatch/internal/pushgate"
	"trendwatch/internal/ranking"
	"trendwatch/internal/report"
	"trendwatch/internal/storage"
)

// Analyzer runs one full crawl cycle: fetch all boards, resolve observations
// to stable identities, score and select, gate, and dispatch. Cycles are
// serialized by the caller; the crawl session row guards against a scheduler
// double-firing on the same tick.
type Analyzer struct {
	cfg          *config.Config
	store        storage.Storage
	fetcher      *fetcher.Fetcher
	engine       *ranking.Engine
	selector     *report.Selector
	gate         *pushgate.Gate
	deliverer    notifier.Deliverer
	cacheManager *cache.Manager
}

func New(
	cfg *config.Config,
	store storage.Storage,
	f *fetcher.Fetcher,
	engine *ranking.Engine,
	selector *report.Selector,
	gate *pushgate.Gate,
	deliverer notifier.Deliverer,
	cacheManager *cache.Manager,
) *Analyzer {
	return &Analyzer{
		cfg:          cfg,
		store:        store,
		fetcher:      f,
		engine:       engine,
		selector:     selector,
		gate:         gate,
		deliverer:    deliverer,
		cacheManager: cacheManager,
	}
}

// RunCycle executes one crawl cycle at the given crawl time. A duplicate
// crawl time aborts the whole cycle before any fetch happens.
func (a *Analyzer) RunCycle(ctx context.Context, crawlTime time.Time) (*models.CycleResult, error) {
	sessionID, err := a.store.OpenCrawlSession(crawlTime)
	if err != nil {
		return nil, fmt.Errorf("failed to open crawl session: %w", err)
	}

	log.Printf("Crawl cycle started at %s (session %d)", crawlTime.Format(time.RFC3339), sessionID)

	a.syncPlatforms()

	platforms := a.cfg.ActivePlatforms()
	results := a.fetcher.FetchAll(ctx, platforms, crawlTime)

	var observations []models.Observation
	for _, r := range results {
		if err := a.store.RecordPlatformStatus(sessionID, r.PlatformID, r.Error == nil); err != nil {
			log.Printf("Warning: failed to record status for %s: %v", r.PlatformID, err)
		}
		observations = append(observations, r.Observations...)
	}

	scored, skipped := a.upsertObservations(observations)

	if err := a.store.FinalizeCrawlSession(sessionID, len(scored)); err != nil {
		log.Printf("Warning: failed to finalize crawl session %d: %v", sessionID, err)
	}

	ranked, err := a.engine.Rank(scored, crawlTime)
	if err != nil {
		return nil, fmt.Errorf("failed to rank items: %v", err)
	}

	rpt, err := a.selector.Build(ranked, crawlTime)
	if err != nil {
		return nil, fmt.Errorf("failed to build report: %v", err)
	}

	date := crawlTime.Format("2006-01-02")
	if ids := entryIDs(rpt); len(ids) > 0 {
		if err := a.store.LogSelection(date, ids, rpt.Mode, crawlTime); err != nil {
			log.Printf("Warning: failed to log selection: %v", err)
		}
	}

	delivered, err := a.dispatch(ctx, rpt, crawlTime, date)
	if err != nil {
		return nil, err
	}

	a.cacheManager.SetLatestReport(rpt)
	a.cacheManager.SetLeaderboard(ranked)

	log.Printf("Crawl cycle finished: %d items, %d skipped, %d report entries, delivered=%v",
		len(scored), skipped, len(rpt.Entries), delivered)

	return &models.CycleResult{
		CrawlTime:    crawlTime,
		Report:       rpt,
		ItemUpserts:  len(scored),
		ItemsSkipped: skipped,
		Delivered:    delivered,
	}, nil
}

// syncPlatforms mirrors the configured platform list into storage so the
// API can list sources even before their first successful fetch.
func (a *Analyzer) syncPlatforms() {
	for _, p := range a.cfg.Platforms {
		err := a.store.UpsertPlatform(models.Platform{
			ID:     p.ID,
			Name:   p.Name,
			Active: p.IsActive(),
		})
		if err != nil {
			log.Printf("Warning: failed to sync platform %s: %v", p.ID, err)
		}
	}
}

// upsertObservations resolves each observation against the identity store.
// An identity conflict is treated as a transient race: retried once, then
// the observation is skipped and the batch continues.
func (a *Analyzer) upsertObservations(observations []models.Observation) ([]models.ScoredItem, int) {
	var scored []models.ScoredItem
	skipped := 0

	for _, obs := range observations {
		item, isNew, err := a.store.UpsertItem(obs)
		if errors.Is(err, storage.ErrIdentityConflict) {
			item, isNew, err = a.store.UpsertItem(obs)
		}
		if err != nil {
			log.Printf("Skipping observation (%s, %q): %v", obs.PlatformID, obs.Title, err)
			skipped++
			continue
		}
		scored = append(scored, models.ScoredItem{Item: *item, IsNew: isNew})
	}

	return scored, skipped
}

// dispatch runs the push gate and, when it opens, delivers the report and
// persists the dispatch record and report markers. Markers are only written
// after the deliverer confirmed the handoff, so a failed delivery leaves
// every item eligible for the next cycle.
func (a *Analyzer) dispatch(ctx context.Context, rpt *models.Report, crawlTime time.Time, date string) (bool, error) {
	decision, err := a.gate.Decide(rpt, crawlTime)
	if err != nil {
		return false, fmt.Errorf("push gate failed: %v", err)
	}

	if decision != models.DecisionPush {
		log.Printf("Report suppressed: %s", rpt.Suppression)
		return false, nil
	}

	if err := a.deliverer.Deliver(ctx, rpt); err != nil {
		log.Printf("Delivery failed, markers not written: %v", err)
		return false, nil
	}

	// The notification is out; from here on nothing may trigger a second
	// dispatch for this cycle, whatever fails below.
	if err := a.gate.RecordDispatch(date, crawlTime, string(rpt.Mode)); err != nil {
		log.Printf("Warning: %v", err)
	}

	if err := a.store.MarkReported(entryIDs(rpt), rpt.Mode, crawlTime); err != nil {
		log.Printf("Warning: failed to write report markers: %v", err)
	}

	return true, nil
}

// Cleanup prunes history past the retention period and compacts the
// database. Run daily by the scheduler.
func (a *Analyzer) Cleanup() error {
	retention := a.cfg.Retention()
	if retention <= 0 {
		return nil
	}
	if err := a.store.CleanupOldItems(retention); err != nil {
		return fmt.Errorf("retention sweep failed: %v", err)
	}
	if err := a.store.OptimizeDatabase(); err != nil {
		return fmt.Errorf("database optimization failed: %v", err)
	}
	return nil
}

func entryIDs(rpt *models.Report) []int64 {
	ids := make([]int64, 0, len(rpt.Entries))
	for _, e := range rpt.Entries {
		ids = append(ids, e.ItemID)
	}
	return ids
}
