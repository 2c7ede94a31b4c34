package storage

import (
	"time"

	"trendwatch/internal/models"
)

// Storage defines the durable contract for crawl sessions, item identity,
// rank/title history, report markers and push records.
type Storage interface {
	// Crawl sessions
	OpenCrawlSession(crawlTime time.Time) (int64, error)
	RecordPlatformStatus(sessionID int64, platformID string, success bool) error
	FinalizeCrawlSession(sessionID int64, totalItems int) error
	GetCrawlRecord(crawlTime time.Time) (*models.CrawlRecord, error)

	// Platforms
	UpsertPlatform(p models.Platform) error
	DeactivatePlatform(id string) error
	ListPlatforms() ([]models.Platform, error)

	// Item identity and history
	UpsertItem(obs models.Observation) (*models.NewsItem, bool, error)
	GetItem(platformID, identityKey string) (*models.NewsItem, error)
	TitleChanges(itemID int64) ([]models.TitleChange, error)
	RankObservations(itemID int64) ([]models.RankObservation, error)
	ObservationCounts(itemIDs []int64, since time.Time) (map[int64]int, error)

	// Report markers and selection log
	ReportedItemIDs(itemIDs []int64) (map[int64]bool, error)
	MarkReported(itemIDs []int64, mode models.ReportMode, at time.Time) error
	LogSelection(date string, itemIDs []int64, mode models.ReportMode, crawlTime time.Time) error
	ItemsSelectedOn(date string) ([]models.NewsItem, error)

	// Push records
	GetPushRecord(date string) (*models.PushRecord, error)
	MarkPushed(date string, pushTime time.Time, reportType string) error

	// Maintenance
	CleanupOldItems(retention time.Duration) error
	OptimizeDatabase() error
	GetDatabaseStats() (map[string]interface{}, error)
	Close() error
}
