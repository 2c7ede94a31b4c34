package models

import (
	"time"
)

// ReportMode controls which items are surfaced in a cycle's report.
type ReportMode string

const (
	ModeIncremental ReportMode = "incremental"
	ModeCurrent     ReportMode = "current"
	ModeDaily       ReportMode = "daily"
)

// Valid reports whether the mode is one of the three supported modes.
func (m ReportMode) Valid() bool {
	switch m {
	case ModeIncremental, ModeCurrent, ModeDaily:
		return true
	}
	return false
}

// Observation is one raw sighting of a news item on a platform board,
// as produced by a fetch collaborator.
type Observation struct {
	PlatformID string    `json:"platform_id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	MobileURL  string    `json:"mobile_url,omitempty"`
	Rank       int       `json:"rank"`
	CrawlTime  time.Time `json:"crawl_time"`
}

// IdentityKey returns the key used to recognize the same item across cycles:
// the URL when present, otherwise the bare title. Bare-title fallback can
// collide across unrelated stories with identical headlines and no URL; that
// is a known data quality gap of the upstream boards.
func (o Observation) IdentityKey() string {
	if o.URL != "" {
		return o.URL
	}
	return o.Title
}

// Platform is a monitored news source. Platforms are never deleted, only
// deactivated.
type Platform struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// NewsItem is the stable identity of a story across repeated sightings.
type NewsItem struct {
	ID              int64     `json:"id"`
	PlatformID      string    `json:"platform_id"`
	IdentityKey     string    `json:"identity_key"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	Rank            int       `json:"rank"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	OccurrenceCount int       `json:"occurrence_count"`
}

// TitleChange records an edit to a story's headline after publication.
// Rows are append-only; only the current title is surfaced elsewhere.
type TitleChange struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	OldTitle  string    `json:"old_title"`
	NewTitle  string    `json:"new_title"`
	ChangedAt time.Time `json:"changed_at"`
}

// RankObservation is one point in an item's immutable rank time series.
// A row is appended on every sighting, even when the rank is unchanged.
type RankObservation struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	Rank      int       `json:"rank"`
	CrawlTime time.Time `json:"crawl_time"`
}

// PlatformStatus is the per-source outcome of one crawl cycle.
type PlatformStatus struct {
	PlatformID string `json:"platform_id"`
	Success    bool   `json:"success"`
}

// CrawlRecord is the per-cycle bookkeeping row. CrawlTime is globally unique
// and serves as the re-entrancy guard against a scheduler double-firing.
type CrawlRecord struct {
	ID         int64            `json:"id"`
	CrawlTime  time.Time        `json:"crawl_time"`
	TotalItems int              `json:"total_items"`
	Finalized  bool             `json:"finalized"`
	Statuses   []PlatformStatus `json:"statuses,omitempty"`
}

// PushRecord tracks notification dispatch per calendar date. At most one row
// exists per date.
type PushRecord struct {
	Date       string    `json:"date"` // YYYY-MM-DD
	Pushed     bool      `json:"pushed"`
	PushTime   time.Time `json:"push_time"`
	ReportType string    `json:"report_type"`
}

// ScoredItem is a news item annotated with its composite score and whether
// this cycle was its first sighting.
type ScoredItem struct {
	Item  NewsItem `json:"item"`
	Score float64  `json:"score"`
	IsNew bool     `json:"is_new"`
}

// ReportEntry is one line of a cycle's report, handed to rendering and
// notification collaborators.
type ReportEntry struct {
	ItemID      int64   `json:"item_id"`
	PlatformID  string  `json:"platform_id"`
	IdentityKey string  `json:"identity_key"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Rank        int     `json:"rank"`
	IsNew       bool    `json:"is_new"`
	Score       float64 `json:"score"`
}

// Decision is the push gate's verdict for a cycle.
type Decision string

const (
	DecisionPush     Decision = "push"
	DecisionSuppress Decision = "suppress"
)

// Report is the ordered output of one crawl cycle.
type Report struct {
	Mode        ReportMode    `json:"mode"`
	CrawlTime   time.Time     `json:"crawl_time"`
	Entries     []ReportEntry `json:"entries"`
	NewCount    int           `json:"new_count"`
	TotalItems  int           `json:"total_items"`
	Decision    Decision      `json:"decision"`
	Suppression string        `json:"suppression_reason,omitempty"`
}

// CycleResult summarizes one executed crawl cycle for callers and the API.
type CycleResult struct {
	CrawlTime    time.Time `json:"crawl_time"`
	Report       *Report   `json:"report"`
	ItemUpserts  int       `json:"item_upserts"`
	ItemsSkipped int       `json:"items_skipped"`
	Delivered    bool      `json:"delivered"`
}
