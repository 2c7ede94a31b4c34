package storage

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"trendwatch/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage persists the six core entities plus report markers. SQLite
// supports a single writer, so all mutating operations are serialized
// through an internal mutex on top of the one-connection pool.
type SQLiteStorage struct {
	db    *sql.DB
	mutex sync.Mutex
}

func NewSQLiteStorage(dataDir string) (*SQLiteStorage, error) {
	// Ensure data directory exists with secure permissions (0750)
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "trendwatch.db")
	log.Printf("Initializing database at: %s", dbPath)

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=30000&_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS platforms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS news_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		platform_id TEXT NOT NULL,
		identity_key TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		rank INTEGER NOT NULL,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		occurrence_count INTEGER NOT NULL DEFAULT 1,
		UNIQUE(platform_id, identity_key)
	);

	CREATE TABLE IF NOT EXISTS title_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL,
		old_title TEXT NOT NULL,
		new_title TEXT NOT NULL,
		changed_at DATETIME NOT NULL,
		FOREIGN KEY (item_id) REFERENCES news_items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS rank_observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL,
		rank INTEGER NOT NULL,
		crawl_time DATETIME NOT NULL,
		FOREIGN KEY (item_id) REFERENCES news_items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS crawl_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		crawl_time DATETIME UNIQUE NOT NULL,
		total_items INTEGER NOT NULL DEFAULT 0,
		finalized INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS crawl_platform_status (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		crawl_id INTEGER NOT NULL,
		platform_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		FOREIGN KEY (crawl_id) REFERENCES crawl_records(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS push_records (
		date TEXT PRIMARY KEY,
		pushed INTEGER NOT NULL DEFAULT 0,
		push_time DATETIME,
		report_type TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS reported_items (
		item_id INTEGER PRIMARY KEY,
		report_mode TEXT NOT NULL,
		reported_at DATETIME NOT NULL,
		FOREIGN KEY (item_id) REFERENCES news_items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS report_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_date TEXT NOT NULL,
		item_id INTEGER NOT NULL,
		report_mode TEXT NOT NULL,
		crawl_time DATETIME NOT NULL,
		UNIQUE(report_date, item_id, report_mode),
		FOREIGN KEY (item_id) REFERENCES news_items(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_news_items_platform ON news_items(platform_id);
	CREATE INDEX IF NOT EXISTS idx_news_items_last_seen ON news_items(last_seen);
	CREATE INDEX IF NOT EXISTS idx_rank_obs_item_time ON rank_observations(item_id, crawl_time);
	CREATE INDEX IF NOT EXISTS idx_title_changes_item ON title_changes(item_id);
	CREATE INDEX IF NOT EXISTS idx_report_log_date ON report_log(report_date);
	CREATE INDEX IF NOT EXISTS idx_crawl_status_crawl ON crawl_platform_status(crawl_id);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %v", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// OpenCrawlSession creates the per-cycle record. A crawl_time collision means
// the scheduler fired twice for the same tick; no state is mutated and
// ErrDuplicateCrawl is returned.
func (s *SQLiteStorage) OpenCrawlSession(crawlTime time.Time) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.Exec("INSERT INTO crawl_records (crawl_time) VALUES (?)", crawlTime)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("crawl_time %s: %w", crawlTime.Format(time.RFC3339), ErrDuplicateCrawl)
		}
		return 0, fmt.Errorf("failed to open crawl session: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get crawl session id: %v", err)
	}

	return id, nil
}

// RecordPlatformStatus appends one per-source outcome to an open session.
func (s *SQLiteStorage) RecordPlatformStatus(sessionID int64, platformID string, success bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO crawl_platform_status (crawl_id, platform_id, success) VALUES (?, ?, ?)",
		sessionID, platformID, success,
	)
	if err != nil {
		return fmt.Errorf("failed to record platform status: %v", err)
	}
	return nil
}

// FinalizeCrawlSession closes the record with the total item count.
func (s *SQLiteStorage) FinalizeCrawlSession(sessionID int64, totalItems int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.Exec(
		"UPDATE crawl_records SET total_items = ?, finalized = 1 WHERE id = ?",
		totalItems, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize crawl session: %v", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rows == 0 {
		return fmt.Errorf("crawl session %d: %w", sessionID, ErrNotFound)
	}

	return nil
}

func (s *SQLiteStorage) GetCrawlRecord(crawlTime time.Time) (*models.CrawlRecord, error) {
	var record models.CrawlRecord
	err := s.db.QueryRow(
		"SELECT id, crawl_time, total_items, finalized FROM crawl_records WHERE crawl_time = ?",
		crawlTime,
	).Scan(&record.ID, &record.CrawlTime, &record.TotalItems, &record.Finalized)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("crawl record at %s: %w", crawlTime.Format(time.RFC3339), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query crawl record: %v", err)
	}

	rows, err := s.db.Query(
		"SELECT platform_id, success FROM crawl_platform_status WHERE crawl_id = ? ORDER BY id",
		record.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query platform statuses: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.PlatformStatus
		if err := rows.Scan(&status.PlatformID, &status.Success); err != nil {
			return nil, fmt.Errorf("failed to scan platform status: %v", err)
		}
		record.Statuses = append(record.Statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during status iteration: %v", err)
	}

	return &record, nil
}

// UpsertPlatform creates or renames a platform and reactivates it.
// Platforms are never deleted, only deactivated.
func (s *SQLiteStorage) UpsertPlatform(p models.Platform) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO platforms (id, name, active) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = excluded.active
	`, p.ID, p.Name, p.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert platform %s: %v", p.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) DeactivatePlatform(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.Exec("UPDATE platforms SET active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to deactivate platform %s: %v", id, err)
	}
	return nil
}

func (s *SQLiteStorage) ListPlatforms() ([]models.Platform, error) {
	rows, err := s.db.Query("SELECT id, name, active FROM platforms ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query platforms: %v", err)
	}
	defer rows.Close()

	var platforms []models.Platform
	for rows.Next() {
		var p models.Platform
		if err := rows.Scan(&p.ID, &p.Name, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan platform: %v", err)
		}
		platforms = append(platforms, p)
	}
	return platforms, rows.Err()
}

// UpsertItem resolves one observation to a stable identity and appends its
// history, all within a single transaction so occurrence_count and history
// stay consistent under concurrent source fetches:
//   - first sighting creates the item with occurrence_count 1
//   - later sightings bump occurrence_count/last_seen and overwrite the
//     current rank and title (a TitleChange row is appended when the title
//     differs; headlines get edited after publication and only the current
//     text is ever surfaced)
//   - a RankObservation row is appended unconditionally, even when the rank
//     is unchanged, to keep the time series gap-free
func (s *SQLiteStorage) UpsertItem(obs models.Observation) (*models.NewsItem, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := obs.IdentityKey()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %v", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				log.Printf("Warning: failed to rollback upsert transaction: %v", err)
			}
		}
	}()

	var item models.NewsItem
	isNew := false

	err = tx.QueryRow(`
		SELECT id, platform_id, identity_key, title, url, rank, first_seen, last_seen, occurrence_count
		FROM news_items WHERE platform_id = ? AND identity_key = ?
	`, obs.PlatformID, key).Scan(
		&item.ID, &item.PlatformID, &item.IdentityKey, &item.Title, &item.URL,
		&item.Rank, &item.FirstSeen, &item.LastSeen, &item.OccurrenceCount,
	)

	switch {
	case err == sql.ErrNoRows:
		result, err := tx.Exec(`
			INSERT INTO news_items (platform_id, identity_key, title, url, rank, first_seen, last_seen, occurrence_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		`, obs.PlatformID, key, obs.Title, obs.URL, obs.Rank, obs.CrawlTime, obs.CrawlTime)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, false, fmt.Errorf("item (%s, %s): %w", obs.PlatformID, key, ErrIdentityConflict)
			}
			return nil, false, fmt.Errorf("failed to insert item: %v", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return nil, false, fmt.Errorf("failed to get item id: %v", err)
		}

		item = models.NewsItem{
			ID:              id,
			PlatformID:      obs.PlatformID,
			IdentityKey:     key,
			Title:           obs.Title,
			URL:             obs.URL,
			Rank:            obs.Rank,
			FirstSeen:       obs.CrawlTime,
			LastSeen:        obs.CrawlTime,
			OccurrenceCount: 1,
		}
		isNew = true

	case err != nil:
		return nil, false, fmt.Errorf("failed to query item: %v", err)

	default:
		if obs.Title != item.Title {
			_, err := tx.Exec(`
				INSERT INTO title_changes (item_id, old_title, new_title, changed_at)
				VALUES (?, ?, ?, ?)
			`, item.ID, item.Title, obs.Title, obs.CrawlTime)
			if err != nil {
				return nil, false, fmt.Errorf("failed to append title change: %v", err)
			}
		}

		_, err := tx.Exec(`
			UPDATE news_items
			SET title = ?, rank = ?, last_seen = ?, occurrence_count = occurrence_count + 1
			WHERE id = ?
		`, obs.Title, obs.Rank, obs.CrawlTime, item.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to update item: %v", err)
		}

		item.Title = obs.Title
		item.Rank = obs.Rank
		item.LastSeen = obs.CrawlTime
		item.OccurrenceCount++
	}

	if _, err := tx.Exec(`
		INSERT INTO rank_observations (item_id, rank, crawl_time) VALUES (?, ?, ?)
	`, item.ID, obs.Rank, obs.CrawlTime); err != nil {
		return nil, false, fmt.Errorf("failed to append rank observation: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit upsert: %v", err)
	}
	committed = true

	return &item, isNew, nil
}

func (s *SQLiteStorage) GetItem(platformID, identityKey string) (*models.NewsItem, error) {
	var item models.NewsItem
	err := s.db.QueryRow(`
		SELECT id, platform_id, identity_key, title, url, rank, first_seen, last_seen, occurrence_count
		FROM news_items WHERE platform_id = ? AND identity_key = ?
	`, platformID, identityKey).Scan(
		&item.ID, &item.PlatformID, &item.IdentityKey, &item.Title, &item.URL,
		&item.Rank, &item.FirstSeen, &item.LastSeen, &item.OccurrenceCount,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item (%s, %s): %w", platformID, identityKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %v", err)
	}
	return &item, nil
}

func (s *SQLiteStorage) TitleChanges(itemID int64) ([]models.TitleChange, error) {
	rows, err := s.db.Query(`
		SELECT id, item_id, old_title, new_title, changed_at
		FROM title_changes WHERE item_id = ? ORDER BY changed_at, id
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query title changes: %v", err)
	}
	defer rows.Close()

	var changes []models.TitleChange
	for rows.Next() {
		var c models.TitleChange
		if err := rows.Scan(&c.ID, &c.ItemID, &c.OldTitle, &c.NewTitle, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan title change: %v", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (s *SQLiteStorage) RankObservations(itemID int64) ([]models.RankObservation, error) {
	rows, err := s.db.Query(`
		SELECT id, item_id, rank, crawl_time
		FROM rank_observations WHERE item_id = ? ORDER BY crawl_time, id
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rank observations: %v", err)
	}
	defer rows.Close()

	var observations []models.RankObservation
	for rows.Next() {
		var o models.RankObservation
		if err := rows.Scan(&o.ID, &o.ItemID, &o.Rank, &o.CrawlTime); err != nil {
			return nil, fmt.Errorf("failed to scan rank observation: %v", err)
		}
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

// ObservationCounts returns, for each given item, the number of distinct
// crawl times observed since the given cutoff. Items with no observations in
// the window are absent from the map.
func (s *SQLiteStorage) ObservationCounts(itemIDs []int64, since time.Time) (map[int64]int, error) {
	counts := make(map[int64]int)
	if len(itemIDs) == 0 {
		return counts, nil
	}

	placeholders := make([]string, len(itemIDs))
	args := make([]interface{}, 0, len(itemIDs)+1)
	for i, id := range itemIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, since)

	query := fmt.Sprintf(`
		SELECT item_id, COUNT(DISTINCT crawl_time)
		FROM rank_observations
		WHERE item_id IN (%s) AND crawl_time >= ?
		GROUP BY item_id
	`, strings.Join(placeholders, ","))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observation counts: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("failed to scan observation count: %v", err)
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// ReportedItemIDs returns which of the given items already carry a
// last-reported marker.
func (s *SQLiteStorage) ReportedItemIDs(itemIDs []int64) (map[int64]bool, error) {
	reported := make(map[int64]bool)
	if len(itemIDs) == 0 {
		return reported, nil
	}

	placeholders := make([]string, len(itemIDs))
	args := make([]interface{}, len(itemIDs))
	for i, id := range itemIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		"SELECT item_id FROM reported_items WHERE item_id IN (%s)",
		strings.Join(placeholders, ","),
	)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reported items: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reported item: %v", err)
		}
		reported[id] = true
	}
	return reported, rows.Err()
}

// MarkReported writes the last-reported marker for each item. Called only
// after a successful handoff downstream, so a failed handoff leaves the
// items eligible for the next cycle.
func (s *SQLiteStorage) MarkReported(itemIDs []int64, mode models.ReportMode, at time.Time) error {
	if len(itemIDs) == 0 {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				log.Printf("Warning: failed to rollback marker transaction: %v", err)
			}
		}
	}()

	stmt, err := tx.Prepare(`
		INSERT INTO reported_items (item_id, report_mode, reported_at) VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET report_mode = excluded.report_mode, reported_at = excluded.reported_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare marker statement: %v", err)
	}
	defer stmt.Close()

	for _, id := range itemIDs {
		if _, err := stmt.Exec(id, string(mode), at); err != nil {
			return fmt.Errorf("failed to mark item %d reported: %v", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit markers: %v", err)
	}
	committed = true

	return nil
}

// LogSelection appends this cycle's selected identities to the per-date
// selection log that feeds daily-mode unions. Duplicate selections within a
// date are ignored.
func (s *SQLiteStorage) LogSelection(date string, itemIDs []int64, mode models.ReportMode, crawlTime time.Time) error {
	if len(itemIDs) == 0 {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				log.Printf("Warning: failed to rollback selection log transaction: %v", err)
			}
		}
	}()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO report_log (report_date, item_id, report_mode, crawl_time)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare selection log statement: %v", err)
	}
	defer stmt.Close()

	for _, id := range itemIDs {
		if _, err := stmt.Exec(date, id, string(mode), crawlTime); err != nil {
			return fmt.Errorf("failed to log selection for item %d: %v", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit selection log: %v", err)
	}
	committed = true

	return nil
}

// ItemsSelectedOn returns the distinct items logged as selected on a date,
// with their current attributes.
func (s *SQLiteStorage) ItemsSelectedOn(date string) ([]models.NewsItem, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT i.id, i.platform_id, i.identity_key, i.title, i.url, i.rank,
			i.first_seen, i.last_seen, i.occurrence_count
		FROM news_items i
		JOIN report_log r ON r.item_id = i.id
		WHERE r.report_date = ?
		ORDER BY i.id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query selected items: %v", err)
	}
	defer rows.Close()

	var items []models.NewsItem
	for rows.Next() {
		var item models.NewsItem
		if err := rows.Scan(
			&item.ID, &item.PlatformID, &item.IdentityKey, &item.Title, &item.URL,
			&item.Rank, &item.FirstSeen, &item.LastSeen, &item.OccurrenceCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan selected item: %v", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetPushRecord returns today's push record, or nil when no dispatch has
// been attempted yet for that date.
func (s *SQLiteStorage) GetPushRecord(date string) (*models.PushRecord, error) {
	var record models.PushRecord
	var pushTime sql.NullTime
	err := s.db.QueryRow(
		"SELECT date, pushed, push_time, report_type FROM push_records WHERE date = ?",
		date,
	).Scan(&record.Date, &record.Pushed, &pushTime, &record.ReportType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query push record: %v", err)
	}
	if pushTime.Valid {
		record.PushTime = pushTime.Time
	}
	return &record, nil
}

// MarkPushed records that a dispatch succeeded for the given date. The date
// row is the serialization point between cycles racing on the same day.
func (s *SQLiteStorage) MarkPushed(date string, pushTime time.Time, reportType string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO push_records (date, pushed, push_time, report_type) VALUES (?, 1, ?, ?)
		ON CONFLICT(date) DO UPDATE SET pushed = 1, push_time = excluded.push_time, report_type = excluded.report_type
	`, date, pushTime, reportType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPushMarkWrite, err)
	}
	return nil
}

// CleanupOldItems removes items (and their cascaded history) not seen within
// the retention period, plus crawl and push records older than the cutoff.
func (s *SQLiteStorage) CleanupOldItems(retention time.Duration) error {
	if retention <= 0 {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Crawl times are stored in UTC; keep the cutoff in the same zone so
	// string-ordered DATETIME comparisons stay correct.
	cutoff := time.Now().UTC().Add(-retention)

	result, err := s.db.Exec("DELETE FROM news_items WHERE last_seen < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete old items: %v", err)
	}

	itemsDeleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}

	if _, err := s.db.Exec("DELETE FROM crawl_records WHERE crawl_time < ?", cutoff); err != nil {
		return fmt.Errorf("failed to delete old crawl records: %v", err)
	}

	cutoffDate := cutoff.Format("2006-01-02")
	if _, err := s.db.Exec("DELETE FROM push_records WHERE date < ?", cutoffDate); err != nil {
		return fmt.Errorf("failed to delete old push records: %v", err)
	}
	if _, err := s.db.Exec("DELETE FROM report_log WHERE report_date < ?", cutoffDate); err != nil {
		return fmt.Errorf("failed to delete old report log entries: %v", err)
	}

	if itemsDeleted > 0 {
		log.Printf("Cleaned up %d items not seen in %v", itemsDeleted, retention)
	}

	return nil
}

// OptimizeDatabase performs database maintenance operations
func (s *SQLiteStorage) OptimizeDatabase() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %v", err)
	}

	if _, err := s.db.Exec("ANALYZE"); err != nil {
		return fmt.Errorf("failed to analyze database: %v", err)
	}

	log.Printf("Database optimization completed")
	return nil
}

// GetDatabaseStats returns row counts per entity and the database file size.
func (s *SQLiteStorage) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	tables := map[string]string{
		"platforms":         "total_platforms",
		"news_items":        "total_items",
		"title_changes":     "total_title_changes",
		"rank_observations": "total_rank_observations",
		"crawl_records":     "total_crawls",
		"push_records":      "total_push_records",
	}

	for table, key := range tables {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %v", table, err)
		}
		stats[key] = count
	}

	var dbSize int64
	err := s.db.QueryRow("SELECT page_count * page_size as size FROM pragma_page_count(), pragma_page_size()").Scan(&dbSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get database size: %v", err)
	}
	stats["database_size_bytes"] = dbSize

	return stats, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
