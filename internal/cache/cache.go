package cache

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"trendwatch/internal/models"
)

const (
	keyLatestReport = "report:latest"
	keyLeaderboard  = "leaderboard"
	keyStats        = "stats"
)

// Manager caches the latest report and other derived read-path values so API
// requests never touch SQLite between crawl cycles.
type Manager struct {
	cache *cache.Cache
	mu    sync.RWMutex
}

func NewManager(defaultTTL time.Duration) *Manager {
	return &Manager{
		cache: cache.New(defaultTTL, 10*time.Minute),
	}
}

func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.Get(key)
}

func (m *Manager) Set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Set(key, value, ttl)
}

func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Delete(key)
}

func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Flush()
}

// SetLatestReport stores the most recent cycle's report without expiry; it
// is replaced in place by the next cycle.
func (m *Manager) SetLatestReport(report *models.Report) {
	m.Set(keyLatestReport, report, cache.NoExpiration)
}

func (m *Manager) GetLatestReport() (*models.Report, bool) {
	v, ok := m.Get(keyLatestReport)
	if !ok {
		return nil, false
	}
	report, ok := v.(*models.Report)
	return report, ok
}

// SetLeaderboard caches the scored item list for the leaderboard endpoint
// with the default TTL.
func (m *Manager) SetLeaderboard(items []models.ScoredItem) {
	m.Set(keyLeaderboard, items, cache.DefaultExpiration)
}

func (m *Manager) GetLeaderboard() ([]models.ScoredItem, bool) {
	v, ok := m.Get(keyLeaderboard)
	if !ok {
		return nil, false
	}
	items, ok := v.([]models.ScoredItem)
	return items, ok
}

// SetStats caches database statistics for the stats endpoint.
func (m *Manager) SetStats(stats map[string]interface{}, ttl time.Duration) {
	m.Set(keyStats, stats, ttl)
}

func (m *Manager) GetStats() (map[string]interface{}, bool) {
	v, ok := m.Get(keyStats)
	if !ok {
		return nil, false
	}
	stats, ok := v.(map[string]interface{})
	return stats, ok
}
