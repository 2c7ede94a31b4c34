package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"trendwatch/internal/models"
)

// PlatformConfig describes one monitored source board.
type PlatformConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Kind   string `yaml:"kind"` // "hotboard" (JSON API) or "rss"
	Active *bool  `yaml:"active,omitempty"`
}

// IsActive treats a missing active flag as active.
func (p PlatformConfig) IsActive() bool {
	return p.Active == nil || *p.Active
}

// RankBucket maps a rank ceiling to a score. Buckets must be sorted by
// ascending MaxRank; ranks past the last bucket fall back to 1/rank scaling.
type RankBucket struct {
	MaxRank int     `yaml:"max_rank"`
	Score   float64 `yaml:"score"`
}

// RankingConfig holds the composite score parameters.
type RankingConfig struct {
	RankWeight           float64      `yaml:"rank_weight"`
	FrequencyWeight      float64      `yaml:"frequency_weight"`
	FrequencyWindowHours int          `yaml:"frequency_window_hours"`
	DecayHalfLifeHours   int          `yaml:"decay_half_life_hours"`
	DecayFloor           float64      `yaml:"decay_floor"`
	RankBuckets          []RankBucket `yaml:"rank_buckets"`
}

// FrequencyWindow returns the trailing window used for frequency scoring.
func (r RankingConfig) FrequencyWindow() time.Duration {
	return time.Duration(r.FrequencyWindowHours) * time.Hour
}

// DecayHalfLife returns the half-life of the recency decay curve.
func (r RankingConfig) DecayHalfLife() time.Duration {
	return time.Duration(r.DecayHalfLifeHours) * time.Hour
}

// PushWindowConfig bounds when notification dispatch is permitted.
type PushWindowConfig struct {
	Enabled    bool   `yaml:"enabled"`
	StartTime  string `yaml:"start_time"` // "HH:MM"
	EndTime    string `yaml:"end_time"`   // "HH:MM"
	OncePerDay bool   `yaml:"once_per_day"`
}

// PushConfig configures the notification boundary.
type PushConfig struct {
	WebhookURL     string           `yaml:"webhook_url"`
	TimeoutSeconds int              `yaml:"timeout_seconds"`
	Window         PushWindowConfig `yaml:"window"`
	MarkRetries    int              `yaml:"mark_retries"`
	MarkBackoffMS  int              `yaml:"mark_backoff_ms"`
}

// Timeout returns the webhook request timeout.
func (p PushConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// MarkBackoff returns the base backoff between push-mark write retries.
func (p PushConfig) MarkBackoff() time.Duration {
	return time.Duration(p.MarkBackoffMS) * time.Millisecond
}

// SecurityConfig represents API security configuration.
type SecurityConfig struct {
	EnableRateLimit       bool
	RateLimitPerSecond    float64
	RateLimitBurst        int
	EnableCORS            bool
	AllowedOrigins        []string
	EnableSecurityHeaders bool
	MaxRequestSize        int64
	EnableRequestID       bool
}

type Config struct {
	Port                int               `yaml:"port"`
	DataDir             string            `yaml:"data_dir"`
	CacheTTLMinutes     int               `yaml:"cache_ttl_minutes"`
	PollIntervalMinutes int               `yaml:"poll_interval_minutes"`
	RequestIntervalMS   int               `yaml:"request_interval_ms"`
	RetentionDays       int               `yaml:"retention_days"`
	ReportMode          models.ReportMode `yaml:"report_mode"`
	RankThreshold       int               `yaml:"rank_threshold"`
	TopK                int               `yaml:"top_k"`
	Platforms           []PlatformConfig  `yaml:"platforms"`
	Ranking             RankingConfig     `yaml:"ranking"`
	Push                PushConfig        `yaml:"push"`
	Security            SecurityConfig    `yaml:"-"`
}

// CacheTTL returns the report cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// PollInterval returns the crawl cycle interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// RequestInterval returns the pause between consecutive platform requests.
func (c *Config) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalMS) * time.Millisecond
}

// Retention returns the history retention period. Zero disables pruning.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Default returns the baseline configuration before file and environment
// overrides are applied.
func Default() *Config {
	return &Config{
		Port:                8080,
		DataDir:             "./data",
		CacheTTLMinutes:     15,
		PollIntervalMinutes: 15,
		RequestIntervalMS:   500,
		RetentionDays:       30,
		ReportMode:          models.ModeCurrent,
		RankThreshold:       10,
		TopK:                20,
		Platforms:           defaultPlatforms(),
		Ranking: RankingConfig{
			RankWeight:           0.6,
			FrequencyWeight:      0.4,
			FrequencyWindowHours: 24,
			DecayHalfLifeHours:   24,
			DecayFloor:           0.1,
			RankBuckets: []RankBucket{
				{MaxRank: 3, Score: 1.0},
				{MaxRank: 10, Score: 0.8},
				{MaxRank: 20, Score: 0.5},
				{MaxRank: 50, Score: 0.3},
			},
		},
		Push: PushConfig{
			TimeoutSeconds: 10,
			Window: PushWindowConfig{
				Enabled:    false,
				StartTime:  "08:00",
				EndTime:    "22:00",
				OncePerDay: false,
			},
			MarkRetries:   3,
			MarkBackoffMS: 200,
		},
		Security: loadSecurityConfig(),
	}
}

// Load reads the YAML config file (if present), then applies environment
// variable overrides. The returned value is immutable by convention: it is
// passed down the call chain and never looked up ambiently.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getEnv("CONFIG_FILE", "config/config.yaml")
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %v", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %v", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if !c.ReportMode.Valid() {
		return fmt.Errorf("invalid report_mode %q: must be incremental, current or daily", c.ReportMode)
	}

	if c.Push.Window.Enabled {
		if _, err := ParseClock(c.Push.Window.StartTime); err != nil {
			return fmt.Errorf("invalid push window start_time: %v", err)
		}
		if _, err := ParseClock(c.Push.Window.EndTime); err != nil {
			return fmt.Errorf("invalid push window end_time: %v", err)
		}
	}

	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}

	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative, got %d", c.RetentionDays)
	}

	for i, b := range c.Ranking.RankBuckets {
		if b.MaxRank <= 0 {
			return fmt.Errorf("rank bucket %d: max_rank must be positive", i)
		}
		if i > 0 && b.MaxRank <= c.Ranking.RankBuckets[i-1].MaxRank {
			return fmt.Errorf("rank buckets must be sorted by ascending max_rank")
		}
	}

	seen := make(map[string]bool)
	for _, p := range c.Platforms {
		if p.ID == "" {
			return fmt.Errorf("platform with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate platform id %q", p.ID)
		}
		seen[p.ID] = true
	}

	return nil
}

// ActivePlatforms returns the platforms currently being monitored.
func (c *Config) ActivePlatforms() []PlatformConfig {
	var active []PlatformConfig
	for _, p := range c.Platforms {
		if p.IsActive() {
			active = append(active, p)
		}
	}
	return active
}

// ParseClock parses an "HH:MM" wall clock string into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Port = getEnvAsInt("PORT", cfg.Port)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.CacheTTLMinutes = getEnvAsInt("CACHE_TTL_MINUTES", cfg.CacheTTLMinutes)
	cfg.PollIntervalMinutes = getEnvAsInt("POLL_INTERVAL_MINUTES", cfg.PollIntervalMinutes)
	cfg.RequestIntervalMS = getEnvAsInt("REQUEST_INTERVAL_MS", cfg.RequestIntervalMS)
	cfg.RetentionDays = getEnvAsInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.ReportMode = models.ReportMode(getEnv("REPORT_MODE", string(cfg.ReportMode)))
	cfg.RankThreshold = getEnvAsInt("RANK_THRESHOLD", cfg.RankThreshold)
	cfg.TopK = getEnvAsInt("TOP_K", cfg.TopK)
	cfg.Push.WebhookURL = getEnv("WEBHOOK_URL", cfg.Push.WebhookURL)
	cfg.Push.Window.Enabled = getEnvAsBool("PUSH_WINDOW_ENABLED", cfg.Push.Window.Enabled)
	cfg.Push.Window.StartTime = getEnv("PUSH_WINDOW_START", cfg.Push.Window.StartTime)
	cfg.Push.Window.EndTime = getEnv("PUSH_WINDOW_END", cfg.Push.Window.EndTime)
	cfg.Push.Window.OncePerDay = getEnvAsBool("PUSH_ONCE_PER_DAY", cfg.Push.Window.OncePerDay)
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableRateLimit:       getEnvAsBool("ENABLE_RATE_LIMIT", true),
		RateLimitPerSecond:    getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10.0),
		RateLimitBurst:        getEnvAsInt("RATE_LIMIT_BURST", 20),
		EnableCORS:            getEnvAsBool("ENABLE_CORS", true),
		AllowedOrigins:        getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
		EnableSecurityHeaders: getEnvAsBool("ENABLE_SECURITY_HEADERS", true),
		MaxRequestSize:        getEnvAsInt64("MAX_REQUEST_SIZE", 10<<20), // 10MB
		EnableRequestID:       getEnvAsBool("ENABLE_REQUEST_ID", true),
	}
}

func defaultPlatforms() []PlatformConfig {
	return []PlatformConfig{
		{ID: "toutiao", Name: "Toutiao", URL: "https://newsnow.busiyi.world/api/s?id=toutiao", Kind: "hotboard"},
		{ID: "weibo", Name: "Weibo", URL: "https://newsnow.busiyi.world/api/s?id=weibo", Kind: "hotboard"},
		{ID: "zhihu", Name: "Zhihu", URL: "https://newsnow.busiyi.world/api/s?id=zhihu", Kind: "hotboard"},
	}
}

func getEnv(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		origins := strings.Split(val, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		return origins
	}
	return defaultVal
}
