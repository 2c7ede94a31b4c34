package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"trendwatch/internal/cache"
	"trendwatch/internal/config"
	"trendwatch/internal/poller"
	"trendwatch/internal/security"
	"trendwatch/internal/storage"

	"github.com/gin-gonic/gin"
)

type Server struct {
	router       *gin.Engine
	store        storage.Storage
	cacheManager *cache.Manager
	poller       *poller.Poller
	cfg          *config.Config
}

func NewServer(store storage.Storage, cacheManager *cache.Manager, p *poller.Poller, cfg *config.Config) *Server {
	router := gin.Default()

	security.SetupSecurityMiddleware(router, &cfg.Security)

	server := &Server{
		router:       router,
		store:        store,
		cacheManager: cacheManager,
		poller:       p,
		cfg:          cfg,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	// API routes
	api := s.router.Group("/api/v1")
	{
		api.GET("/platforms", s.getPlatforms)
		api.GET("/report/latest", s.getLatestReport)
		api.GET("/report/daily", s.getDailyReport)
		api.GET("/leaderboard", s.getLeaderboard)
		api.GET("/items/history", s.getItemHistory)
		api.GET("/push/status", s.getPushStatus)
		api.GET("/stats", s.getStats)

		// Poller control endpoints
		api.GET("/poller/status", s.getPollerStatus)
		api.POST("/poller/force-cycle", s.forceCycle)
	}
}

func (s *Server) Start() error {
	return s.router.Run(":" + strconv.Itoa(s.cfg.Port))
}

// StartWithContext runs the server until the context is cancelled, then
// shuts down gracefully.
func (s *Server) StartWithContext(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(s.cfg.Port),
		Handler: s.router,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"service":       "trendwatch",
		"report_mode":   s.cfg.ReportMode,
		"poller_active": s.poller.IsRunning(),
	})
}

func (s *Server) getPlatforms(c *gin.Context) {
	platforms, err := s.store.ListPlatforms()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"platforms": platforms,
		"count":     len(platforms),
	})
}

func (s *Server) getLatestReport(c *gin.Context) {
	report, found := s.cacheManager.GetLatestReport()
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no report available yet",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// getDailyReport returns the union of items selected on a date, today by
// default.
func (s *Server) getDailyReport(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	items, err := s.store.ItemsSelectedOn(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":  date,
		"items": items,
		"count": len(items),
	})
}

func (s *Server) getLeaderboard(c *gin.Context) {
	items, found := s.cacheManager.GetLeaderboard()
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no leaderboard available yet",
		})
		return
	}

	limit := len(items)
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed < limit {
			limit = parsed
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items[:limit],
		"count": limit,
	})
}

// getItemHistory returns an item with its full title and rank history. The
// identity key is usually a URL, so it travels as a query parameter.
func (s *Server) getItemHistory(c *gin.Context) {
	platform := c.Query("platform")
	key := c.Query("key")
	if platform == "" || key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform and key are required"})
		return
	}

	item, err := s.store.GetItem(platform, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	titleChanges, err := s.store.TitleChanges(item.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rankHistory, err := s.store.RankObservations(item.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item":          item,
		"title_changes": titleChanges,
		"rank_history":  rankHistory,
	})
}

func (s *Server) getPushStatus(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	record, err := s.store.GetPushRecord(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if record == nil {
		c.JSON(http.StatusOK, gin.H{
			"date":   date,
			"pushed": false,
		})
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) getStats(c *gin.Context) {
	if stats, found := s.cacheManager.GetStats(); found {
		c.JSON(http.StatusOK, stats)
		return
	}

	stats, err := s.store.GetDatabaseStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.cacheManager.SetStats(stats, time.Minute)
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getPollerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.poller.Status())
}

func (s *Server) forceCycle(c *gin.Context) {
	result, err := s.poller.ForceCycle(c.Request.Context())
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateCrawl) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "a cycle already ran for this crawl time",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
