package poller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"trendwatch/internal/analyzer"
	"trendwatch/internal/models"

	"github.com/robfig/cron/v3"
)

// Poller drives crawl cycles on a fixed interval and runs the nightly
// retention sweep. Cycles are serialized: a tick that fires while the
// previous cycle is still running is skipped rather than queued.
type Poller struct {
	analyzer *analyzer.Analyzer
	interval time.Duration
	cron     *cron.Cron

	mu        sync.RWMutex
	isRunning bool
	lastRun   time.Time
	lastErr   error

	cycleMu sync.Mutex
	wg      sync.WaitGroup
}

func New(a *analyzer.Analyzer, interval time.Duration) *Poller {
	return &Poller{
		analyzer: a,
		interval: interval,
		cron:     cron.New(),
	}
}

func (p *Poller) Start() error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	log.Printf("Starting trend poller with interval: %v", p.interval)

	if _, err := p.cron.AddFunc(fmt.Sprintf("@every %s", p.interval), p.runScheduledCycle); err != nil {
		return fmt.Errorf("failed to schedule crawl cycle: %v", err)
	}
	// Retention sweep in the quiet hours
	if _, err := p.cron.AddFunc("30 3 * * *", p.runCleanup); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %v", err)
	}

	p.cron.Start()

	// First cycle immediately so the read path has data on startup
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runScheduledCycle()
	}()

	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.mu.Unlock()

	log.Println("Stopping trend poller...")
	<-p.cron.Stop().Done()
	p.wg.Wait()
	log.Println("Trend poller stopped")
}

func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isRunning
}

// Status reports the poller's last activity for the API.
func (p *Poller) Status() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := map[string]interface{}{
		"is_running":    p.isRunning,
		"poll_interval": p.interval.String(),
	}
	if !p.lastRun.IsZero() {
		status["last_run"] = p.lastRun.Format(time.RFC3339)
	}
	if p.lastErr != nil {
		status["last_error"] = p.lastErr.Error()
	}
	return status
}

func (p *Poller) runScheduledCycle() {
	if _, err := p.ForceCycle(context.Background()); err != nil {
		log.Printf("Scheduled cycle failed: %v", err)
	}
}

// ForceCycle runs one crawl cycle immediately. The crawl time is truncated
// to the minute, so a double fire within the same minute trips the
// duplicate-crawl guard instead of storing twice.
func (p *Poller) ForceCycle(ctx context.Context) (*models.CycleResult, error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	crawlTime := time.Now().UTC().Truncate(time.Minute)
	result, err := p.analyzer.RunCycle(ctx, crawlTime)

	p.mu.Lock()
	p.lastRun = time.Now()
	p.lastErr = err
	p.mu.Unlock()

	return result, err
}

func (p *Poller) runCleanup() {
	log.Println("Starting retention sweep...")
	if err := p.analyzer.Cleanup(); err != nil {
		log.Printf("Retention sweep failed: %v", err)
		return
	}
	log.Println("Retention sweep completed")
}
