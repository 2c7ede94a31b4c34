package pushgate

import (
	"fmt"
	"log"
	"time"

	"trendwatch/internal/config"
	"trendwatch/internal/models"
	"trendwatch/internal/storage"
)

// Gate decides whether a built report may be dispatched, and records the
// dispatch afterwards. Suppression reasons are stable strings surfaced on
// the report for operators.
type Gate struct {
	cfg   config.PushConfig
	store storage.Storage

	// minutes since midnight, parsed once at construction
	windowStart int
	windowEnd   int
}

const (
	ReasonEmptyReport   = "empty report"
	ReasonOutsideWindow = "outside push window"
	ReasonAlreadyPushed = "already pushed today"
)

func NewGate(cfg config.PushConfig, store storage.Storage) (*Gate, error) {
	g := &Gate{cfg: cfg, store: store}

	if cfg.Window.Enabled {
		start, err := config.ParseClock(cfg.Window.StartTime)
		if err != nil {
			return nil, fmt.Errorf("invalid push window start: %v", err)
		}
		end, err := config.ParseClock(cfg.Window.EndTime)
		if err != nil {
			return nil, fmt.Errorf("invalid push window end: %v", err)
		}
		g.windowStart = start
		g.windowEnd = end
	}

	return g, nil
}

// Decide evaluates the gate for a report at the given wall-clock time and
// stamps the verdict onto the report. The checks run cheapest first; the
// once-per-day check reads storage and only runs when the others pass.
func (g *Gate) Decide(report *models.Report, now time.Time) (models.Decision, error) {
	if len(report.Entries) == 0 {
		return g.suppress(report, ReasonEmptyReport), nil
	}

	if g.cfg.Window.Enabled && !g.inWindow(now) {
		return g.suppress(report, ReasonOutsideWindow), nil
	}

	if g.cfg.Window.OncePerDay {
		record, err := g.store.GetPushRecord(now.Format("2006-01-02"))
		if err != nil {
			return models.DecisionSuppress, fmt.Errorf("failed to read push record: %v", err)
		}
		if record != nil && record.Pushed {
			return g.suppress(report, ReasonAlreadyPushed), nil
		}
	}

	report.Decision = models.DecisionPush
	return models.DecisionPush, nil
}

func (g *Gate) suppress(report *models.Report, reason string) models.Decision {
	report.Decision = models.DecisionSuppress
	report.Suppression = reason
	return models.DecisionSuppress
}

// inWindow reports whether the wall clock falls in [start, end). A start
// later than the end means the window wraps past midnight.
func (g *Gate) inWindow(now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	if g.windowStart <= g.windowEnd {
		return m >= g.windowStart && m < g.windowEnd
	}
	return m >= g.windowStart || m < g.windowEnd
}

// RecordDispatch persists the push record for the date after a successful
// dispatch. The write is retried with linear backoff; if every attempt
// fails the error wraps storage.ErrPushMarkWrite and the caller must NOT
// dispatch again, since the notification already went out. The missing
// record is logged as a known inconsistency for the operator to resolve.
func (g *Gate) RecordDispatch(date string, pushTime time.Time, reportType string) error {
	attempts := g.cfg.MarkRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(g.cfg.MarkBackoff() * time.Duration(i))
		}
		lastErr = g.store.MarkPushed(date, pushTime, reportType)
		if lastErr == nil {
			return nil
		}
		log.Printf("Push record write failed (attempt %d/%d): %v", i+1, attempts, lastErr)
	}

	return fmt.Errorf("push record for %s not persisted after %d attempts: %w", date, attempts, lastErr)
}
