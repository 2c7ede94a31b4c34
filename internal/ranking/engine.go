package ranking

import (
	"fmt"
	"math"
	"sort"
	"time"

	"trendwatch/internal/config"
	"trendwatch/internal/models"
	"trendwatch/internal/storage"
)

// frequencySaturation is the distinct-sighting count at which the frequency
// component reaches its maximum. Sustained presence beyond this adds nothing.
const frequencySaturation = 10

// Engine computes the composite score for observed items and orders them.
// The composite is RankWeight * rankScore + FrequencyWeight * freqScore * decay,
// where rankScore comes from the configured buckets, freqScore from distinct
// sightings in the trailing window, and decay from the story's age.
type Engine struct {
	cfg   config.RankingConfig
	store storage.Storage
}

func NewEngine(cfg config.RankingConfig, store storage.Storage) *Engine {
	return &Engine{cfg: cfg, store: store}
}

// Rank annotates each item with its composite score and returns the slice
// ordered by score descending. Ties break on earlier first_seen, then on
// identity key, so output order is fully deterministic.
func (e *Engine) Rank(items []models.ScoredItem, now time.Time) ([]models.ScoredItem, error) {
	if len(items) == 0 {
		return items, nil
	}

	ids := make([]int64, len(items))
	for i, si := range items {
		ids[i] = si.Item.ID
	}

	counts, err := e.store.ObservationCounts(ids, now.Add(-e.cfg.FrequencyWindow()))
	if err != nil {
		return nil, fmt.Errorf("failed to load observation counts: %v", err)
	}

	for i := range items {
		item := items[i].Item
		rankScore := e.rankScore(item.Rank)
		freqScore := frequencyScore(counts[item.ID])
		decay := e.decay(now.Sub(item.FirstSeen))
		items[i].Score = e.cfg.RankWeight*rankScore + e.cfg.FrequencyWeight*freqScore*decay
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if !items[i].Item.FirstSeen.Equal(items[j].Item.FirstSeen) {
			return items[i].Item.FirstSeen.Before(items[j].Item.FirstSeen)
		}
		return items[i].Item.IdentityKey < items[j].Item.IdentityKey
	})

	return items, nil
}

// rankScore maps a board rank onto [0, 1] through the configured buckets.
// Ranks past the last bucket fall back to 1/rank scaling so deep entries
// still order among themselves.
func (e *Engine) rankScore(rank int) float64 {
	if rank <= 0 {
		return 0
	}
	for _, b := range e.cfg.RankBuckets {
		if rank <= b.MaxRank {
			return b.Score
		}
	}
	return 1.0 / float64(rank)
}

// frequencyScore maps a distinct-sighting count onto [0, 1], saturating at
// frequencySaturation.
func frequencyScore(count int) float64 {
	if count <= 0 {
		return 0
	}
	if count >= frequencySaturation {
		return 1
	}
	return float64(count) / frequencySaturation
}

// decay is a half-life curve over the story's age since first sighting,
// clamped to the configured floor so long-running stories never vanish
// entirely.
func (e *Engine) decay(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	halfLife := e.cfg.DecayHalfLife()
	if halfLife <= 0 {
		return 1
	}
	d := math.Pow(0.5, age.Hours()/halfLife.Hours())
	if d < e.cfg.DecayFloor {
		return e.cfg.DecayFloor
	}
	return d
}
