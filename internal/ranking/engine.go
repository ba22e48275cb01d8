// Package ranking builds the technician leaderboard from per-technician
// ticket queries sized by learned pagination knowledge.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"deskwatch/internal/cache"
	"deskwatch/internal/itsm"
	"deskwatch/internal/metrics"
	"deskwatch/internal/pagerange"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Provider is the slice of the ITSM client the engine needs.
type Provider interface {
	ListTechnicians(ctx context.Context) ([]itsm.TechnicianRef, error)
	BuildCriteria(ctx context.Context, f itsm.Filters) (itsm.Criteria, error)
	SearchTickets(ctx context.Context, criteria itsm.Criteria, rng itsm.Range) (*itsm.TicketResult, error)
}

// Entry is one leaderboard row.
type Entry struct {
	TechnicianID int                  `json:"technician_id"`
	Name         string               `json:"name"`
	ByStatus     metrics.StatusCounts `json:"by_status"`
	Total        int                  `json:"total"`
	Rank         int                  `json:"rank"`
}

// Result is a computed leaderboard.
type Result struct {
	Entries []Entry `json:"entries"`

	// Partial is true when at least one technician's query failed and that
	// technician appears with zero counts.
	Partial bool `json:"partial"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Query narrows a ranking computation.
type Query struct {
	DateRange itsm.DateRange
	Level     string
}

// Engine computes technician rankings.
type Engine struct {
	provider Provider
	store    pagerange.Store
	cache    *cache.Cache
	ttl      time.Duration
	workers  int
}

// NewEngine creates a ranking engine. workers bounds concurrent
// per-technician provider queries.
func NewEngine(provider Provider, store pagerange.Store, c *cache.Cache, ttl time.Duration, workers int) *Engine {
	if workers <= 0 {
		workers = 5
	}
	return &Engine{provider: provider, store: store, cache: c, ttl: ttl, workers: workers}
}

// Ranking computes (or retrieves from cache) the leaderboard for the query.
// Ordering is descending by total, ties broken by ascending technician ID so
// repeated calls over identical data produce identical output.
func (e *Engine) Ranking(ctx context.Context, q Query) (*Result, error) {
	if err := q.DateRange.Validate(); err != nil {
		return nil, err
	}

	filters := itsm.Filters{DateRange: q.DateRange, Level: q.Level}
	key := "ranking|" + filters.Signature()
	v, err := e.cache.Do(ctx, key, e.ttl, func(ctx context.Context) (any, error) {
		return e.compute(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (e *Engine) compute(ctx context.Context, q Query) (*Result, error) {
	techs, err := e.provider.ListTechnicians(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing technicians: %w", err)
	}

	entries := make([]Entry, len(techs))
	failures := make([]error, len(techs))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, tech := range techs {
		i, tech := i, tech
		g.Go(func() error {
			entry, err := e.countTechnician(gctx, q, tech)
			mu.Lock()
			entries[i] = entry
			failures[i] = err
			mu.Unlock()
			// One missing technician must not block the rest of the ranking.
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{GeneratedAt: time.Now()}
	for i, tech := range techs {
		if failures[i] != nil {
			log.Warn().Err(failures[i]).Int("technician", tech.ID).Msg("Technician count failed, including with zero total")
			result.Partial = true
			entries[i] = Entry{TechnicianID: tech.ID, Name: tech.Name}
		}
	}

	if err := e.store.Persist(); err != nil {
		log.Warn().Err(err).Msg("Failed to persist pagination knowledge after ranking")
	}

	// Technicians with zero observed tickets stay in the result, except when
	// an explicit level filter is active.
	if q.Level != "" {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.Total > 0 {
				kept = append(kept, entry)
			}
		}
		entries = kept
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Total != entries[j].Total {
			return entries[i].Total > entries[j].Total
		}
		return entries[i].TechnicianID < entries[j].TechnicianID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	result.Entries = entries
	return result, nil
}

// countTechnician queries one technician's tickets using the learned range
// and feeds the observed total back into the pagination store.
func (e *Engine) countTechnician(ctx context.Context, q Query, tech itsm.TechnicianRef) (Entry, error) {
	entry := Entry{TechnicianID: tech.ID, Name: tech.Name}

	filters := itsm.Filters{DateRange: q.DateRange, Level: q.Level, TechnicianID: tech.ID}
	criteria, err := e.provider.BuildCriteria(ctx, filters)
	if err != nil {
		return entry, err
	}

	offset, limit := e.store.RangeFor(strconv.Itoa(tech.ID))
	res, err := e.provider.SearchTickets(ctx, criteria, itsm.Range{Offset: offset, Limit: limit})
	if err != nil {
		return entry, err
	}

	for _, rec := range res.Records {
		switch rec.Status {
		case itsm.StatusNew:
			entry.ByStatus.New++
		case itsm.StatusInProgress, itsm.StatusPlanned:
			entry.ByStatus.InProgress++
		case itsm.StatusPending:
			entry.ByStatus.Pending++
		case itsm.StatusSolved, itsm.StatusClosed:
			entry.ByStatus.Resolved++
		}
	}

	// The provider's total is authoritative even if the row set was
	// range-limited or truncated.
	entry.Total = res.TotalCount

	e.store.Observe(strconv.Itoa(tech.ID), tech.Name, res.TotalCount)
	return entry, nil
}
