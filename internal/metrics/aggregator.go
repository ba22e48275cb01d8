package metrics

import (
	"context"
	"sync"
	"time"

	"deskwatch/internal/cache"
	"deskwatch/internal/itsm"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Provider is the slice of the ITSM client the aggregator needs.
type Provider interface {
	BuildCriteria(ctx context.Context, f itsm.Filters) (itsm.Criteria, error)
	Count(ctx context.Context, itemtype string, criteria itsm.Criteria) (int, error)
}

// Aggregator computes dashboard snapshots from provider count queries,
// reading through the shared cache.
type Aggregator struct {
	provider Provider
	cache    *cache.Cache
	ttl      time.Duration
	workers  int
}

// NewAggregator creates an aggregator. workers bounds the number of
// concurrent provider queries per snapshot.
func NewAggregator(provider Provider, c *cache.Cache, ttl time.Duration, workers int) *Aggregator {
	if workers <= 0 {
		workers = 5
	}
	return &Aggregator{provider: provider, cache: c, ttl: ttl, workers: workers}
}

// Snapshot computes (or retrieves from cache) the metrics for the query.
// The date range is validated before any provider call.
func (a *Aggregator) Snapshot(ctx context.Context, q Query) (*Snapshot, error) {
	if err := q.DateRange.Validate(); err != nil {
		return nil, err
	}

	key := "metrics|" + q.filters().Signature()
	v, err := a.cache.Do(ctx, key, a.ttl, func(ctx context.Context) (any, error) {
		return a.compute(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (a *Aggregator) compute(ctx context.Context, q Query) (*Snapshot, error) {
	snap := &Snapshot{GeneratedAt: time.Now()}

	totals, levels, partial, err := a.countSet(ctx, q.filters(), q.Level == "")
	if err != nil {
		return nil, err
	}
	snap.Totals = totals
	snap.Levels = levels
	snap.Partial = partial

	// General totals and level sums come from independent queries; the
	// provider does not guarantee they agree. Flag mismatches, never "fix" them.
	if len(levels) > 0 {
		levelSum := 0
		for _, c := range levels {
			levelSum += c.Total()
		}
		if levelSum != totals.Total() && !partial {
			log.Warn().
				Int("general", totals.Total()).
				Int("level_sum", levelSum).
				Msg("General and per-level ticket counts disagree")
		}
	}

	if prev, ok := q.DateRange.Previous(); ok {
		prevFilters := q.filters()
		prevFilters.DateRange = prev
		prevTotals, _, prevPartial, err := a.countSet(ctx, prevFilters, false)
		if err != nil {
			return nil, err
		}
		if prevPartial {
			snap.Partial = true
		}
		snap.Trends = &StatusTrends{
			New:        Trend(prevTotals.New, totals.New),
			InProgress: Trend(prevTotals.InProgress, totals.InProgress),
			Pending:    Trend(prevTotals.Pending, totals.Pending),
			Resolved:   Trend(prevTotals.Resolved, totals.Resolved),
		}
	}

	return snap, nil
}

// countTask is one provider count query in a snapshot fan-out.
type countTask struct {
	bucket string
	code   int
	level  string // empty = contributes to the general totals
}

// countSet issues all count queries for one period through a bounded worker
// pool and merges the results deterministically by task, not by completion
// order. Individual failures contribute zero and mark the set partial; a set
// where every query failed yields an AggregationError.
func (a *Aggregator) countSet(ctx context.Context, base itsm.Filters, withLevels bool) (StatusCounts, map[string]StatusCounts, bool, error) {
	var tasks []countTask
	for _, bucket := range statusBuckets {
		for _, code := range bucket.Codes {
			tasks = append(tasks, countTask{bucket: bucket.Name, code: code})
		}
	}
	if withLevels {
		for _, level := range Levels {
			for _, bucket := range statusBuckets {
				for _, code := range bucket.Codes {
					tasks = append(tasks, countTask{bucket: bucket.Name, code: code, level: level})
				}
			}
		}
	}

	counts := make([]int, len(tasks))
	errs := make([]error, len(tasks))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			n, err := a.countOne(gctx, base, task)
			mu.Lock()
			counts[i] = n
			errs[i] = err
			mu.Unlock()
			// Sub-query failures degrade the aggregate instead of aborting it.
			return nil
		})
	}
	_ = g.Wait()

	var totals StatusCounts
	levels := make(map[string]StatusCounts)
	failed := 0
	var firstErr error

	for i, task := range tasks {
		if errs[i] != nil {
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			log.Warn().Err(errs[i]).Str("bucket", task.bucket).Str("level", task.level).Int("code", task.code).Msg("Count sub-query failed, substituting zero")
			continue
		}
		if task.level == "" {
			totals.add(task.bucket, counts[i])
		} else {
			c := levels[task.level]
			c.add(task.bucket, counts[i])
			levels[task.level] = c
		}
	}

	if failed == len(tasks) && len(tasks) > 0 {
		return StatusCounts{}, nil, false, &AggregationError{Failed: failed, Err: firstErr}
	}
	return totals, levels, failed > 0, nil
}

// countOne builds criteria for a single (status code, level) slice and runs
// the count query. Cached per slice so overlapping snapshots share results.
func (a *Aggregator) countOne(ctx context.Context, base itsm.Filters, task countTask) (int, error) {
	f := base
	f.Status = task.code
	if task.level != "" {
		f.Level = task.level
	}

	key := "count|" + f.Signature()
	v, err := a.cache.Do(ctx, key, a.ttl, func(ctx context.Context) (any, error) {
		criteria, err := a.provider.BuildCriteria(ctx, f)
		if err != nil {
			return nil, err
		}
		return a.provider.Count(ctx, "Ticket", criteria)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}
