// Package dashboard is the facade the route layer consumes.
package dashboard

import (
	"context"

	"deskwatch/internal/cache"
	"deskwatch/internal/metrics"
	"deskwatch/internal/ranking"
)

// Pinger reports provider reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health is the health-check response.
type Health struct {
	ProviderReachable bool `json:"provider_reachable"`
}

// Service bundles the aggregator, the ranking engine, and provider health
// into the contract exposed downstream.
type Service struct {
	aggregator *metrics.Aggregator
	engine     *ranking.Engine
	provider   Pinger
	cache      *cache.Cache
}

// NewService wires the core components together.
func NewService(aggregator *metrics.Aggregator, engine *ranking.Engine, provider Pinger, c *cache.Cache) *Service {
	return &Service{aggregator: aggregator, engine: engine, provider: provider, cache: c}
}

// GetMetrics returns the dashboard snapshot, optionally scoped by the query.
func (s *Service) GetMetrics(ctx context.Context, q metrics.Query) (*metrics.Snapshot, error) {
	return s.aggregator.Snapshot(ctx, q)
}

// GetFilteredMetrics returns a snapshot scoped by explicit filters. It shares
// the aggregation path with GetMetrics; the route layer exposes the two as
// separate endpoints.
func (s *Service) GetFilteredMetrics(ctx context.Context, q metrics.Query) (*metrics.Snapshot, error) {
	return s.aggregator.Snapshot(ctx, q)
}

// GetTechnicianRanking returns the technician leaderboard.
func (s *Service) GetTechnicianRanking(ctx context.Context, q ranking.Query) (*ranking.Result, error) {
	return s.engine.Ranking(ctx, q)
}

// HealthCheck probes the provider.
func (s *Service) HealthCheck(ctx context.Context) Health {
	return Health{ProviderReachable: s.provider.Ping(ctx) == nil}
}

// CacheStats exposes cache hit-rate counters for monitoring.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}
