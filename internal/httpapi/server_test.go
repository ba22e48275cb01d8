package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deskwatch/internal/cache"
	"deskwatch/internal/dashboard"
	"deskwatch/internal/itsm"
	"deskwatch/internal/metrics"
	"deskwatch/internal/pagerange"
	"deskwatch/internal/ranking"
)

// stubProvider backs the full service: metrics counts, ranking searches, and
// the health probe.
type stubProvider struct {
	count    int
	pingErr  error
	countErr error
}

func (s *stubProvider) BuildCriteria(ctx context.Context, f itsm.Filters) (itsm.Criteria, error) {
	return itsm.Criteria{{Field: 12, SearchType: "equals", Value: "1"}}, nil
}

func (s *stubProvider) Count(ctx context.Context, itemtype string, cr itsm.Criteria) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.count, nil
}

func (s *stubProvider) ListTechnicians(ctx context.Context) ([]itsm.TechnicianRef, error) {
	return []itsm.TechnicianRef{{ID: 1, Name: "Alice"}}, nil
}

func (s *stubProvider) SearchTickets(ctx context.Context, criteria itsm.Criteria, rng itsm.Range) (*itsm.TicketResult, error) {
	return &itsm.TicketResult{
		Records:    []itsm.TicketRecord{{ID: 1, Status: itsm.StatusSolved, TechnicianID: 1}},
		TotalCount: 1,
	}, nil
}

func (s *stubProvider) Ping(ctx context.Context) error { return s.pingErr }

func newTestServer(p *stubProvider) *httptest.Server {
	c := cache.New(cache.Options{BaseTTL: time.Minute})
	agg := metrics.NewAggregator(p, c, time.Minute, 5)
	eng := ranking.NewEngine(p, pagerange.NewFileStore("", nil), c, time.Minute, 5)
	svc := dashboard.NewService(agg, eng, p, c)
	return httptest.NewServer(NewRouter(svc, nil))
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding %s response: %v", path, err)
	}
	return resp, body
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&stubProvider{count: 4})
	defer srv.Close()

	resp, body := get(t, srv, "/api/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var totals metrics.StatusCounts
	if err := json.Unmarshal(body["totals"], &totals); err != nil {
		t.Fatalf("decoding totals: %v", err)
	}
	// Every status sub-count is 4; in_progress and resolved each merge two codes.
	want := metrics.StatusCounts{New: 4, InProgress: 8, Pending: 4, Resolved: 8}
	if totals != want {
		t.Errorf("totals = %+v, want %+v", totals, want)
	}
}

func TestMetricsInvalidDateRange(t *testing.T) {
	srv := newTestServer(&stubProvider{})
	defer srv.Close()

	resp, _ := get(t, srv, "/api/metrics?from=2026-02-01&to=2026-01-01")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("inverted range status = %d, want 400", resp.StatusCode)
	}

	resp, _ = get(t, srv, "/api/metrics?from=January")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed date status = %d, want 400", resp.StatusCode)
	}
}

func TestMetricsProviderFailureIsBadGateway(t *testing.T) {
	srv := newTestServer(&stubProvider{countErr: errors.New("connection refused")})
	defer srv.Close()

	resp, _ := get(t, srv, "/api/metrics")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 when every provider query fails", resp.StatusCode)
	}
}

func TestRankingEndpoint(t *testing.T) {
	srv := newTestServer(&stubProvider{})
	defer srv.Close()

	resp, body := get(t, srv, "/api/ranking")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var entries []ranking.Entry
	if err := json.Unmarshal(body["entries"], &entries); err != nil {
		t.Fatalf("decoding entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Alice" || entries[0].Rank != 1 {
		t.Errorf("entries = %+v, want Alice at rank 1", entries)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&stubProvider{})
	defer srv.Close()

	resp, body := get(t, srv, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if string(body["provider_reachable"]) != "true" {
		t.Errorf("provider_reachable = %s, want true", body["provider_reachable"])
	}

	down := newTestServer(&stubProvider{pingErr: errors.New("unreachable")})
	defer down.Close()
	_, body = get(t, down, "/api/health")
	if string(body["provider_reachable"]) != "false" {
		t.Errorf("provider_reachable = %s, want false", body["provider_reachable"])
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	srv := newTestServer(&stubProvider{})
	defer srv.Close()

	get(t, srv, "/api/metrics") // warm the cache so counters move

	resp, body := get(t, srv, "/api/cache/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var requests int64
	if err := json.Unmarshal(body["requests"], &requests); err != nil {
		t.Fatalf("decoding requests: %v", err)
	}
	if requests == 0 {
		t.Error("cache stats report zero requests after serving a snapshot")
	}
}
