package metrics

import (
	"fmt"
	"time"

	"deskwatch/internal/itsm"
)

// Support tiers tracked in the per-level breakdown.
var Levels = []string{"N1", "N2", "N3", "N4"}

// statusBuckets maps each dashboard status to the provider codes it covers.
// Counts are queried per code and summed into the bucket.
var statusBuckets = []struct {
	Name  string
	Codes []int
}{
	{"new", []int{itsm.StatusNew}},
	{"in_progress", []int{itsm.StatusInProgress, itsm.StatusPlanned}},
	{"pending", []int{itsm.StatusPending}},
	{"resolved", []int{itsm.StatusSolved, itsm.StatusClosed}},
}

// StatusCounts holds ticket counts per dashboard status.
type StatusCounts struct {
	New        int `json:"new"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
	Resolved   int `json:"resolved"`
}

func (c StatusCounts) Total() int {
	return c.New + c.InProgress + c.Pending + c.Resolved
}

func (c *StatusCounts) add(bucket string, n int) {
	switch bucket {
	case "new":
		c.New += n
	case "in_progress":
		c.InProgress += n
	case "pending":
		c.Pending += n
	case "resolved":
		c.Resolved += n
	}
}

// StatusTrends holds percentage deltas versus the equivalent prior period.
type StatusTrends struct {
	New        float64 `json:"new"`
	InProgress float64 `json:"in_progress"`
	Pending    float64 `json:"pending"`
	Resolved   float64 `json:"resolved"`
}

// Snapshot is a computed dashboard view. General totals and per-level counts
// come from independent provider queries and are surfaced side by side: the
// provider does not guarantee they sum consistently, and we deliberately do
// not reconcile them.
type Snapshot struct {
	Totals StatusCounts            `json:"totals"`
	Levels map[string]StatusCounts `json:"levels"`
	Trends *StatusTrends           `json:"trends,omitempty"`

	// Partial is true when one or more sub-queries failed and their
	// contribution was substituted with zero. A Partial snapshot is never
	// presented as a genuinely-zero result.
	Partial bool `json:"partial"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Query narrows a snapshot computation.
type Query struct {
	DateRange    itsm.DateRange
	Level        string
	Priority     int
	Category     string
	TechnicianID int
}

func (q Query) filters() itsm.Filters {
	return itsm.Filters{
		DateRange:    q.DateRange,
		Level:        q.Level,
		Priority:     q.Priority,
		Category:     q.Category,
		TechnicianID: q.TechnicianID,
	}
}

// AggregationError wraps the sub-query failures of an aggregate that could
// not be produced at all.
type AggregationError struct {
	Failed int
	Err    error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed: %d sub-queries failed: %v", e.Failed, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
