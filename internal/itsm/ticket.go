package itsm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TicketRecord is a strongly-typed ticket row. Records are produced by the
// search mapper and never mutated afterwards.
type TicketRecord struct {
	ID           int
	Title        string
	Status       int
	Priority     int
	Group        string
	Level        string
	Category     string
	TechnicianID int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TechnicianRef identifies a provider user holding the technician profile.
type TechnicianRef struct {
	ID   int
	Name string
}

// DateRange filters queries by creation date. Both bounds are inclusive
// calendar dates; either may be zero for an open end.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether no bound is set.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Validate rejects ranges whose start lies after their end.
func (r DateRange) Validate() error {
	if !r.Start.IsZero() && !r.End.IsZero() && r.Start.After(r.End) {
		return fmt.Errorf("invalid date range: start %s is after end %s",
			r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	}
	return nil
}

// Previous returns the equivalent-length period ending where this one begins,
// used for trend comparison. Open-ended ranges have no previous period.
func (r DateRange) Previous() (DateRange, bool) {
	if r.Start.IsZero() || r.End.IsZero() {
		return DateRange{}, false
	}
	days := int(r.End.Sub(r.Start).Hours()/24) + 1
	end := r.Start.AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(days - 1))
	return DateRange{Start: start, End: end}, true
}

// Filters narrows ticket queries. Zero values mean "not filtered".
type Filters struct {
	DateRange    DateRange
	Status       int
	Level        string
	Priority     int
	Category     string
	TechnicianID int
}

// Signature returns a canonical representation used in cache keys. It is
// computable without touching the provider.
func (f Filters) Signature() string {
	var b strings.Builder
	if !f.DateRange.Start.IsZero() {
		fmt.Fprintf(&b, "from=%s|", f.DateRange.Start.Format("2006-01-02"))
	}
	if !f.DateRange.End.IsZero() {
		fmt.Fprintf(&b, "to=%s|", f.DateRange.End.Format("2006-01-02"))
	}
	if f.Status != 0 {
		fmt.Fprintf(&b, "status=%d|", f.Status)
	}
	if f.Level != "" {
		fmt.Fprintf(&b, "level=%s|", f.Level)
	}
	if f.Priority != 0 {
		fmt.Fprintf(&b, "priority=%d|", f.Priority)
	}
	if f.Category != "" {
		fmt.Fprintf(&b, "category=%s|", f.Category)
	}
	if f.TechnicianID != 0 {
		fmt.Fprintf(&b, "technician=%d|", f.TechnicianID)
	}
	return strings.TrimSuffix(b.String(), "|")
}

// BuildCriteria translates filters into field-ID-based provider criteria.
// The date range must already be validated by the caller.
func (c *Client) BuildCriteria(ctx context.Context, f Filters) (Criteria, error) {
	var criteria Criteria

	add := func(logical, searchType, value string) error {
		id, err := c.ResolveField(ctx, logical)
		if err != nil {
			return err
		}
		criteria = append(criteria, Criterion{Field: id, SearchType: searchType, Value: value})
		return nil
	}

	if !f.DateRange.Start.IsZero() {
		if err := add(FieldDateCreation, "morethan", f.DateRange.Start.Format("2006-01-02 00:00:00")); err != nil {
			return nil, err
		}
	}
	if !f.DateRange.End.IsZero() {
		if err := add(FieldDateCreation, "lessthan", f.DateRange.End.Format("2006-01-02 23:59:59")); err != nil {
			return nil, err
		}
	}
	if f.Status != 0 {
		if err := add(FieldStatus, "equals", strconv.Itoa(f.Status)); err != nil {
			return nil, err
		}
	}
	if f.Level != "" {
		if err := add(FieldGroup, "contains", f.Level); err != nil {
			return nil, err
		}
	}
	if f.Priority != 0 {
		if err := add(FieldPriority, "equals", strconv.Itoa(f.Priority)); err != nil {
			return nil, err
		}
	}
	if f.Category != "" {
		if err := add(FieldCategory, "contains", f.Category); err != nil {
			return nil, err
		}
	}
	if f.TechnicianID != 0 {
		if err := add(FieldTechnician, "equals", strconv.Itoa(f.TechnicianID)); err != nil {
			return nil, err
		}
	}
	return criteria, nil
}

// levelFromGroup extracts the support tier token (N1..N4) from a group name.
func levelFromGroup(group string) string {
	upper := strings.ToUpper(group)
	for _, tier := range []string{"N1", "N2", "N3", "N4"} {
		if containsToken(upper, tier) {
			return tier
		}
	}
	return ""
}

// containsToken reports whether token appears in s bounded by non-alphanumerics.
func containsToken(s, token string) bool {
	idx := 0
	for {
		pos := strings.Index(s[idx:], token)
		if pos < 0 {
			return false
		}
		pos += idx
		beforeOK := pos == 0 || !isAlnum(s[pos-1])
		after := pos + len(token)
		afterOK := after == len(s) || !isAlnum(s[after])
		if beforeOK && afterOK {
			return true
		}
		idx = pos + 1
	}
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
