package itsm

import (
	"context"
	"fmt"
	"strconv"
)

// MapTicket converts a loosely-typed search row into a TicketRecord using the
// discovered field map. Rows missing an ID or status fail fast: that is
// schema drift, not data to aggregate.
func MapTicket(fields map[string]int, row RowDTO) (TicketRecord, error) {
	get := func(logical string) ([]byte, bool) {
		id, ok := fields[logical]
		if !ok {
			return nil, false
		}
		raw, ok := row[strconv.Itoa(id)]
		return raw, ok
	}

	var rec TicketRecord

	raw, ok := get(FieldID)
	if !ok {
		return rec, fmt.Errorf("ticket row missing id field")
	}
	id, ok := asInt(raw)
	if !ok {
		return rec, fmt.Errorf("ticket row has non-numeric id %q", string(raw))
	}
	rec.ID = id

	raw, ok = get(FieldStatus)
	if !ok {
		return rec, fmt.Errorf("ticket %d missing status field", rec.ID)
	}
	status, ok := asInt(raw)
	if !ok {
		return rec, fmt.Errorf("ticket %d has non-numeric status %q", rec.ID, string(raw))
	}
	rec.Status = status

	if raw, ok := get(FieldTitle); ok {
		rec.Title = asString(raw)
	}
	if raw, ok := get(FieldPriority); ok {
		if v, valid := asInt(raw); valid {
			rec.Priority = v
		}
	}
	if raw, ok := get(FieldGroup); ok {
		rec.Group = asString(raw)
		rec.Level = levelFromGroup(rec.Group)
	}
	if raw, ok := get(FieldCategory); ok {
		rec.Category = asString(raw)
	}
	if raw, ok := get(FieldTechnician); ok {
		if v, valid := asInt(raw); valid {
			rec.TechnicianID = v
		}
	}
	if raw, ok := get(FieldDateCreation); ok {
		if t, valid := asTime(raw); valid {
			rec.CreatedAt = t
		}
	}
	if raw, ok := get(FieldDateMod); ok {
		if t, valid := asTime(raw); valid {
			rec.UpdatedAt = t
		}
	}

	return rec, nil
}

// SearchTickets runs a ticket search and maps each row through the typed
// boundary. The pagination flags of the underlying result are preserved.
type TicketResult struct {
	Records    []TicketRecord
	TotalCount int
	Partial    bool
	Truncated  bool
}

func (c *Client) SearchTickets(ctx context.Context, criteria Criteria, rng Range) (*TicketResult, error) {
	fields, err := c.FieldMap(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.Search(ctx, "Ticket", criteria, rng)
	if err != nil {
		return nil, err
	}

	out := &TicketResult{
		TotalCount: res.TotalCount,
		Partial:    res.Partial,
		Truncated:  res.Truncated,
		Records:    make([]TicketRecord, 0, len(res.Rows)),
	}
	for _, row := range res.Rows {
		rec, err := MapTicket(fields, row)
		if err != nil {
			return nil, fmt.Errorf("mapping ticket row: %w", err)
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}
