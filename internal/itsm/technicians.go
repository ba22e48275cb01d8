package itsm

import (
	"context"
	"sort"
	"strconv"
)

// Core search option IDs for the User itemtype. Unlike ticket fields these
// are stable across provider versions, so they are not discovered.
const (
	userFieldName    = 1
	userFieldID      = 2
	userFieldProfile = 20
)

// ListTechnicians enumerates users holding the technician profile, sorted by
// ascending ID for deterministic downstream ordering.
func (c *Client) ListTechnicians(ctx context.Context) ([]TechnicianRef, error) {
	criteria := Criteria{
		{Field: userFieldProfile, SearchType: "equals", Value: strconv.Itoa(c.cfg.TechnicianProfileID)},
	}

	res, err := c.Search(ctx, "User", criteria, Range{Offset: 0, Limit: c.cfg.PageSize})
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(res.Rows))
	techs := make([]TechnicianRef, 0, len(res.Rows))
	for _, row := range res.Rows {
		raw, ok := row[strconv.Itoa(userFieldID)]
		if !ok {
			continue
		}
		id, ok := asInt(raw)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true

		name := ""
		if rawName, ok := row[strconv.Itoa(userFieldName)]; ok {
			name = asString(rawName)
		}
		techs = append(techs, TechnicianRef{ID: id, Name: name})
	}

	sort.Slice(techs, func(i, j int) bool { return techs[i].ID < techs[j].ID })
	return techs, nil
}
