package itsm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// fieldCandidates maps each logical field name to the provider UIDs that may
// carry it, in order of preference. Multiple candidates absorb naming drift
// between provider versions.
var fieldCandidates = map[string][]string{
	FieldID:           {"Ticket.id"},
	FieldTitle:        {"Ticket.name"},
	FieldStatus:       {"Ticket.status"},
	FieldPriority:     {"Ticket.priority"},
	FieldGroup:        {"Ticket.Group.completename", "Ticket.Group.name"},
	FieldCategory:     {"Ticket.ITILCategory.completename", "Ticket.ITILCategory.name"},
	FieldTechnician:   {"Ticket.Users_id_assign", "Ticket.User.id.assign"},
	FieldDateCreation: {"Ticket.date", "Ticket.date_creation"},
	FieldDateMod:      {"Ticket.date_mod"},
}

// ResolveField resolves a logical field name to the provider's numeric field
// ID. The schema is fetched once per process; subsequent calls are pure map
// lookups. An UnknownFieldError is fatal to the calling operation and is
// never retried.
func (c *Client) ResolveField(ctx context.Context, logical string) (int, error) {
	c.fieldsMu.RLock()
	fields := c.fields
	c.fieldsMu.RUnlock()

	if fields == nil {
		_, err, _ := c.fieldsGroup.Do("discover", func() (interface{}, error) {
			c.fieldsMu.RLock()
			already := c.fields != nil
			c.fieldsMu.RUnlock()
			if already {
				return nil, nil
			}
			discovered, err := c.discoverFields(ctx)
			if err != nil {
				return nil, err
			}
			c.fieldsMu.Lock()
			c.fields = discovered
			c.fieldsMu.Unlock()
			return nil, nil
		})
		if err != nil {
			return 0, err
		}
		c.fieldsMu.RLock()
		fields = c.fields
		c.fieldsMu.RUnlock()
	}

	id, ok := fields[logical]
	if !ok {
		return 0, &UnknownFieldError{Logical: logical}
	}
	return id, nil
}

// FieldMap returns the full logical-name to field-ID mapping, resolving the
// schema on first use.
func (c *Client) FieldMap(ctx context.Context) (map[string]int, error) {
	// Resolving any field populates the whole map.
	if _, err := c.ResolveField(ctx, FieldStatus); err != nil {
		return nil, err
	}
	c.fieldsMu.RLock()
	defer c.fieldsMu.RUnlock()
	out := make(map[string]int, len(c.fields))
	for k, v := range c.fields {
		out[k] = v
	}
	return out, nil
}

// discoverFields queries the schema endpoint and matches the logical names we
// track against the advertised search options.
func (c *Client) discoverFields(ctx context.Context) (map[string]int, error) {
	resp, err := c.doSessionRequest(ctx, http.MethodGet, "/listSearchOptions/Ticket")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &QueryError{
			Itemtype:   "Ticket",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("schema endpoint returned status %d", resp.StatusCode),
		}
	}

	// The schema endpoint mixes option objects with scalar metadata entries
	// under one map; skip anything that is not an option object.
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding schema response: %w", err)
	}

	byUID := make(map[string]int)
	for key, val := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		var opt searchOptionDTO
		if err := json.Unmarshal(val, &opt); err != nil {
			continue
		}
		if opt.UID != "" {
			byUID[opt.UID] = id
		}
	}

	fields := make(map[string]int, len(fieldCandidates))
	for logical, candidates := range fieldCandidates {
		for _, uid := range candidates {
			if id, ok := byUID[uid]; ok {
				fields[logical] = id
				break
			}
		}
		if _, ok := fields[logical]; !ok {
			return nil, &UnknownFieldError{Logical: logical}
		}
	}
	return fields, nil
}
