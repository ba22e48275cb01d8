package itsm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Range addresses a window of a search result set.
type Range struct {
	Offset int
	Limit  int
}

func (r Range) param() string {
	return fmt.Sprintf("%d-%d", r.Offset, r.Offset+r.Limit-1)
}

// Criterion is a single field-ID-based filter condition.
type Criterion struct {
	Field      int
	SearchType string // equals, contains, morethan, lessthan
	Value      string
	Link       string // AND (default) or OR against the previous criterion
}

// Criteria is an ordered list of filter conditions.
type Criteria []Criterion

func (cr Criteria) encode(params url.Values) {
	for i, c := range cr {
		prefix := fmt.Sprintf("criteria[%d]", i)
		if i > 0 {
			link := c.Link
			if link == "" {
				link = "AND"
			}
			params.Set(prefix+"[link]", link)
		}
		params.Set(prefix+"[field]", strconv.Itoa(c.Field))
		params.Set(prefix+"[searchtype]", c.SearchType)
		params.Set(prefix+"[value]", c.Value)
	}
}

// Signature returns a canonical string for cache keys.
func (cr Criteria) Signature() string {
	parts := make([]string, 0, len(cr))
	for _, c := range cr {
		link := c.Link
		if link == "" {
			link = "AND"
		}
		parts = append(parts, fmt.Sprintf("%s:%d:%s:%s", link, c.Field, c.SearchType, c.Value))
	}
	return strings.Join(parts, "|")
}

// SearchResult is the accumulated outcome of one logical search, possibly
// assembled from several range-limited provider responses.
type SearchResult struct {
	Rows       []RowDTO
	TotalCount int

	// Partial is true when the provider answered with range-limited
	// responses. This is a successful outcome, never an error.
	Partial bool

	// Truncated is true when the page safety cap stopped pagination before
	// all TotalCount rows were retrieved.
	Truncated bool
}

// Search runs a filtered query against the provider, following range-limited
// responses until the full result set is retrieved or the page safety cap is
// reached.
func (c *Client) Search(ctx context.Context, itemtype string, criteria Criteria, rng Range) (*SearchResult, error) {
	if rng.Limit <= 0 {
		rng.Limit = c.cfg.PageSize
	}

	result := &SearchResult{}
	offset := rng.Offset

	for page := 0; page < c.cfg.MaxPages; page++ {
		pageRng := Range{Offset: offset, Limit: rng.Limit}
		dto, partial, err := c.searchPage(ctx, itemtype, criteria, pageRng)
		if err != nil {
			return nil, err
		}

		result.Rows = append(result.Rows, dto.Data...)
		result.TotalCount = dto.TotalCount
		if partial {
			result.Partial = true
		}

		if !partial || len(dto.Data) == 0 {
			// Full content: everything matching arrived in one response.
			if !partial && result.TotalCount == 0 {
				result.TotalCount = len(result.Rows)
			}
			return result, nil
		}
		if len(result.Rows) >= result.TotalCount {
			return result, nil
		}

		offset += len(dto.Data)
	}

	result.Truncated = true
	log.Warn().
		Str("itemtype", itemtype).
		Int("retrieved", len(result.Rows)).
		Int("total", result.TotalCount).
		Msg("Search stopped at page safety cap")
	return result, nil
}

// Count returns only the total number of rows matching the criteria, using a
// minimal range so no payload is transferred.
func (c *Client) Count(ctx context.Context, itemtype string, criteria Criteria) (int, error) {
	dto, partial, err := c.searchPage(ctx, itemtype, criteria, Range{Offset: 0, Limit: 1})
	if err != nil {
		return 0, err
	}
	if !partial && dto.TotalCount == 0 {
		return len(dto.Data), nil
	}
	return dto.TotalCount, nil
}

// searchPage performs a single range request with retry on transient
// failures. Partial content (206) is a successful outcome; the total match
// count is taken from the content-range header, falling back to the body.
func (c *Client) searchPage(ctx context.Context, itemtype string, criteria Criteria, rng Range) (*searchDTO, bool, error) {
	params := url.Values{}
	criteria.encode(params)
	params.Set("range", rng.param())

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, c.cfg.RetryBackoff, attempt); err != nil {
				return nil, false, &QueryError{Itemtype: itemtype, Err: err}
			}
		}

		dto, partial, retryable, err := c.searchOnce(ctx, itemtype, params)
		if err == nil {
			return dto, partial, nil
		}
		if !retryable {
			return nil, false, err
		}
		lastErr = err
		log.Warn().Err(err).Str("itemtype", itemtype).Int("attempt", attempt+1).Msg("Search request failed, retrying")
	}

	var qe *QueryError
	if errors.As(lastErr, &qe) {
		return nil, false, lastErr
	}
	return nil, false, &QueryError{Itemtype: itemtype, Err: lastErr}
}

func (c *Client) searchOnce(ctx context.Context, itemtype string, params url.Values) (dto *searchDTO, partial bool, retryable bool, err error) {
	resp, err := c.doSessionRequest(ctx, http.MethodGet, "/search/"+itemtype+"?"+params.Encode())
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) {
			return nil, false, false, err
		}
		return nil, false, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		var body searchDTO
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, false, false, &QueryError{Itemtype: itemtype, Err: fmt.Errorf("decoding search response: %w", err)}
		}
		isPartial := resp.StatusCode == http.StatusPartialContent
		if isPartial {
			if total, ok := parseContentRange(resp.Header.Get("Content-Range")); ok {
				body.TotalCount = total
			}
		}
		return &body, isPartial, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, false, true, fmt.Errorf("search returned status %d", resp.StatusCode)
	default:
		return nil, false, false, &QueryError{
			Itemtype:   itemtype,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("search returned status %d", resp.StatusCode),
		}
	}
}

// doSessionRequest issues an authenticated request. A 401 response triggers
// exactly one forced session refresh and retry; the refresh itself is
// single-flight across callers.
func (c *Client) doSessionRequest(ctx context.Context, method, path string) (*http.Response, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.Session(ctx)
		if err != nil {
			return nil, err
		}

		// Per-call timeout is enforced by the underlying http.Client.
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("App-Token", c.cfg.AppToken)
		req.Header.Set("Session-Token", token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.invalidateSession(token)
			log.Debug().Str("path", path).Msg("Session expired, refreshing and retrying")
			continue
		}
		return resp, nil
	}
	return nil, &AuthError{Reason: "request unauthorized after session refresh"}
}

// parseContentRange extracts the total from a "start-end/total" style header,
// tolerating a leading unit such as "items ".
func parseContentRange(header string) (int, bool) {
	if header == "" {
		return 0, false
	}
	if idx := strings.LastIndex(header, "/"); idx >= 0 {
		totalStr := strings.TrimSpace(header[idx+1:])
		if total, err := strconv.Atoi(totalStr); err == nil {
			return total, true
		}
	}
	return 0, false
}
