package itsm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Session returns the current session token, performing the login exchange if
// no session exists. Concurrent callers during a refresh share a single
// in-flight login.
func (c *Client) Session(ctx context.Context) (string, error) {
	c.sessionMu.RLock()
	token := c.sessionToken
	c.sessionMu.RUnlock()
	if token != "" {
		return token, nil
	}

	v, err, _ := c.loginGroup.Do("login", func() (interface{}, error) {
		// Re-check: another caller may have refreshed while we queued.
		c.sessionMu.RLock()
		existing := c.sessionToken
		c.sessionMu.RUnlock()
		if existing != "" {
			return existing, nil
		}
		return c.login(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// login performs the session-init exchange, retrying transient failures.
// Credential rejection is surfaced immediately as AuthError.
func (c *Client) login(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, c.cfg.RetryBackoff, attempt); err != nil {
				return "", &AuthError{Reason: "login cancelled", Err: err}
			}
		}

		token, retryable, err := c.loginOnce(ctx)
		if err == nil {
			c.sessionMu.Lock()
			c.sessionToken = token
			c.sessionAt = time.Now()
			c.sessionMu.Unlock()
			log.Info().Msg("ITSM session established")
			return token, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("ITSM login failed, retrying")
	}
	return "", &AuthError{Reason: "login retries exhausted", Err: lastErr}
}

func (c *Client) loginOnce(ctx context.Context) (token string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/initSession", nil)
	if err != nil {
		return "", false, &AuthError{Reason: "building login request", Err: err}
	}
	req.Header.Set("App-Token", c.cfg.AppToken)
	req.Header.Set("Authorization", fmt.Sprintf("user_token %s", c.cfg.UserToken))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var dto sessionDTO
		if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
			return "", false, &AuthError{Reason: "decoding session response", Err: err}
		}
		if dto.SessionToken == "" {
			return "", false, &AuthError{Reason: "provider returned empty session token"}
		}
		return dto.SessionToken, false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return "", false, &AuthError{Reason: fmt.Sprintf("credentials rejected (status %d)", resp.StatusCode)}
	default:
		return "", true, fmt.Errorf("login returned status %d", resp.StatusCode)
	}
}

// invalidateSession discards the session token, but only if it still matches
// the one the failed call used. A newer token refreshed by another caller is
// left intact.
func (c *Client) invalidateSession(stale string) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.sessionToken == stale {
		c.sessionToken = ""
		log.Debug().Msg("ITSM session invalidated")
	}
}

// Close releases the provider session. Best effort: errors are logged only.
func (c *Client) Close() {
	c.sessionMu.Lock()
	token := c.sessionToken
	c.sessionToken = ""
	c.sessionMu.Unlock()
	if token == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/killSession", nil)
	if err != nil {
		return
	}
	req.Header.Set("App-Token", c.cfg.AppToken)
	req.Header.Set("Session-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to close ITSM session")
		return
	}
	resp.Body.Close()
}

// sleepBackoff waits for an exponentially growing delay, honoring cancellation.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	delay := base << (attempt - 1)
	if max := 10 * time.Second; delay > max {
		delay = max
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
