package itsm

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Logical field names resolvable through the Field Discovery Cache.
const (
	FieldID           = "ID"
	FieldTitle        = "TITLE"
	FieldStatus       = "STATUS"
	FieldPriority     = "PRIORITY"
	FieldGroup        = "GROUP"
	FieldCategory     = "CATEGORY"
	FieldTechnician   = "TECHNICIAN"
	FieldDateCreation = "DATE_CREATION"
	FieldDateMod      = "DATE_MOD"
)

// Provider status codes for tickets.
const (
	StatusNew        = 1
	StatusInProgress = 2
	StatusPlanned    = 3
	StatusPending    = 4
	StatusSolved     = 5
	StatusClosed     = 6
)

// Config holds the connection and pagination settings for the ITSM provider.
type Config struct {
	BaseURL   string
	AppToken  string
	UserToken string

	// Per-call timeout; must stay below the end-to-end request deadline.
	RequestTimeout time.Duration

	// Pagination settings for the search endpoint.
	PageSize int
	MaxPages int

	// Retry policy for transient failures.
	MaxRetries   int
	RetryBackoff time.Duration

	// Profile ID identifying technician users on the provider.
	TechnicianProfileID int
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.PageSize == 0 {
		c.PageSize = 500
	}
	if c.MaxPages == 0 {
		c.MaxPages = 50
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.TechnicianProfileID == 0 {
		c.TechnicianProfileID = 6
	}
}

// Client talks to the session-based ITSM REST API. It owns the process-wide
// session credential and the discovered field map; both are safe for
// concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client

	sessionMu    sync.RWMutex
	sessionToken string
	sessionAt    time.Time
	loginGroup   singleflight.Group

	fieldsMu    sync.RWMutex
	fields      map[string]int
	fieldsGroup singleflight.Group
}

// NewClient creates a provider client from the given configuration.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// Ping reports whether the provider is reachable and accepts our credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Session(ctx)
	return err
}
