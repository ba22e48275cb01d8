// Package httpapi maps HTTP requests onto the dashboard service. It carries
// no business logic: parameter parsing and JSON responses only.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"deskwatch/internal/dashboard"
	"deskwatch/internal/itsm"
	"deskwatch/internal/metrics"
	"deskwatch/internal/ranking"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// requestTimeout caps the end-to-end handling of one dashboard request.
const requestTimeout = 60 * time.Second

// NewRouter builds the gin engine serving the dashboard API.
func NewRouter(svc *dashboard.Service, corsOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		}))
	}

	api := r.Group("/api")
	api.GET("/metrics", handleMetrics(svc))
	api.GET("/metrics/filtered", handleFilteredMetrics(svc))
	api.GET("/ranking", handleRanking(svc))
	api.GET("/health", handleHealth(svc))
	api.GET("/cache/stats", handleCacheStats(svc))

	return r
}

func handleMetrics(svc *dashboard.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseMetricsQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		snap, err := svc.GetMetrics(ctx, q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

func handleFilteredMetrics(svc *dashboard.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseMetricsQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		snap, err := svc.GetFilteredMetrics(ctx, q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

func handleRanking(svc *dashboard.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		dateRange, err := parseDateRange(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		q := ranking.Query{
			DateRange: dateRange,
			Level:     c.Query("level"),
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		result, err := svc.GetTechnicianRanking(ctx, q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleHealth(svc *dashboard.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()
		c.JSON(http.StatusOK, svc.HealthCheck(ctx))
	}
}

func handleCacheStats(svc *dashboard.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.CacheStats())
	}
}

func parseMetricsQuery(c *gin.Context) (metrics.Query, error) {
	dateRange, err := parseDateRange(c)
	if err != nil {
		return metrics.Query{}, err
	}

	q := metrics.Query{
		DateRange: dateRange,
		Level:     c.Query("level"),
		Category:  c.Query("category"),
	}
	if raw := c.Query("priority"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return metrics.Query{}, err
		}
		q.Priority = v
	}
	if raw := c.Query("technician"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return metrics.Query{}, err
		}
		q.TechnicianID = v
	}
	return q, nil
}

func parseDateRange(c *gin.Context) (itsm.DateRange, error) {
	var r itsm.DateRange
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return r, err
		}
		r.Start = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return r, err
		}
		r.End = t
	}
	return r, r.Validate()
}

// writeError maps provider-side failures to 502 and everything else to 500.
// Validation failures are handled before the service is invoked.
func writeError(c *gin.Context, err error) {
	var authErr *itsm.AuthError
	var queryErr *itsm.QueryError
	var aggErr *metrics.AggregationError
	if errors.As(err, &authErr) || errors.As(err, &queryErr) || errors.As(err, &aggErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
