package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/scheduler"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/search"
)

// Searcher runs filtered property searches
type Searcher interface {
	FilterSearch(params search.FilterParams) (*search.SearchResult, error)
}

// BreakerStatus reports the state of the listings circuit breaker
type BreakerStatus interface {
	GetStatus() (isOpen bool, failures int, total int)
}

// PublicHandler serves health, search and schedule preview
type PublicHandler struct {
	searcher Searcher
	upstream BreakerStatus
	loc      *time.Location
	now      func() time.Time
}

// NewPublicHandler creates a public handler. searcher may be nil when search is disabled,
// upstream when there is no listings client.
func NewPublicHandler(searcher Searcher, upstream BreakerStatus, loc *time.Location) *PublicHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &PublicHandler{searcher: searcher, upstream: upstream, loc: loc, now: time.Now}
}

// Health handles GET /health. An open listings breaker reports "degraded".
func (h *PublicHandler) Health(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"time":   h.now().UTC(),
	}
	if h.upstream != nil {
		isOpen, failures, total := h.upstream.GetStatus()
		if isOpen {
			body["status"] = "degraded"
		}
		body["listings_breaker"] = gin.H{
			"open":     isOpen,
			"failures": failures,
			"requests": total,
		}
	}
	c.JSON(http.StatusOK, body)
}

// NextRun handles GET /api/schedules/next-run?cron=
func (h *PublicHandler) NextRun(c *gin.Context) {
	spec := strings.TrimSpace(c.Query("cron"))
	if spec == "" {
		respondError(c, http.StatusBadRequest, errors.New("cron query parameter is required"))
		return
	}

	now := h.now().In(h.loc)
	next, err := scheduler.NextRun(spec, now)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"cron":     spec,
		"timezone": h.loc.String(),
		"next_run": next,
	})
}

// SearchProperties handles GET /api/properties/search
func (h *PublicHandler) SearchProperties(c *gin.Context) {
	if h.searcher == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("search is not enabled"))
		return
	}

	params, err := parseFilterParams(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := h.searcher.FilterSearch(params)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"hits":               result.Hits,
		"total_hits":         result.TotalHits,
		"facets":             result.Facets,
		"processing_time_ms": result.ProcessingTime,
	})
}

func parseFilterParams(c *gin.Context) (search.FilterParams, error) {
	params := search.FilterParams{
		Query:         c.Query("q"),
		Area:          c.Query("area"),
		Purpose:       c.Query("purpose"),
		SortBy:        c.Query("sort"),
		PublishedOnly: true,
		ActiveOnly:    true,
	}
	if types := c.Query("types"); types != "" {
		params.PropertyTypes = strings.Split(types, ",")
	}
	if facets := c.Query("facets"); facets != "" {
		params.Facets = strings.Split(facets, ",")
	}

	for name, dest := range map[string]**int64{"min_price": &params.MinPrice, "max_price": &params.MaxPrice} {
		if raw := c.Query(name); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return params, errors.New("invalid " + name)
			}
			*dest = &v
		}
	}
	for name, dest := range map[string]**int{"min_bedrooms": &params.MinBedrooms, "max_bedrooms": &params.MaxBedrooms} {
		if raw := c.Query(name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return params, errors.New("invalid " + name)
			}
			*dest = &v
		}
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit <= 0 {
			return params, errors.New("invalid limit")
		}
		if limit > 100 {
			limit = 100
		}
		params.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || offset < 0 {
			return params, errors.New("invalid offset")
		}
		params.Offset = offset
	}
	return params, nil
}
