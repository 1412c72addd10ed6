package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"streamrelay/models"
	"streamrelay/services/catalog"
)

// CatalogService is the catalog surface the entry router exposes.
type CatalogService interface {
	Episodes(ctx context.Context, series string, page int) (*models.EpisodePage, error)
	Links(ctx context.Context, series, episode string) ([]models.StreamCandidate, error)
	Search(ctx context.Context, query string) (*models.SearchResult, error)
	Airing(ctx context.Context, page int) (*models.AiringResult, error)
}

// EntryHandler serves the query-driven catalog front door: the `method`
// parameter selects series, episode, search or airing.
type EntryHandler struct {
	catalog CatalogService
}

func NewEntryHandler(catalog CatalogService) *EntryHandler {
	return &EntryHandler{catalog: catalog}
}

// usage is returned when no method is given.
var usage = map[string]string{
	"session": "ANIME ID",
	"method":  "METHOD - (series | episode | search | airing)",
	"page":    "PAGE NO (Required with series/airing method)",
	"ep":      "EPisode ID",
}

var errUnknownMethod = errors.New("unknown method")

// Serve dispatches on the method query parameter. Every failure is answered
// with HTTP 200 and an in-band falsy body.
func (h *EntryHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userAgent := r.Header.Get("User-Agent")
	if strings.TrimSpace(userAgent) == "" {
		writeJSON(w, map[string]bool{"userAgent": false})
		return
	}

	q := r.URL.Query()
	method := strings.TrimSpace(q.Get("method"))
	if method == "" {
		writeJSON(w, usage)
		return
	}

	ctx := catalog.WithUserAgent(r.Context(), userAgent)
	session := strings.TrimSpace(q.Get("session"))

	var (
		result any
		err    error
	)
	switch method {
	case "series":
		if session == "" {
			err = catalog.ErrMissingParam
			break
		}
		result, err = h.catalog.Episodes(ctx, session, parsePage(q.Get("page")))
	case "episode":
		ep := strings.TrimSpace(q.Get("ep"))
		if session == "" || ep == "" {
			err = catalog.ErrMissingParam
			break
		}
		result, err = h.catalog.Links(ctx, session, ep)
	case "search":
		query := strings.TrimSpace(q.Get("query"))
		if query == "" {
			err = catalog.ErrMissingParam
			break
		}
		result, err = h.catalog.Search(ctx, query)
	case "airing":
		result, err = h.catalog.Airing(ctx, parsePage(q.Get("page")))
	default:
		err = errUnknownMethod
	}

	if err != nil {
		log.Printf("[entry] method=%s session=%q: %v", method, session, err)
		writeJSON(w, map[string]bool{"status": false})
		return
	}
	writeJSON(w, result)
}

// parsePage returns the 1-based page in value, or 1 when absent or invalid.
func parsePage(value string) int {
	page, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
