package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"streamrelay/models"
	"streamrelay/services/batch"
	"streamrelay/services/catalog"
	"streamrelay/services/episodes"
	"streamrelay/services/resolver"
	"streamrelay/services/sessions"
	"streamrelay/utils/filename"
)

// SessionHeader carries the browsing session id. The sid query parameter is
// accepted as well for clients that cannot set headers.
const SessionHeader = "X-Session-ID"

// SeriesHandler serves the session-scoped episode, stream and batch endpoints.
// Each browsing session reads through its own episode cache.
type SeriesHandler struct {
	sessions  *sessions.Registry
	catalog   episodes.Source
	bypass    resolver.Bypasser
	jobs      *batch.Jobs
	relayBase string
	batchOpts batch.Options
}

func NewSeriesHandler(reg *sessions.Registry, source episodes.Source, bypass resolver.Bypasser, jobs *batch.Jobs, relayBase string, opts batch.Options) *SeriesHandler {
	return &SeriesHandler{
		sessions:  reg,
		catalog:   source,
		bypass:    bypass,
		jobs:      jobs,
		relayBase: relayBase,
		batchOpts: opts,
	}
}

func (h *SeriesHandler) session(w http.ResponseWriter, r *http.Request) *sessions.Session {
	id := strings.TrimSpace(r.Header.Get(SessionHeader))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("sid"))
	}
	sess := h.sessions.Acquire(id)
	w.Header().Set(SessionHeader, sess.ID)
	return sess
}

func (h *SeriesHandler) catalogFor(sess *sessions.Session) *episodes.CachedCatalog {
	return episodes.NewCachedCatalog(sess.Cache, h.catalog)
}

func (h *SeriesHandler) resolverFor(cc *episodes.CachedCatalog) *resolver.Resolver {
	return resolver.New(cc, h.bypass, h.relayBase)
}

func requestContext(r *http.Request) context.Context {
	return catalog.WithUserAgent(r.Context(), r.Header.Get("User-Agent"))
}

// CreateSession handles POST /api/sessions.
func (h *SeriesHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Create()
	w.Header().Set(SessionHeader, sess.ID)
	writeJSON(w, map[string]string{"sessionId": sess.ID})
}

// DeleteSession handles DELETE /api/sessions/{sid}.
func (h *SeriesHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"status": h.sessions.Drop(mux.Vars(r)["sid"])})
}

// Page handles GET /api/series/{series}/pages/{page}.
func (h *SeriesHandler) Page(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sess := h.session(w, r)
	page, err := h.catalogFor(sess).Page(requestContext(r), vars["series"], parsePage(vars["page"]))
	if err != nil {
		log.Printf("[series] page %s/%s: %v", vars["series"], vars["page"], err)
		writeFailure(w, err)
		return
	}
	writeJSON(w, page)
}

// Links handles GET /api/series/{series}/episodes/{episode}/links.
func (h *SeriesHandler) Links(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sess := h.session(w, r)
	links, err := h.catalogFor(sess).Links(requestContext(r), vars["series"], vars["episode"])
	if err != nil {
		log.Printf("[series] links %s/%s: %v", vars["series"], vars["episode"], err)
		writeFailure(w, err)
		return
	}
	if links == nil {
		links = []models.StreamCandidate{}
	}
	writeJSON(w, links)
}

type streamSource struct {
	Quality  string `json:"quality"`
	Language string `json:"language,omitempty"`
	URL      string `json:"url"`
}

type streamsResponse struct {
	Sources []streamSource `json:"sources"`
	Failed  int            `json:"failed"`
}

// Streams handles GET /api/series/{series}/episodes/{episode}/streams: every
// candidate resolved for playback, best label first.
func (h *SeriesHandler) Streams(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sess := h.session(w, r)
	cc := h.catalogFor(sess)
	ref := models.EpisodeRef{SeriesSession: vars["series"], EpisodeSession: vars["episode"]}

	links, err := h.resolverFor(cc).ResolveQualities(requestContext(r), ref)
	if err != nil {
		writeFailure(w, err)
		return
	}
	resp := streamsResponse{Sources: []streamSource{}}
	for _, link := range links {
		if !link.OK() {
			resp.Failed++
			continue
		}
		resp.Sources = append(resp.Sources, streamSource{
			Quality:  link.Label,
			Language: models.StreamCandidate{Label: link.Label}.Language(),
			URL:      link.DirectURL,
		})
	}
	writeJSON(w, resp)
}

type resolveResponse struct {
	models.ResolvedLink
	Display string `json:"display"`
}

// Resolve handles GET /api/series/{series}/episodes/{episode}/resolve. Query:
// intent=playback|download, mode=strict|legacy, filename, number (episode
// number used to name downloads when filename is absent).
func (h *SeriesHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := r.URL.Query()
	sess := h.session(w, r)
	cc := h.catalogFor(sess)

	opts := resolver.Options{
		Mode:     models.ParseResolveMode(q.Get("mode")),
		Intent:   models.ParseIntent(q.Get("intent")),
		Filename: strings.TrimSpace(q.Get("filename")),
	}
	if opts.Intent == models.IntentDownload && opts.Filename == "" {
		opts.Filename = filename.Episode(sess.Cache.Title(vars["series"]), q.Get("number"), h.batchOpts.FilenameSuffix)
	}

	ref := models.EpisodeRef{
		SeriesSession:  vars["series"],
		EpisodeSession: vars["episode"],
		DisplayNumber:  models.FlexibleText(q.Get("number")),
	}
	link := h.resolverFor(cc).Resolve(requestContext(r), ref, opts)
	writeJSON(w, resolveResponse{ResolvedLink: link, Display: link.Display()})
}

type batchRequest struct {
	Mode       string `json:"mode"`
	Trigger    string `json:"trigger"`
	Title      string `json:"title"`
	TotalPages int    `json:"totalPages"`
}

// StartBatch handles POST /api/series/{series}/batch. The batch runs in the
// background; poll GetBatch with the returned job id.
func (h *SeriesHandler) StartBatch(w http.ResponseWriter, r *http.Request) {
	series := mux.Vars(r)["series"]
	sess := h.session(w, r)

	var body batchRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeFailure(w, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}
	mode, ok := models.ParseBatchMode(body.Mode)
	if !ok {
		writeFailure(w, fmt.Errorf("unknown batch mode %q", body.Mode))
		return
	}

	req := batch.Request{
		SeriesSession: series,
		Title:         strings.TrimSpace(body.Title),
		TotalPages:    body.TotalPages,
		Mode:          mode,
		Trigger:       models.ParseTrigger(body.Trigger, mode.DefaultTrigger()),
	}
	if req.Title == "" {
		req.Title = sess.Cache.Title(series)
	}
	if req.TotalPages <= 0 {
		if total, ok := sess.Cache.TotalPages(series); ok {
			req.TotalPages = total
		}
	}

	cc := h.catalogFor(sess)
	orch := batch.New(cc, h.resolverFor(cc), h.batchOpts)
	userAgent := r.Header.Get("User-Agent")
	snap := h.jobs.Start(req, func(ctx context.Context, hooks batch.Hooks) ([]models.BatchEntry, error) {
		return orch.ResolveAll(catalog.WithUserAgent(ctx, userAgent), req, hooks)
	})
	writeJSON(w, map[string]any{"status": true, "jobId": snap.ID, "sessionId": sess.ID})
}

// GetBatch handles GET /api/batch/{jobId}.
func (h *SeriesHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.jobs.Get(mux.Vars(r)["jobId"])
	if !ok {
		writeFailure(w, errors.New("job not found"))
		return
	}
	writeJSON(w, snap)
}

// CancelBatch handles DELETE /api/batch/{jobId}.
func (h *SeriesHandler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"status": h.jobs.Cancel(mux.Vars(r)["jobId"])})
}

// BatchLinks handles GET /api/batch/{jobId}/links.txt: one "<episode>: <link>"
// line per entry, ready to paste into a download manager.
func (h *SeriesHandler) BatchLinks(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.jobs.Get(mux.Vars(r)["jobId"])
	if !ok {
		writeFailure(w, errors.New("job not found"))
		return
	}
	var b strings.Builder
	for _, e := range snap.Entries {
		b.WriteString(e.DisplayNumber)
		b.WriteString(": ")
		b.WriteString(e.Result.Display())
		b.WriteString("\n")
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(b.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(b.String())); err != nil && !isClientGone(err) {
		log.Printf("[series] write links: %v", err)
	}
}
