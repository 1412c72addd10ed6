// Package batch resolves every episode of a series across all listing pages.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/iter"

	"streamrelay/models"
	"streamrelay/services/resolver"
	"streamrelay/utils/filename"
)

// Status strings reported through Hooks.OnStatus.
const (
	StatusComplete = "Complete!"
	StatusError    = "Error occurred."
)

// PageSource returns episode listing pages, typically through the session cache.
type PageSource interface {
	Page(ctx context.Context, series string, page int) (*models.EpisodePage, error)
}

// EpisodeResolver resolves one episode.
type EpisodeResolver interface {
	Resolve(ctx context.Context, ref models.EpisodeRef, opts resolver.Options) models.ResolvedLink
}

// Hooks receive progress while a batch runs. Nil hooks are skipped.
type Hooks struct {
	OnProgress func(percent float64)
	OnStatus   func(status string)
	OnEntry    func(entry models.BatchEntry)
}

func (h Hooks) progress(p float64) {
	if h.OnProgress != nil {
		h.OnProgress(p)
	}
}

func (h Hooks) status(s string) {
	if h.OnStatus != nil {
		h.OnStatus(s)
	}
}

func (h Hooks) entry(e models.BatchEntry) {
	if h.OnEntry != nil {
		h.OnEntry(e)
	}
}

// Request describes one bulk resolution.
type Request struct {
	SeriesSession string
	Title         string // used for download filenames; learned from page 1 when empty
	TotalPages    int    // learned from page 1 when zero
	Mode          models.BatchMode
	Trigger       models.Trigger // defaults to Mode.DefaultTrigger()
}

// Options configures an Orchestrator.
type Options struct {
	MaxParallel    int // per-page goroutine cap in parallel mode, 0 = unbounded
	FilenameSuffix string
}

// Orchestrator walks listing pages and resolves their episodes.
type Orchestrator struct {
	pages    PageSource
	resolver EpisodeResolver
	opts     Options
}

func New(pages PageSource, res EpisodeResolver, opts Options) *Orchestrator {
	return &Orchestrator{pages: pages, resolver: res, opts: opts}
}

// ResolveAll resolves every episode of req.SeriesSession, page by page, in
// source order. Episode failures never stop the batch: sequential mode keeps
// them inline as degraded entries, parallel mode drops them. A page that
// cannot be listed, or a cancelled ctx, ends the batch; the entries collected
// so far are returned with the error.
func (o *Orchestrator) ResolveAll(ctx context.Context, req Request, hooks Hooks) ([]models.BatchEntry, error) {
	if req.SeriesSession == "" {
		return nil, errors.New("batch: series session required")
	}
	if req.Mode != models.BatchParallel && req.Mode != models.BatchSequential {
		return nil, fmt.Errorf("batch: unknown mode %q", req.Mode)
	}
	if req.Trigger == "" {
		req.Trigger = req.Mode.DefaultTrigger()
	}

	var entries []models.BatchEntry
	fail := func(err error) ([]models.BatchEntry, error) {
		hooks.status(StatusError)
		slog.Warn("batch aborted",
			"series", req.SeriesSession,
			"mode", req.Mode,
			"collected", len(entries),
			"error", err,
		)
		return entries, err
	}

	total := req.TotalPages
	var first *models.EpisodePage
	if total <= 0 || req.Title == "" {
		page, err := o.pages.Page(ctx, req.SeriesSession, 1)
		if err != nil {
			return fail(fmt.Errorf("list page 1: %w", err))
		}
		first = page
		if total <= 0 {
			total = max(page.TotalPages, 1)
		}
		if req.Title == "" {
			req.Title = page.Title
		}
	}

	slog.Info("batch started",
		"series", req.SeriesSession,
		"mode", req.Mode,
		"trigger", req.Trigger,
		"pages", total,
	)

	for p := 1; p <= total; p++ {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		hooks.status(fmt.Sprintf("Processing Page %d/%d...", p, total))
		hooks.progress(float64(p-1) / float64(total) * 100)

		page := first
		if p != 1 || page == nil {
			var err error
			page, err = o.pages.Page(ctx, req.SeriesSession, p)
			if err != nil {
				return fail(fmt.Errorf("list page %d: %w", p, err))
			}
		}
		if len(page.Episodes) == 0 {
			continue
		}

		var pageEntries []models.BatchEntry
		var err error
		if req.Mode == models.BatchSequential {
			pageEntries, err = o.sequential(ctx, req, page.Episodes, hooks)
		} else {
			pageEntries = o.parallel(ctx, req, page.Episodes)
			for _, e := range pageEntries {
				hooks.entry(e)
			}
		}
		entries = append(entries, pageEntries...)
		if err != nil {
			return fail(err)
		}
		slog.Info("batch page done",
			"series", req.SeriesSession,
			"page", p,
			"episodes", len(page.Episodes),
			"kept", len(pageEntries),
		)
	}

	hooks.progress(100)
	hooks.status(StatusComplete)
	return entries, nil
}

// sequential resolves episodes one after another; the next bypass is not
// issued before the previous result is in.
func (o *Orchestrator) sequential(ctx context.Context, req Request, refs []models.EpisodeRef, hooks Hooks) ([]models.BatchEntry, error) {
	out := make([]models.BatchEntry, 0, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		ref.SeriesSession = req.SeriesSession
		hooks.status(fmt.Sprintf("Bypassing %s...", ref.DisplayNumber))

		entry := models.BatchEntry{
			DisplayNumber: ref.DisplayNumber.String(),
			Result:        o.resolver.Resolve(ctx, ref, o.options(req, ref, models.ResolveLegacy)),
		}
		out = append(out, entry)
		hooks.entry(entry)
	}
	return out, nil
}

// parallel resolves all episodes of a page at once. Results keep source
// order; failures are dropped.
func (o *Orchestrator) parallel(ctx context.Context, req Request, refs []models.EpisodeRef) []models.BatchEntry {
	limit := o.opts.MaxParallel
	if limit <= 0 {
		limit = len(refs)
	}
	mapper := iter.Mapper[models.EpisodeRef, models.BatchEntry]{MaxGoroutines: limit}
	results := mapper.Map(refs, func(ref *models.EpisodeRef) models.BatchEntry {
		r := *ref
		r.SeriesSession = req.SeriesSession
		return models.BatchEntry{
			DisplayNumber: r.DisplayNumber.String(),
			Result:        o.resolver.Resolve(ctx, r, o.options(req, r, models.ResolveStrict)),
		}
	})
	return lo.Filter(results, func(e models.BatchEntry, _ int) bool {
		return e.Result.OK()
	})
}

func (o *Orchestrator) options(req Request, ref models.EpisodeRef, mode models.ResolveMode) resolver.Options {
	opts := resolver.Options{Mode: mode, Intent: models.IntentPlayback}
	if req.Trigger == models.TriggerBackground {
		opts.Intent = models.IntentDownload
		opts.Filename = filename.Episode(req.Title, ref.DisplayNumber.String(), o.opts.FilenameSuffix)
	}
	return opts
}
