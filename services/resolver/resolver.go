// Package resolver turns an episode reference into relay URLs: it picks the
// preferred stream candidate, sends it through the bypass service and wraps
// the direct URL in a relay directive.
package resolver

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/samber/mo"
	"github.com/sourcegraph/conc/iter"

	"streamrelay/models"
)

const (
	ErrNoSources    = "no sources"
	ErrBypassFailed = "bypass failed"
)

// CandidateSource lists the stream candidates of an episode.
type CandidateSource interface {
	Links(ctx context.Context, series, episode string) ([]models.StreamCandidate, error)
}

// Bypasser converts an obfuscated link into a direct URL.
type Bypasser interface {
	Bypass(ctx context.Context, link string) mo.Result[string]
}

// Options controls a single resolution.
type Options struct {
	Mode     models.ResolveMode
	Intent   models.Intent
	Filename string // only used with IntentDownload
}

// Resolver is stateless; build one per candidate source.
type Resolver struct {
	source    CandidateSource
	bypass    Bypasser
	relayBase string
}

func New(source CandidateSource, bypass Bypasser, relayBase string) *Resolver {
	return &Resolver{source: source, bypass: bypass, relayBase: strings.TrimRight(relayBase, "/")}
}

// SelectPreferred returns the index of the first candidate whose label
// contains "1080", else the index of the last candidate, else -1.
func SelectPreferred(candidates []models.StreamCandidate) int {
	for i, c := range candidates {
		if strings.Contains(c.Label, "1080") {
			return i
		}
	}
	return len(candidates) - 1
}

// Resolve resolves the preferred candidate of ref.
func (r *Resolver) Resolve(ctx context.Context, ref models.EpisodeRef, opts Options) models.ResolvedLink {
	candidates, err := r.source.Links(ctx, ref.SeriesSession, ref.EpisodeSession)
	if err != nil {
		log.Printf("[resolver] candidates for %s/%s: %v", ref.SeriesSession, ref.EpisodeSession, err)
		return models.ResolvedLink{Error: ErrNoSources}
	}
	idx := SelectPreferred(candidates)
	if idx < 0 {
		return models.ResolvedLink{Error: ErrNoSources}
	}
	return r.resolveCandidate(ctx, candidates[idx], opts)
}

// ResolveQualities bypasses every candidate of ref concurrently for playback
// and returns them sorted by label, descending, in plain string order. Failed
// candidates are kept as error entries. An error means the candidate list
// itself could not be fetched.
func (r *Resolver) ResolveQualities(ctx context.Context, ref models.EpisodeRef) ([]models.ResolvedLink, error) {
	candidates, err := r.source.Links(ctx, ref.SeriesSession, ref.EpisodeSession)
	if err != nil {
		log.Printf("[resolver] candidates for %s/%s: %v", ref.SeriesSession, ref.EpisodeSession, err)
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	opts := Options{Mode: models.ResolveStrict, Intent: models.IntentPlayback}
	links := iter.Map(candidates, func(c *models.StreamCandidate) models.ResolvedLink {
		return r.resolveCandidate(ctx, *c, opts)
	})
	SortByLabelDesc(links)
	return links, nil
}

// SortByLabelDesc orders links by descending label using byte-wise string
// comparison. This is not a numeric sort: "720p" precedes "1080p".
func SortByLabelDesc(links []models.ResolvedLink) {
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].Label > links[j].Label
	})
}

func (r *Resolver) resolveCandidate(ctx context.Context, cand models.StreamCandidate, opts Options) models.ResolvedLink {
	direct, err := r.bypass.Bypass(ctx, cand.SourceLink).Get()
	if err != nil {
		log.Printf("[resolver] bypass %q failed: %v", cand.Label, err)
		link := models.ResolvedLink{Label: cand.Label, Error: ErrBypassFailed}
		if opts.Mode == models.ResolveLegacy {
			link.SourceLink = cand.SourceLink
		}
		return link
	}
	return models.ResolvedLink{
		Label:     cand.Label,
		DirectURL: r.relayURL(direct, opts),
	}
}

func (r *Resolver) relayURL(direct string, opts Options) string {
	d := models.RelayDirective{TargetURL: direct, RewriteHeaders: true}
	if opts.Intent == models.IntentDownload {
		d.ForceDownload = true
		d.Filename = opts.Filename
	}
	return d.Encode(r.relayBase)
}
