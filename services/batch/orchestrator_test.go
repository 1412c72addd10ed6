package batch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"

	"streamrelay/models"
	"streamrelay/services/resolver"
)

type fakePages struct {
	pages   map[int]*models.EpisodePage
	failAt  int
	mu      sync.Mutex
	fetched []int
}

func (f *fakePages) Page(_ context.Context, _ string, page int) (*models.EpisodePage, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, page)
	f.mu.Unlock()
	if page == f.failAt {
		return nil, errors.New("catalog unreachable")
	}
	p, ok := f.pages[page]
	if !ok {
		return &models.EpisodePage{Page: page}, nil
	}
	return p, nil
}

func listing(title string, total int, perPage ...[]string) map[int]*models.EpisodePage {
	out := make(map[int]*models.EpisodePage)
	for i, eps := range perPage {
		page := &models.EpisodePage{Title: title, Page: i + 1, TotalPages: total}
		for _, ep := range eps {
			page.Episodes = append(page.Episodes, models.EpisodeRef{EpisodeSession: "sess-" + ep, DisplayNumber: models.FlexibleText(ep)})
		}
		out[i+1] = page
	}
	return out
}

// recordingResolver resolves every episode successfully unless listed in
// fail, and records call order and concurrency.
type recordingResolver struct {
	mu          sync.Mutex
	calls       []string
	opts        []resolver.Options
	inFlight    int
	maxInFlight int
	fail        map[string]bool
	delay       func(ep string) time.Duration
}

func (r *recordingResolver) Resolve(ctx context.Context, ref models.EpisodeRef, opts resolver.Options) models.ResolvedLink {
	r.mu.Lock()
	r.calls = append(r.calls, ref.EpisodeSession)
	r.opts = append(r.opts, opts)
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.mu.Unlock()

	if r.delay != nil {
		time.Sleep(r.delay(ref.EpisodeSession))
	}

	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()

	if r.fail[ref.EpisodeSession] {
		link := models.ResolvedLink{Label: "720p", Error: resolver.ErrBypassFailed}
		if opts.Mode == models.ResolveLegacy {
			link.SourceLink = "https://kwik.example/" + ref.EpisodeSession
		}
		return link
	}
	return models.ResolvedLink{Label: "1080p", DirectURL: "http://relay/proxy?proxyUrl=" + ref.EpisodeSession + "&modify"}
}

func displayNumbers(entries []models.BatchEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.DisplayNumber
	}
	return out
}

func TestResolveAllTwoPagesInOrder(t *testing.T) {
	for _, mode := range []models.BatchMode{models.BatchParallel, models.BatchSequential} {
		t.Run(string(mode), func(t *testing.T) {
			pages := &fakePages{pages: listing("Show", 2, []string{"1", "2", "3"}, []string{"4", "5"})}
			res := &recordingResolver{delay: func(ep string) time.Duration {
				// Earlier episodes finish later to scramble completion order.
				switch ep {
				case "sess-1", "sess-4":
					return 30 * time.Millisecond
				case "sess-2":
					return 10 * time.Millisecond
				}
				return 0
			}}
			o := New(pages, res, Options{})

			entries, err := o.ResolveAll(context.Background(), Request{SeriesSession: "s", TotalPages: 2, Mode: mode}, Hooks{})
			if err != nil {
				t.Fatalf("ResolveAll: %v", err)
			}
			got := strings.Join(displayNumbers(entries), ",")
			if got != "1,2,3,4,5" {
				t.Fatalf("expected page-then-episode order, got %s", got)
			}
			for _, e := range entries {
				if !e.Result.OK() {
					t.Fatalf("unexpected failure %+v", e)
				}
			}
		})
	}
}

func TestSequentialIssuesCallsInSourceOrder(t *testing.T) {
	pages := &fakePages{pages: listing("Show", 1, []string{"1", "2", "3", "4"})}
	res := &recordingResolver{delay: func(string) time.Duration { return 2 * time.Millisecond }}

	var statuses []string
	hooks := Hooks{OnStatus: func(s string) { statuses = append(statuses, s) }}
	if _, err := New(pages, res, Options{}).ResolveAll(context.Background(), Request{SeriesSession: "s", TotalPages: 1, Mode: models.BatchSequential}, hooks); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}

	if res.maxInFlight != 1 {
		t.Fatalf("sequential mode overlapped calls: max in flight %d", res.maxInFlight)
	}
	if got := strings.Join(res.calls, ","); got != "sess-1,sess-2,sess-3,sess-4" {
		t.Fatalf("unexpected call order %s", got)
	}
	want := []string{"Processing Page 1/1...", "Bypassing 1...", "Bypassing 2...", "Bypassing 3...", "Bypassing 4...", StatusComplete}
	if strings.Join(statuses, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected statuses %q", statuses)
	}
}

func TestParallelRunsConcurrently(t *testing.T) {
	pages := &fakePages{pages: listing("Show", 1, []string{"1", "2", "3", "4"})}
	res := &recordingResolver{delay: func(string) time.Duration { return 20 * time.Millisecond }}

	if _, err := New(pages, res, Options{}).ResolveAll(context.Background(), Request{SeriesSession: "s", TotalPages: 1, Mode: models.BatchParallel}, Hooks{}); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if res.maxInFlight < 2 {
		t.Fatalf("expected concurrent resolution, max in flight %d", res.maxInFlight)
	}
}

func TestParallelRespectsMaxParallel(t *testing.T) {
	pages := &fakePages{pages: listing("Show", 1, []string{"1", "2", "3", "4", "5", "6"})}
	res := &recordingResolver{delay: func(string) time.Duration { return 5 * time.Millisecond }}

	if _, err := New(pages, res, Options{MaxParallel: 2}).ResolveAll(context.Background(), Request{SeriesSession: "s", TotalPages: 1, Mode: models.BatchParallel}, Hooks{}); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if res.maxInFlight > 2 {
		t.Fatalf("cap exceeded: %d", res.maxInFlight)
	}
}

func TestFailurePolicyByMode(t *testing.T) {
	newPages := func() *fakePages { return &fakePages{pages: listing("Show", 1, []string{"1", "2", "3"})} }

	seq, err := New(newPages(), &recordingResolver{fail: map[string]bool{"sess-2": true}}, Options{}).
		ResolveAll(context.Background(), Request{SeriesSession: "s", TotalPages: 1, Mode: models.BatchSequential}, Hooks{})
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	if len(seq) != 3 {
		t.Fatalf("sequential mode must keep failures, got %d entries", len(seq))
	}
	if got := seq[1].Result.Display(); got != "https://kwik.example/sess-2 (Bypass Failed)" {
		t.Fatalf("unexpected degraded display %q", got)
	}

	par, err := New(newPages(), &recordingResolver{fail: map[string]bool{"sess-2": true}}, Options{}).
		ResolveAll(context.Background(), Request{SeriesSession: "s", TotalPages: 1, Mode: models.BatchParallel}, Hooks{})
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if got := strings.Join(displayNumbers(par), ","); got != "1,3" {
		t.Fatalf("parallel mode must drop failures, got %s", got)
	}
}

type fakeCatalog struct {
	links map[string][]models.StreamCandidate
}

func (f fakeCatalog) Links(_ context.Context, _, episode string) ([]models.StreamCandidate, error) {
	return f.links[episode], nil
}

type failingBypass struct{}

func (failingBypass) Bypass(context.Context, string) mo.Result[string] {
	return mo.Err[string](errors.New("bypass: link expired"))
}

func TestSingleFailedCandidateEndToEnd(t *testing.T) {
	catalog := fakeCatalog{links: map[string][]models.StreamCandidate{
		"sess-1": {{Label: "480p", SourceLink: "https://kwik.example/480"}},
	}}
	res := resolver.New(catalog, failingBypass{}, "http://relay.local")
	pages := &fakePages{pages: listing("Show", 1, []string{"1"})}

	seq, err := New(pages, res, Options{}).ResolveAll(context.Background(), Request{SeriesSession: "s", TotalPages: 1, Mode: models.BatchSequential}, Hooks{})
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	if len(seq) != 1 || seq[0].Result.Display() != "https://kwik.example/480 (Bypass Failed)" {
		t.Fatalf("unexpected sequential result %+v", seq)
	}

	par, err := New(pages, res, Options{}).ResolveAll(context.Background(), Request{SeriesSession: "s", TotalPages: 1, Mode: models.BatchParallel}, Hooks{})
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if len(par) != 0 {
		t.Fatalf("expected parallel mode to omit the failure, got %+v", par)
	}
}

func TestPageFailureAbortsWithPartialResults(t *testing.T) {
	pages := &fakePages{pages: listing("Show", 3, []string{"1", "2"}, nil, []string{"5"}), failAt: 2}

	var statuses []string
	var progress []float64
	hooks := Hooks{
		OnStatus:   func(s string) { statuses = append(statuses, s) },
		OnProgress: func(p float64) { progress = append(progress, p) },
	}
	entries, err := New(pages, &recordingResolver{}, Options{}).
		ResolveAll(context.Background(), Request{SeriesSession: "s", TotalPages: 3, Mode: models.BatchSequential}, hooks)
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(entries) != 2 {
		t.Fatalf("expected entries of page 1 to be returned, got %d", len(entries))
	}
	if statuses[len(statuses)-1] != StatusError {
		t.Fatalf("expected error status, got %q", statuses[len(statuses)-1])
	}
	for _, p := range progress {
		if p == 100 {
			t.Fatal("aborted batch must not report completion")
		}
	}
}

func TestProgressPerPageBoundary(t *testing.T) {
	pages := &fakePages{pages: listing("Show", 4, []string{"1"}, []string{"2"}, nil, []string{"4"})}

	var progress []string
	hooks := Hooks{OnProgress: func(p float64) { progress = append(progress, fmt.Sprintf("%.0f", p)) }}
	if _, err := New(pages, &recordingResolver{}, Options{}).
		ResolveAll(context.Background(), Request{SeriesSession: "s", TotalPages: 4, Mode: models.BatchParallel}, hooks); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if got := strings.Join(progress, ","); got != "0,25,50,75,100" {
		t.Fatalf("unexpected progress %s", got)
	}
}

func TestTotalPagesAndTitleLearnedFromFirstPage(t *testing.T) {
	pages := &fakePages{pages: listing("My Show", 2, []string{"1"}, []string{"2"})}
	res := &recordingResolver{}

	entries, err := New(pages, res, Options{FilenameSuffix: "_hd"}).
		ResolveAll(context.Background(), Request{SeriesSession: "s", Mode: models.BatchSequential}, Hooks{})
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if got := strings.Join(func() []string {
		out := make([]string, len(pages.fetched))
		for i, p := range pages.fetched {
			out[i] = fmt.Sprint(p)
		}
		return out
	}(), ","); got != "1,2" {
		t.Fatalf("page 1 must be fetched once, fetched %s", got)
	}

	// Sequential defaults to background downloads named after the series.
	if res.opts[0].Intent != models.IntentDownload || res.opts[0].Filename != "My_Show_1_hd.mp4" {
		t.Fatalf("unexpected options %+v", res.opts[0])
	}
	if res.opts[0].Mode != models.ResolveLegacy {
		t.Fatalf("sequential mode should resolve in legacy mode, got %s", res.opts[0].Mode)
	}
}

func TestTriggerSelectsIntent(t *testing.T) {
	pages := &fakePages{pages: listing("Show", 1, []string{"1"})}
	res := &recordingResolver{}
	_, err := New(pages, res, Options{}).ResolveAll(context.Background(),
		Request{SeriesSession: "s", TotalPages: 1, Mode: models.BatchSequential, Trigger: models.TriggerOpen}, Hooks{})
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if res.opts[0].Intent != models.IntentPlayback || res.opts[0].Filename != "" {
		t.Fatalf("open trigger must use playback intent, got %+v", res.opts[0])
	}

	res = &recordingResolver{}
	_, err = New(pages, res, Options{}).ResolveAll(context.Background(),
		Request{SeriesSession: "s", TotalPages: 1, Mode: models.BatchParallel, Trigger: models.TriggerBackground}, Hooks{})
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if res.opts[0].Intent != models.IntentDownload || res.opts[0].Mode != models.ResolveStrict {
		t.Fatalf("unexpected options %+v", res.opts[0])
	}
}

func TestCancelledContextStopsBatch(t *testing.T) {
	pages := &fakePages{pages: listing("Show", 1, []string{"1", "2", "3"})}
	ctx, cancel := context.WithCancel(context.Background())
	res := &recordingResolver{}
	hooks := Hooks{OnEntry: func(models.BatchEntry) { cancel() }}

	entries, err := New(pages, res, Options{}).ResolveAll(ctx, Request{SeriesSession: "s", TotalPages: 1, Mode: models.BatchSequential}, hooks)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the first entry to be kept, got %d", len(entries))
	}
}

func TestRejectsInvalidRequests(t *testing.T) {
	o := New(&fakePages{}, &recordingResolver{}, Options{})
	if _, err := o.ResolveAll(context.Background(), Request{Mode: models.BatchParallel}, Hooks{}); err == nil {
		t.Fatal("expected error for missing series")
	}
	if _, err := o.ResolveAll(context.Background(), Request{SeriesSession: "s", Mode: "turbo"}, Hooks{}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestRelayURLsCarryFilename(t *testing.T) {
	catalog := fakeCatalog{links: map[string][]models.StreamCandidate{
		"sess-7": {{Label: "720p", SourceLink: "a"}, {Label: "1080p", SourceLink: "b"}},
	}}
	res := resolver.New(catalog, okBypass{}, "http://relay.local")
	pages := &fakePages{pages: listing("Show", 1, []string{"7"})}

	entries, err := New(pages, res, Options{}).ResolveAll(context.Background(),
		Request{SeriesSession: "s", TotalPages: 1, Mode: models.BatchSequential}, Hooks{})
	if err != nil || len(entries) != 1 {
		t.Fatalf("unexpected result %+v err=%v", entries, err)
	}
	u, err := url.Parse(entries[0].Result.DirectURL)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("proxyUrl") != "https://cdn.example/b" || q.Get("filename") != "Show_7.mp4" || !q.Has("download") {
		t.Fatalf("unexpected relay url %s", entries[0].Result.DirectURL)
	}
}

type okBypass struct{}

func (okBypass) Bypass(_ context.Context, link string) mo.Result[string] {
	return mo.Ok("https://cdn.example/" + link)
}
