// Package episodes holds the per-session memo of catalog listings and stream
// candidates.
//
// Entries are never evicted or expired; the cache lives exactly as long as
// the browsing session that owns it. Concurrent misses on the same key are
// not collapsed: every caller fetches, and the last Put wins. The mutex only
// keeps the maps memory-safe.
package episodes

import (
	"context"
	"sync"

	"streamrelay/models"
)

type seriesEntry struct {
	title      string
	totalPages int
	pages      map[int]*models.EpisodePage
	links      map[string][]models.StreamCandidate
}

// Cache memoizes episode pages and candidate lists per series.
type Cache struct {
	mu     sync.RWMutex
	series map[string]*seriesEntry
}

func NewCache() *Cache {
	return &Cache{series: make(map[string]*seriesEntry)}
}

func (c *Cache) entry(series string) *seriesEntry {
	e, ok := c.series[series]
	if !ok {
		e = &seriesEntry{
			pages: make(map[int]*models.EpisodePage),
			links: make(map[string][]models.StreamCandidate),
		}
		c.series[series] = e
	}
	return e
}

// GetPage returns the stored page object for (series, page).
func (c *Cache) GetPage(series string, page int) (*models.EpisodePage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.series[series]
	if !ok {
		return nil, false
	}
	p, ok := e.pages[page]
	return p, ok
}

// PutPage stores a page. The first non-zero page count seen for a series is
// kept for every later page of that series.
func (c *Cache) PutPage(series string, page int, data *models.EpisodePage) {
	if data == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(series)
	if e.totalPages == 0 {
		e.totalPages = data.TotalPages
	}
	if e.title == "" {
		e.title = data.Title
	}
	stored := *data
	stored.SeriesSession = series
	stored.Page = page
	if e.totalPages != 0 {
		stored.TotalPages = e.totalPages
	}
	e.pages[page] = &stored
}

// GetLinks returns the stored candidate list of an episode.
func (c *Cache) GetLinks(series, episode string) ([]models.StreamCandidate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.series[series]
	if !ok {
		return nil, false
	}
	links, ok := e.links[episode]
	return links, ok
}

// PutLinks stores the candidate list of an episode.
func (c *Cache) PutLinks(series, episode string, links []models.StreamCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry(series).links[episode] = links
}

// TotalPages returns the page count recorded for a series.
func (c *Cache) TotalPages(series string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.series[series]
	if !ok || e.totalPages == 0 {
		return 0, false
	}
	return e.totalPages, true
}

// Title returns the series title recorded with its first page.
func (c *Cache) Title(series string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.series[series]; ok {
		return e.title
	}
	return ""
}

// Stats reports how many pages and candidate lists are held.
func (c *Cache) Stats() (pages, links int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.series {
		pages += len(e.pages)
		links += len(e.links)
	}
	return pages, links
}

// Source is the uncached catalog.
type Source interface {
	Episodes(ctx context.Context, series string, page int) (*models.EpisodePage, error)
	Links(ctx context.Context, series, episode string) ([]models.StreamCandidate, error)
}

// CachedCatalog is cache-or-fetch access to a Source.
type CachedCatalog struct {
	cache  *Cache
	source Source
}

func NewCachedCatalog(cache *Cache, source Source) *CachedCatalog {
	return &CachedCatalog{cache: cache, source: source}
}

// Cache exposes the underlying cache.
func (c *CachedCatalog) Cache() *Cache { return c.cache }

// Page returns the cached page or fetches and stores it.
func (c *CachedCatalog) Page(ctx context.Context, series string, page int) (*models.EpisodePage, error) {
	if page < 1 {
		page = 1
	}
	if cached, ok := c.cache.GetPage(series, page); ok {
		return cached, nil
	}
	fetched, err := c.source.Episodes(ctx, series, page)
	if err != nil {
		return nil, err
	}
	c.cache.PutPage(series, page, fetched)
	stored, _ := c.cache.GetPage(series, page)
	return stored, nil
}

// Links returns the cached candidates or fetches them. Empty lists are not
// stored so a later call can pick up newly published sources.
func (c *CachedCatalog) Links(ctx context.Context, series, episode string) ([]models.StreamCandidate, error) {
	if cached, ok := c.cache.GetLinks(series, episode); ok {
		return cached, nil
	}
	links, err := c.source.Links(ctx, series, episode)
	if err != nil {
		return nil, err
	}
	if len(links) > 0 {
		c.cache.PutLinks(series, episode, links)
	}
	return links, nil
}
