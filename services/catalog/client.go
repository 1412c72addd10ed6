// Package catalog is the client for the series catalog API: episode listings,
// per-episode stream candidates, search and the airing feed.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"streamrelay/internal/browser"
	"streamrelay/models"
)

// ErrMissingParam is returned when a required identifier is empty.
var ErrMissingParam = errors.New("catalog: missing parameter")

type userAgentKey struct{}

// WithUserAgent attaches the end user's User-Agent to ctx so catalog requests
// made on their behalf carry it.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	if strings.TrimSpace(userAgent) == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func userAgentFrom(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}

// Client talks to the catalog API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewClient returns a catalog client. userAgent is used for requests whose
// context carries no caller User-Agent.
func NewClient(baseURL string, httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = browser.NewClient(browser.Options{})
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		userAgent:  userAgent,
		httpClient: httpClient,
	}
}

type episodesResponse struct {
	Title      string              `json:"title"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	TotalPages int                 `json:"total_pages"`
	LastPage   int                 `json:"last_page"`
	Episodes   []models.EpisodeRef `json:"episodes"`
	Data       []models.EpisodeRef `json:"data"`
}

// Episodes fetches one page of a series' episode listing. Pages below 1 are
// treated as page 1.
func (c *Client) Episodes(ctx context.Context, series string, page int) (*models.EpisodePage, error) {
	series = strings.TrimSpace(series)
	if series == "" {
		return nil, fmt.Errorf("%w: session", ErrMissingParam)
	}
	if page < 1 {
		page = 1
	}

	params := url.Values{}
	params.Set("method", "series")
	params.Set("session", series)
	params.Set("page", strconv.Itoa(page))

	var payload episodesResponse
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, fmt.Errorf("catalog series %s page %d: %w", series, page, err)
	}

	episodes := payload.Episodes
	if len(episodes) == 0 {
		episodes = payload.Data
	}
	for i := range episodes {
		episodes[i].SeriesSession = series
	}
	totalPages := payload.TotalPages
	if totalPages == 0 {
		totalPages = payload.LastPage
	}
	if totalPages == 0 && len(episodes) > 0 {
		totalPages = 1
	}

	return &models.EpisodePage{
		SeriesSession: series,
		Title:         payload.Title,
		Page:          page,
		TotalPages:    totalPages,
		Episodes:      episodes,
	}, nil
}

// Links lists the stream candidates of one episode in catalog order. An
// episode without candidates yields an empty slice and no error.
func (c *Client) Links(ctx context.Context, series, episode string) ([]models.StreamCandidate, error) {
	series = strings.TrimSpace(series)
	episode = strings.TrimSpace(episode)
	if series == "" || episode == "" {
		return nil, fmt.Errorf("%w: session/ep", ErrMissingParam)
	}

	params := url.Values{}
	params.Set("method", "episode")
	params.Set("session", series)
	params.Set("ep", episode)

	var payload []models.StreamCandidate
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, fmt.Errorf("catalog links %s/%s: %w", series, episode, err)
	}

	candidates := make([]models.StreamCandidate, 0, len(payload))
	for _, cand := range payload {
		cand.Label = strings.TrimSpace(cand.Label)
		cand.SourceLink = strings.TrimSpace(cand.SourceLink)
		if cand.SourceLink == "" {
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// Search runs a free-text series search.
func (c *Client) Search(ctx context.Context, query string) (*models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query", ErrMissingParam)
	}
	params := url.Values{}
	params.Set("method", "search")
	params.Set("query", query)

	var payload models.SearchResult
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, fmt.Errorf("catalog search %q: %w", query, err)
	}
	return &payload, nil
}

// Airing lists recently released episodes.
func (c *Client) Airing(ctx context.Context, page int) (*models.AiringResult, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("method", "airing")
	params.Set("page", strconv.Itoa(page))

	var payload models.AiringResult
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, fmt.Errorf("catalog airing page %d: %w", page, err)
	}
	return &payload, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	if c.baseURL == "" {
		return errors.New("catalog base url not configured")
	}
	endpoint := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	ua := userAgentFrom(ctx)
	if ua == "" {
		ua = c.userAgent
	}
	browser.ApplyHeaders(req, ua)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		log.Printf("[catalog] undecodable response for method=%s: %s", params.Get("method"), preview)
		return fmt.Errorf("decode response: %w (body preview: %s)", err, preview)
	}
	return nil
}
