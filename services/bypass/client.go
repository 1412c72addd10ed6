// Package bypass turns obfuscated player links into directly fetchable media
// URLs through the external bypass API.
package bypass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/mo"

	"streamrelay/internal/browser"
)

// ErrFailed is wrapped by every bypass failure, whatever its cause.
var ErrFailed = errors.New("bypass failed")

// Client calls the bypass API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = browser.NewClient(browser.Options{})
	}
	return &Client{baseURL: strings.TrimSpace(baseURL), httpClient: httpClient}
}

type response struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Error   string `json:"error"`
}

// Bypass resolves link. The result holds the direct URL, or an error wrapping
// ErrFailed for explicit failures, transport errors and malformed replies.
func (c *Client) Bypass(ctx context.Context, link string) mo.Result[string] {
	link = strings.TrimSpace(link)
	if link == "" {
		return mo.Err[string](fmt.Errorf("%w: empty link", ErrFailed))
	}
	if c.baseURL == "" {
		return mo.Err[string](fmt.Errorf("%w: bypass url not configured", ErrFailed))
	}

	endpoint, err := withQuery(c.baseURL, "url", link)
	if err != nil {
		return mo.Err[string](fmt.Errorf("%w: %v", ErrFailed, err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return mo.Err[string](fmt.Errorf("%w: %v", ErrFailed, err))
	}
	browser.ApplyHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mo.Err[string](fmt.Errorf("%w: %w", ErrFailed, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return mo.Err[string](fmt.Errorf("%w: read response: %w", ErrFailed, err))
	}
	return decode(resp.StatusCode, body)
}

// decode validates a bypass reply once, at the boundary.
func decode(status int, body []byte) mo.Result[string] {
	if status != http.StatusOK {
		preview := strings.TrimSpace(string(body))
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return mo.Err[string](fmt.Errorf("%w: status %d: %s", ErrFailed, status, preview))
	}

	var payload response
	if err := json.Unmarshal(body, &payload); err != nil {
		return mo.Err[string](fmt.Errorf("%w: decode response: %w", ErrFailed, err))
	}
	direct := strings.TrimSpace(payload.URL)
	if !payload.Success || direct == "" {
		reason := strings.TrimSpace(payload.Error)
		if reason == "" {
			reason = "no url returned"
		}
		return mo.Err[string](fmt.Errorf("%w: %s", ErrFailed, reason))
	}
	return mo.Ok(direct)
}

func withQuery(base, key, value string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
