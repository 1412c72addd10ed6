package models

// SearchItem is one series returned by a catalog search.
type SearchItem struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Type     string  `json:"type,omitempty"`
	Episodes int     `json:"episodes"`
	Status   string  `json:"status,omitempty"`
	Season   string  `json:"season,omitempty"`
	Year     int     `json:"year,omitempty"`
	Score    float64 `json:"score,omitempty"`
	Poster   string  `json:"poster,omitempty"`
	Session  string  `json:"session"`
}

// SearchResult mirrors the catalog's search payload.
type SearchResult struct {
	Total       int          `json:"total"`
	PerPage     int          `json:"per_page"`
	CurrentPage int          `json:"current_page"`
	LastPage    int          `json:"last_page"`
	From        int          `json:"from"`
	To          int          `json:"to"`
	Data        []SearchItem `json:"data"`
}

// AiringItem is one recently released episode.
type AiringItem struct {
	ID           int64        `json:"id"`
	AnimeTitle   string       `json:"anime_title"`
	AnimeSession string       `json:"anime_session"`
	Snapshot     string       `json:"snapshot,omitempty"`
	Episode      FlexibleText `json:"episode"`
	CreatedAt    string       `json:"created_at,omitempty"`
}

// AiringResult mirrors the catalog's airing payload.
type AiringResult struct {
	Total       int          `json:"total"`
	CurrentPage int          `json:"current_page"`
	LastPage    int          `json:"last_page"`
	Data        []AiringItem `json:"data"`
}
