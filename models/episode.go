package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// EpisodeRef identifies one playable unit of a series.
type EpisodeRef struct {
	SeriesSession  string       `json:"series,omitempty"`
	EpisodeSession string       `json:"session"`
	DisplayNumber  FlexibleText `json:"episode"`
	Snapshot       string       `json:"snapshot,omitempty"`
}

// EpisodePage is one page of a series' episode listing.
type EpisodePage struct {
	SeriesSession string       `json:"series,omitempty"`
	Title         string       `json:"title"`
	Page          int          `json:"page"`
	TotalPages    int          `json:"total_pages"`
	Episodes      []EpisodeRef `json:"episodes"`
}

// FlexibleText decodes either a JSON string or a JSON number into a string.
// The catalog reports episode numbers as numbers for regular episodes and as
// strings for specials, so both shapes must be accepted.
type FlexibleText string

func (t *FlexibleText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = FlexibleText(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
		*t = FlexibleText(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*t = FlexibleText(n.String())
	return nil
}

func (t FlexibleText) String() string { return string(t) }
