package models

import (
	"net/url"
	"strings"
)

// RelayPath is the route the relay is mounted on.
const RelayPath = "/proxy"

// RelayDirective carries the query parameters consumed by the relay.
type RelayDirective struct {
	TargetURL      string
	RewriteHeaders bool
	ForceDownload  bool
	Filename       string
}

// Encode builds the relay URL for the directive. Flags are emitted as bare
// keys ("&modify") so the URL matches what browser clients construct.
func (d RelayDirective) Encode(base string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteString(RelayPath)
	b.WriteString("?proxyUrl=")
	b.WriteString(url.QueryEscape(d.TargetURL))
	if d.RewriteHeaders {
		b.WriteString("&modify")
	}
	if d.ForceDownload {
		b.WriteString("&download")
	}
	if d.Filename != "" {
		b.WriteString("&filename=")
		b.WriteString(url.QueryEscape(d.Filename))
	}
	return b.String()
}

// ParseRelayDirective reads a directive from relay query parameters. Flags
// count as set when the key is present, whatever its value.
func ParseRelayDirective(q url.Values) RelayDirective {
	return RelayDirective{
		TargetURL:      strings.TrimSpace(q.Get("proxyUrl")),
		RewriteHeaders: q.Has("modify"),
		ForceDownload:  q.Has("download"),
		Filename:       strings.TrimSpace(q.Get("filename")),
	}
}
