package models

import (
	"encoding/json"
	"net/url"
	"testing"
)

func TestFlexibleTextDecodesNumbersAndStrings(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: `{"episode": 12}`, want: "12"},
		{raw: `{"episode": 12.0}`, want: "12"},
		{raw: `{"episode": 12.5}`, want: "12.5"},
		{raw: `{"episode": " 7 "}`, want: "7"},
		{raw: `{"episode": "OVA"}`, want: "OVA"},
		{raw: `{"episode": null}`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var ref EpisodeRef
			if err := json.Unmarshal([]byte(tt.raw), &ref); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if ref.DisplayNumber.String() != tt.want {
				t.Fatalf("got %q, want %q", ref.DisplayNumber, tt.want)
			}
		})
	}
}

func TestFlexibleTextRejectsObjects(t *testing.T) {
	var ref EpisodeRef
	if err := json.Unmarshal([]byte(`{"episode": {"n": 1}}`), &ref); err == nil {
		t.Fatal("expected an error for an object value")
	}
}

func TestRelayDirectiveEncode(t *testing.T) {
	d := RelayDirective{
		TargetURL:      "https://cdn.example/v.mp4?token=a&b=c",
		RewriteHeaders: true,
		ForceDownload:  true,
		Filename:       "Show 01.mp4",
	}
	got := d.Encode("http://relay.local/")
	want := "http://relay.local/proxy?proxyUrl=https%3A%2F%2Fcdn.example%2Fv.mp4%3Ftoken%3Da%26b%3Dc&modify&download&filename=Show+01.mp4"
	if got != want {
		t.Fatalf("encode:\n got %s\nwant %s", got, want)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if back := ParseRelayDirective(u.Query()); back != d {
		t.Fatalf("parse mismatch: %+v", back)
	}
}

func TestParseRelayDirectiveFlagsByPresence(t *testing.T) {
	q, _ := url.ParseQuery("proxyUrl=x&modify=false&download=")
	d := ParseRelayDirective(q)
	if !d.RewriteHeaders || !d.ForceDownload {
		t.Fatalf("flags must be set by presence: %+v", d)
	}
	if ParseRelayDirective(url.Values{}).TargetURL != "" {
		t.Fatal("expected empty target")
	}
}

func TestResolvedLinkDisplay(t *testing.T) {
	tests := []struct {
		name string
		link ResolvedLink
		want string
		ok   bool
	}{
		{name: "resolved", link: ResolvedLink{Label: "1080p", DirectURL: "http://relay/proxy?x"}, want: "http://relay/proxy?x", ok: true},
		{name: "degraded", link: ResolvedLink{Label: "480p", Error: "bypass failed", SourceLink: "https://kwik.example/a"}, want: "https://kwik.example/a (Bypass Failed)"},
		{name: "strict failure", link: ResolvedLink{Label: "480p", Error: "bypass failed"}, want: "bypass failed"},
		{name: "no sources", link: ResolvedLink{Error: "no sources"}, want: "no sources"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.link.OK() != tt.ok {
				t.Fatalf("OK() = %t", tt.link.OK())
			}
			if got := tt.link.Display(); got != tt.want {
				t.Fatalf("Display() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCandidateLabelParts(t *testing.T) {
	c := StreamCandidate{Label: "SubsPlease · 1080p (eng)"}
	if c.Quality() != "1080" || c.Language() != "eng" {
		t.Fatalf("quality=%q language=%q", c.Quality(), c.Language())
	}
	if (StreamCandidate{Label: "BD"}).Quality() != "" {
		t.Fatal("expected no quality")
	}
}

func TestParseBatchModeAndTrigger(t *testing.T) {
	tests := []struct {
		in   string
		want BatchMode
		ok   bool
	}{
		{in: "parallel", want: BatchParallel, ok: true},
		{in: "Fast", want: BatchParallel, ok: true},
		{in: "sequential", want: BatchSequential, ok: true},
		{in: "instant", want: BatchSequential, ok: true},
		{in: "", ok: false},
		{in: "warp", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseBatchMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseBatchMode(%q) = %q, %t", tt.in, got, ok)
		}
	}

	if BatchSequential.DefaultTrigger() != TriggerBackground || BatchParallel.DefaultTrigger() != TriggerOpen {
		t.Fatal("unexpected default triggers")
	}
	if ParseTrigger("BACKGROUND", TriggerOpen) != TriggerBackground || ParseTrigger("bogus", TriggerOpen) != TriggerOpen {
		t.Fatal("unexpected trigger parsing")
	}
	if ParseResolveMode("legacy") != ResolveLegacy || ParseResolveMode("") != ResolveStrict {
		t.Fatal("unexpected resolve mode parsing")
	}
	if ParseIntent("download") != IntentDownload || ParseIntent("x") != IntentPlayback {
		t.Fatal("unexpected intent parsing")
	}
}
