package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Catalog  CatalogSettings  `json:"catalog"`
	Bypass   BypassSettings   `json:"bypass"`
	Relay    RelaySettings    `json:"relay"`
	Upstream UpstreamSettings `json:"upstream"`
	Batch    BatchSettings    `json:"batch"`
	Sessions SessionSettings  `json:"sessions"`
	Log      LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// CatalogSettings points at the series/episode listing API.
type CatalogSettings struct {
	BaseURL        string `json:"baseUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// BypassSettings points at the link bypass API.
type BypassSettings struct {
	BaseURL        string `json:"baseUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// RelaySettings controls the /proxy endpoint and the relay URLs handed to clients.
type RelaySettings struct {
	PublicURL       string `json:"publicUrl"` // Base URL clients reach this server on (e.g., "http://localhost:7788")
	UserAgent       string `json:"userAgent"`
	Referer         string `json:"referer"`
	Origin          string `json:"origin"`
	DefaultFilename string `json:"defaultFilename"`
	BufferKB        int    `json:"bufferKb"`

	// HeaderTimeoutSeconds bounds the wait for upstream response headers.
	// Zero waits indefinitely; body transfers are never capped.
	HeaderTimeoutSeconds int `json:"headerTimeoutSeconds"`
}

// UpstreamSettings tunes the outbound HTTP client shared by catalog and relay fetches.
type UpstreamSettings struct {
	TLSFingerprint bool `json:"tlsFingerprint"` // Present a Chrome TLS ClientHello instead of Go's
}

// BatchSettings controls bulk resolution jobs.
type BatchSettings struct {
	MaxParallel         int    `json:"maxParallel"` // 0 = one goroutine per episode
	FilenameSuffix      string `json:"filenameSuffix"`
	JobRetentionMinutes int    `json:"jobRetentionMinutes"`
}

// SessionSettings controls browsing session lifetime.
type SessionSettings struct {
	IdleTTLMinutes int `json:"idleTtlMinutes"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server:  ServerSettings{Host: "0.0.0.0", Port: 7788},
		Catalog: CatalogSettings{BaseURL: "", TimeoutSeconds: 20},
		Bypass:  BypassSettings{BaseURL: "", TimeoutSeconds: 30},
		Relay: RelaySettings{
			PublicURL:       "http://localhost:7788",
			UserAgent:       defaultUserAgent,
			Referer:         "https://animepahe.si/",
			Origin:          "https://animepahe.si",
			DefaultFilename: "episode.mp4",
			BufferKB:        512,
		},
		Upstream: UpstreamSettings{TLSFingerprint: true},
		Batch:    BatchSettings{MaxParallel: 0, FilenameSuffix: "", JobRetentionMinutes: 60},
		Sessions: SessionSettings{IdleTTLMinutes: 240},
		Log: LogConfig{
			File:       "cache/logs/streamrelay.log",
			Level:      "info",
			MaxSize:    50,   // 50 MB per file
			MaxBackups: 3,    // keep 3 old files
			MaxAge:     7,    // 7 days
			Compress:   true, // compress old files
		},
	}
}

// CatalogTimeout returns the catalog request timeout.
func (s Settings) CatalogTimeout() time.Duration {
	return time.Duration(s.Catalog.TimeoutSeconds) * time.Second
}

// BypassTimeout returns the bypass request timeout.
func (s Settings) BypassTimeout() time.Duration {
	return time.Duration(s.Bypass.TimeoutSeconds) * time.Second
}

// RelayHeaderTimeout bounds the wait for upstream response headers only.
func (s Settings) RelayHeaderTimeout() time.Duration {
	return time.Duration(s.Relay.HeaderTimeoutSeconds) * time.Second
}

// SessionIdleTTL is how long an unused browsing session is kept.
func (s Settings) SessionIdleTTL() time.Duration {
	return time.Duration(s.Sessions.IdleTTLMinutes) * time.Minute
}

// JobRetention is how long finished batch jobs stay queryable.
func (s Settings) JobRetention() time.Duration {
	return time.Duration(s.Batch.JobRetentionMinutes) * time.Minute
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	fs   afero.Fs
	path string
}

func NewManager(configPath string) *Manager {
	return NewManagerWithFs(afero.NewOsFs(), configPath)
}

// NewManagerWithFs is NewManager over an arbitrary filesystem.
func NewManagerWithFs(fsys afero.Fs, configPath string) *Manager {
	return &Manager{fs: fsys, path: configPath}
}

// Path returns the settings file location.
func (m *Manager) Path() string { return m.path }

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return m.fs.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := m.fs.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := m.fs.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}
	backfill(&s)
	return s, nil
}

// backfill fills zero values left by older or hand-written settings files.
func backfill(s *Settings) {
	d := DefaultSettings()

	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = d.Server.Host
	}
	if s.Server.Port == 0 {
		s.Server.Port = d.Server.Port
	}
	s.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(s.Catalog.BaseURL), "/")
	if s.Catalog.TimeoutSeconds <= 0 {
		s.Catalog.TimeoutSeconds = d.Catalog.TimeoutSeconds
	}
	s.Bypass.BaseURL = strings.TrimSpace(s.Bypass.BaseURL)
	if s.Bypass.TimeoutSeconds <= 0 {
		s.Bypass.TimeoutSeconds = d.Bypass.TimeoutSeconds
	}

	s.Relay.PublicURL = strings.TrimRight(strings.TrimSpace(s.Relay.PublicURL), "/")
	if s.Relay.PublicURL == "" {
		s.Relay.PublicURL = d.Relay.PublicURL
	}
	if strings.TrimSpace(s.Relay.UserAgent) == "" {
		s.Relay.UserAgent = d.Relay.UserAgent
	}
	if strings.TrimSpace(s.Relay.Referer) == "" {
		s.Relay.Referer = d.Relay.Referer
	}
	if strings.TrimSpace(s.Relay.Origin) == "" {
		s.Relay.Origin = d.Relay.Origin
	}
	if strings.TrimSpace(s.Relay.DefaultFilename) == "" {
		s.Relay.DefaultFilename = d.Relay.DefaultFilename
	}
	if s.Relay.HeaderTimeoutSeconds < 0 {
		s.Relay.HeaderTimeoutSeconds = 0
	}
	if s.Relay.BufferKB <= 0 {
		s.Relay.BufferKB = d.Relay.BufferKB
	}

	if s.Batch.MaxParallel < 0 {
		s.Batch.MaxParallel = 0
	}
	if s.Batch.JobRetentionMinutes <= 0 {
		s.Batch.JobRetentionMinutes = d.Batch.JobRetentionMinutes
	}
	if s.Sessions.IdleTTLMinutes <= 0 {
		s.Sessions.IdleTTLMinutes = d.Sessions.IdleTTLMinutes
	}

	if s.Log.MaxSize <= 0 {
		s.Log.MaxSize = d.Log.MaxSize
	}
	if s.Log.Level == "" {
		s.Log.Level = d.Log.Level
	}
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := m.fs.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = m.fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = m.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = m.fs.Remove(tmp)
		return err
	}
	return m.fs.Rename(tmp, m.path)
}
