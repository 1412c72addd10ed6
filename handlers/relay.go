package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"streamrelay/internal/browser"
	"streamrelay/models"
)

// RelayConfig is the identity and transfer tuning used for upstream fetches.
type RelayConfig struct {
	UserAgent       string
	Referer         string
	Origin          string
	DefaultFilename string
	// HeaderTimeout bounds the wait for upstream response headers. The body
	// copy is bounded only by the client connection.
	HeaderTimeout   time.Duration
	BufferKB        int
}

// RelayHandler streams an upstream URL back to the caller with optional
// header rewriting, so players and download managers can reach media that
// rejects requests without a browser identity.
type RelayHandler struct {
	client *http.Client
	cfg    RelayConfig
}

func NewRelayHandler(client *http.Client, cfg RelayConfig) *RelayHandler {
	if cfg.DefaultFilename == "" {
		cfg.DefaultFilename = "episode.mp4"
	}
	if cfg.BufferKB <= 0 {
		cfg.BufferKB = 512
	}
	return &RelayHandler{client: client, cfg: cfg}
}

// hopHeaders are not forwarded from the upstream response.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// imageTypes maps the URL extensions the relay labels when the upstream sent
// no content type.
var imageTypes = func() map[string]string {
	out := make(map[string]string)
	for _, m := range []string{"image/jpeg", "image/png", "image/gif", "image/webp"} {
		if t := mimetype.Lookup(m); t != nil {
			out[t.Extension()] = t.String()
		}
	}
	if jpeg, ok := out[".jpg"]; ok {
		out[".jpeg"] = jpeg
	}
	return out
}()

// Options answers CORS preflight for relayed media.
func (h *RelayHandler) Options(w http.ResponseWriter, r *http.Request) {
	setRelayCORS(w.Header())
	w.WriteHeader(http.StatusOK)
}

// Proxy handles GET|HEAD /proxy.
func (h *RelayHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.Options(w, r)
		return
	}
	directive := models.ParseRelayDirective(r.URL.Query())
	if strings.TrimSpace(directive.TargetURL) == "" {
		writeFailure(w, nil)
		return
	}

	method := http.MethodGet
	if r.Method == http.MethodHead {
		method = http.MethodHead
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	upstreamReq, err := http.NewRequestWithContext(ctx, method, directive.TargetURL, nil)
	if err != nil {
		log.Printf("[relay] invalid upstream url %q: %v", directive.TargetURL, err)
		writeFailure(w, fmt.Errorf("invalid proxyUrl: %w", err))
		return
	}
	browser.ApplyHeaders(upstreamReq, h.cfg.UserAgent)
	upstreamReq.Header.Set("Accept", "*/*")
	upstreamReq.Header.Set("Accept-Encoding", "identity")
	if h.cfg.Referer != "" {
		upstreamReq.Header.Set("Referer", h.cfg.Referer)
	}
	if h.cfg.Origin != "" {
		upstreamReq.Header.Set("Origin", h.cfg.Origin)
	}
	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" {
		upstreamReq.Header.Set("Range", rangeHeader)
	}

	log.Printf("[relay] %s host=%s path=%s range=%q modify=%t download=%t",
		method, upstreamReq.URL.Host, upstreamReq.URL.Path, rangeHeader, directive.RewriteHeaders, directive.ForceDownload)

	resp, err := h.do(upstreamReq, cancel)
	if err != nil {
		log.Printf("[relay] upstream request failed: %v", err)
		writeFailure(w, nil)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[relay] upstream returned %d for host=%s", resp.StatusCode, upstreamReq.URL.Host)
		w.WriteHeader(resp.StatusCode)
		if method != http.MethodHead {
			if _, err := io.Copy(w, resp.Body); err != nil && !isClientGone(err) {
				log.Printf("[relay] forward error body: %v", err)
			}
		}
		return
	}

	header := w.Header()
	for key, values := range resp.Header {
		header[key] = append([]string(nil), values...)
	}
	for _, key := range hopHeaders {
		header.Del(key)
	}
	if directive.RewriteHeaders {
		h.rewriteHeaders(header, directive, upstreamReq.URL)
	}
	if header.Get("Content-Type") == "" {
		// Keep net/http from sniffing a type the upstream never declared.
		header["Content-Type"] = nil
	}

	w.WriteHeader(resp.StatusCode)
	if method == http.MethodHead {
		return
	}

	total, err := h.stream(ctx, w, resp.Body)
	if err != nil {
		if isClientGone(err) || errors.Is(ctx.Err(), context.Canceled) {
			log.Printf("[relay] client went away after %s host=%s", humanize.Bytes(uint64(total)), upstreamReq.URL.Host)
			return
		}
		log.Printf("[relay] stream error after %s host=%s: %v", humanize.Bytes(uint64(total)), upstreamReq.URL.Host, err)
		return
	}
	log.Printf("[relay] complete %s host=%s range=%q", humanize.Bytes(uint64(total)), upstreamReq.URL.Host, rangeHeader)
}

// do sends req and enforces HeaderTimeout until the response headers arrive.
// cancel must cancel req's context.
func (h *RelayHandler) do(req *http.Request, cancel context.CancelFunc) (*http.Response, error) {
	if h.cfg.HeaderTimeout <= 0 {
		return h.client.Do(req)
	}
	timer := time.AfterFunc(h.cfg.HeaderTimeout, cancel)
	resp, err := h.client.Do(req)
	if !timer.Stop() {
		if err == nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("no response headers within %s", h.cfg.HeaderTimeout)
	}
	return resp, err
}

func (h *RelayHandler) rewriteHeaders(header http.Header, d models.RelayDirective, target *url.URL) {
	setRelayCORS(header)
	if d.ForceDownload {
		name := d.Filename
		if name == "" {
			name = h.cfg.DefaultFilename
		}
		header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		header.Set("Content-Type", "application/octet-stream")
		return
	}
	if header.Get("Content-Type") == "" {
		if ct, ok := imageTypes[strings.ToLower(path.Ext(target.Path))]; ok {
			header.Set("Content-Type", ct)
		}
	}
}

func setRelayCORS(header http.Header) {
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "GET,POST,HEAD,OPTIONS")
	header.Set("Access-Control-Max-Age", "86400")
}

// stream copies body to w through a fixed buffer, flushing after every
// chunk so playback can start before the transfer ends.
func (h *RelayHandler) stream(ctx context.Context, w http.ResponseWriter, body io.Reader) (int64, error) {
	buf := make([]byte, h.cfg.BufferKB*1024)
	flusher, _ := w.(http.Flusher)
	var total, lastLog int64
	const logInterval = 50 * 1024 * 1024

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, readErr := body.Read(buf)
		if n > 0 {
			written, writeErr := w.Write(buf[:n])
			total += int64(written)
			if writeErr != nil {
				return total, writeErr
			}
			if flusher != nil {
				flusher.Flush()
			}
			if total-lastLog >= logInterval {
				log.Printf("[relay] progress %s", humanize.Bytes(uint64(total)))
				lastLog = total
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return total, nil
			}
			return total, readErr
		}
	}
}
