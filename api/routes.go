package api

import (
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/gorilla/mux"

	"streamrelay/handlers"
	"streamrelay/models"
)

// localhostOnlyMiddleware restricts access to localhost requests only
func localhostOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if i := strings.LastIndex(host, ":"); i >= 0 && !strings.HasSuffix(host, "]") {
			host = host[:i]
		}
		host = strings.Trim(host, "[]")
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			http.Error(w, "Debug endpoints only accessible from localhost", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Expose-Headers", handlers.SessionHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts the relay, the entry router and the session API onto r.
// The relay is registered first so it wins regardless of the method parameter.
func Register(
	r *mux.Router,
	relayHandler *handlers.RelayHandler,
	entryHandler *handlers.EntryHandler,
	seriesHandler *handlers.SeriesHandler,
) {
	r.HandleFunc(models.RelayPath, relayHandler.Proxy).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(models.RelayPath, relayHandler.Options).Methods(http.MethodOptions)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	api.HandleFunc("/sessions", seriesHandler.CreateSession).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/sessions/{sid}", seriesHandler.DeleteSession).Methods(http.MethodDelete, http.MethodOptions)

	api.HandleFunc("/series/{series}/pages/{page:[0-9]+}", seriesHandler.Page).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/series/{series}/episodes/{episode}/links", seriesHandler.Links).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/series/{series}/episodes/{episode}/streams", seriesHandler.Streams).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/series/{series}/episodes/{episode}/resolve", seriesHandler.Resolve).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/series/{series}/batch", seriesHandler.StartBatch).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/batch/{jobId}", seriesHandler.GetBatch).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/batch/{jobId}", seriesHandler.CancelBatch).Methods(http.MethodDelete)
	api.HandleFunc("/batch/{jobId}/links.txt", seriesHandler.BatchLinks).Methods(http.MethodGet, http.MethodOptions)

	// Pprof debug endpoints for profiling (localhost only)
	pprofRouter := api.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.Use(localhostOnlyMiddleware)
	pprofRouter.HandleFunc("/", pprof.Index)
	pprofRouter.HandleFunc("/cmdline", pprof.Cmdline)
	pprofRouter.HandleFunc("/profile", pprof.Profile)
	pprofRouter.HandleFunc("/symbol", pprof.Symbol)
	pprofRouter.HandleFunc("/trace", pprof.Trace)
	pprofRouter.PathPrefix("/").HandlerFunc(pprof.Index)

	// The entry router answers every other path; keep it registered last.
	r.PathPrefix("/").HandlerFunc(entryHandler.Serve).Methods(http.MethodGet, http.MethodHead)
}
