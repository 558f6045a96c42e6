// Package httpapi assembles the HTTP surface: the websocket upgrade
// endpoint, the static file cache, and the Prometheus metrics endpoint.
package httpapi

import (
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rapidcontrol/server/internal/cache"
)

// New builds the root handler. wsHandler serves the websocket upgrade at
// "/ws"; fileCache serves every other GET as a static file, with "/main"
// aliased to "/RapidControl.html".
func New(wsHandler http.Handler, fileCache *cache.Cache, reg *prometheus.Registry, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/debug/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP)

	r.Handle("/ws", wsHandler)

	r.Get("/main", staticHandler(fileCache, "/RapidControl.html"))
	r.Get("/*", staticHandler(fileCache, ""))

	return handlers.CombinedLoggingHandler(slogWriter{log}, r)
}

// staticHandler serves path from fileCache, or the request's own URL
// path when path is empty. A read failure writes the error text into the
// response body rather than a generic 404 - the caller always gets a
// reason, not just a status code.
func staticHandler(fileCache *cache.Cache, path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := path
		if p == "" {
			p = r.URL.Path
		}

		body, err := fileCache.Get(r.Context(), p)
		if err != nil {
			w.Write([]byte(err.Error()))
			return
		}
		if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.Write(body)
	}
}

// slogWriter adapts *slog.Logger to the io.Writer gorilla/handlers wants
// for its access log.
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	w.log.Info("http access", "line", string(p))
	return len(p), nil
}
