package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/alvmarrod/proxy-weaver/internal/memory"
	"github.com/alvmarrod/proxy-weaver/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Progress is the body served on /progress
type Progress struct {
	Round        int   `json:"round"`
	Percent      int   `json:"percent"`
	LinksFound   int64 `json:"links_found"`
	ProxiesFound int64 `json:"proxies_found"`
	PagesFetched int64 `json:"pages_fetched"`
	PagesFailed  int64 `json:"pages_failed"`
	Domains      int   `json:"domains"`
	Proxies      int   `json:"proxies"`
}

// NewRouter exposes crawler observability endpoints
func NewRouter(prom *metrics.Collectors, tracker *metrics.Tracker, state *memory.CrawlState) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/progress", func(w http.ResponseWriter, _ *http.Request) {
		snap := tracker.GetSnapshot()
		domains, proxies := state.GetStats()
		respondWithJSON(w, http.StatusOK, Progress{
			Round:        snap.Rounds,
			Percent:      tracker.Percent(),
			LinksFound:   snap.LinksFound,
			ProxiesFound: snap.ProxiesFound,
			PagesFetched: snap.PagesFetched,
			PagesFailed:  snap.PagesFailed,
			Domains:      domains,
			Proxies:      proxies,
		})
	})

	if prom != nil {
		r.Handle("/metrics", prom.Handler())
	}

	return r
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logrus.Warnf("Metrics server shutdown: %v", err)
		}
		return nil
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		logrus.Debugf("Failed to write response: %v", err)
	}
}
