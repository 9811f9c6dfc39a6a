package agent

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *ManifestAgent) serveMetrics() {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Handle(a.cfg.Metrics.Path, promhttp.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.Health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	a.metrics = &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.wait.Add(1)
	go func() {
		defer a.wait.Done()

		a.log.Info("Serving metrics on %s%s", a.cfg.Metrics.Address, a.cfg.Metrics.Path)
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Metrics server stopped: %v", err)
		}
	}()
}

func (a *ManifestAgent) stopMetrics(ctx context.Context) error {
	if a.metrics == nil {
		return nil
	}
	return a.metrics.Shutdown(ctx)
}
