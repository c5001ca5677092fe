// Package server exposes the administrative HTTP API: scheduler and queue
// introspection, manual job control, and the notification read surface.
package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"flowdesk/internal/config"
	"flowdesk/internal/dispatch"
	"flowdesk/internal/eventbus"
	"flowdesk/internal/scheduler"
	"flowdesk/internal/store"
	"flowdesk/pkg/logx"
)

// Deps collects the components the API surfaces.
type Deps struct {
	Dispatcher *dispatch.Dispatcher
	Scheduler  *scheduler.Service
	Store      store.Store
	Bus        eventbus.Bus
	StartedAt  time.Time
	Version    string
}

// New builds the HTTP handler. When cfg.AuthToken is empty the API is open
// (local development only); otherwise every call needs the bearer token.
func New(cfg config.ServerConfig, deps Deps, log logx.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(authMiddleware(cfg.AuthToken, log))

	hcfg := huma.DefaultConfig("flowdesk admin API", versionOr(deps.Version))
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, "/v1")

	registerHealth(group)
	registerStatus(group, deps)
	registerJobs(group, deps)
	registerSchedulerControl(group, deps)
	registerNotifications(group, deps)
	registerPreferences(group, deps)
	registerReportSettings(group, deps)

	return router
}

func versionOr(v string) string {
	if v == "" {
		return "dev"
	}
	return v
}

func authMiddleware(token string, log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				log.Warn("unauthorized admin request",
					logx.String("path", r.URL.Path),
					logx.String("remote", r.RemoteAddr),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error500InternalServerError("internal error", err)
}
