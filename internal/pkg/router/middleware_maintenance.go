package router

import (
	"net/http"
	"strings"

	"github.com/cashkite/cashkite/internal/pkg/config"
)

// middlewareMaintenance answers 503 on routes listed under
// app.maintenance.endpoints. The set is read once at startup, so a
// config change needs a restart to take effect.
func middlewareMaintenance(cfg config.Config) Middleware {
	blocked := maintenanceSet(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, down := blocked[matchedRoutePath(r)]; down {
				writeJSON(w, errorResponse{Message: "service is under maintenance"}, http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func maintenanceSet(cfg config.Config) map[string]struct{} {
	blocked := make(map[string]struct{})
	if cfg == nil {
		return blocked
	}

	for _, route := range cfg.GetArray("app.maintenance.endpoints") {
		if route = strings.TrimSpace(route); route != "" {
			blocked[route] = struct{}{}
		}
	}

	return blocked
}
