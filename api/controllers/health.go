package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/perkmint/perkmint-backend/api/responses"
	"github.com/perkmint/perkmint-backend/pkg/config"
	pkgerrors "github.com/perkmint/perkmint-backend/pkg/errors"
	"github.com/perkmint/perkmint-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger reports whether one backing dependency answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PerkMint-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every backing dependency. A single failure flips the
// probe to 503 so the instance is pulled before it serves broken requests.
func HealthReady(cfg *config.Config, logg *logger.Logger, database, cache, ledger Pinger) http.HandlerFunc {
	deps := []struct {
		name   string
		pinger Pinger
	}{
		{"database", database},
		{"cache", cache},
		{"ledger", ledger},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PerkMint-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		failed := ""
		for _, dep := range deps {
			if dep.pinger == nil {
				checks[dep.name] = "skipped"
				continue
			}
			if err := dep.pinger.Ping(ctx); err != nil {
				checks[dep.name] = "unavailable"
				if failed == "" {
					failed = dep.name
				}
				if logg != nil {
					logg.Error(ctx, "readiness check failed", err)
				}
				continue
			}
			checks[dep.name] = "ok"
		}

		if failed != "" {
			err := pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").
				WithDetails(map[string]any{"failed": failed, "checks": checks})
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
