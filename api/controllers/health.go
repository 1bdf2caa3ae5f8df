package controllers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/pharmacy-backend/api/responses"
	"github.com/angelmondragon/pharmacy-backend/pkg/config"
	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

const (
	envHeader    = "X-Pharmacy-Env"
	readyTimeout = 2 * time.Second
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every configured dependency. A nil pinger is reported as
// "disabled" and does not fail the check.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		names := []string{"database", "redis"}
		pingers := []db.Pinger{dbP, redisP}
		errs := make([]error, len(pingers))

		var g errgroup.Group
		for i, p := range pingers {
			if p == nil {
				continue
			}
			g.Go(func() error {
				errs[i] = p.Ping(ctx)
				return nil
			})
		}
		_ = g.Wait()

		results := make(map[string]string, len(names))
		failed := false
		for i, name := range names {
			switch {
			case pingers[i] == nil:
				results[name] = "disabled"
			case errs[i] != nil:
				results[name] = "down"
				failed = true
				logg.Error(logg.WithField(r.Context(), "dependency", name), "health.ready_failed", errs[i])
			default:
				results[name] = "ok"
			}
		}

		if failed {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(results))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": results})
	}
}
