package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/huyanhvn/threadcraft-backend/api/responses"
	"github.com/huyanhvn/threadcraft-backend/pkg/config"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ThreadCraft-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the backing stores before reporting ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ThreadCraft-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{}
		ready := true

		checks["database"] = "ok"
		if dbP == nil {
			checks["database"] = "not configured"
			ready = false
		} else if err := dbP.Ping(ctx); err != nil {
			checks["database"] = "unreachable"
			ready = false
			if logg != nil {
				logg.Error(ctx, "database ping failed", err)
			}
		}

		checks["redis"] = "ok"
		if redisP == nil {
			checks["redis"] = "not configured"
			ready = false
		} else if err := redisP.Ping(ctx); err != nil {
			checks["redis"] = "unreachable"
			ready = false
			if logg != nil {
				logg.Error(ctx, "redis ping failed", err)
			}
		}

		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"status": state,
			"checks": checks,
		})
	}
}
