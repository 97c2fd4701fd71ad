package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/logging"
	"go.uber.org/zap"
)

// HealthHandler reports basic liveness for the service.
func HealthHandler(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(stdhttp.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler reports whether the dependencies behind check answer.
func ReadinessHandler(check func(ctx context.Context) error) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logging.FromContext(r.Context(), nil).Warn("readiness check failed", zap.Error(err))
				writeError(w, stdhttp.StatusServiceUnavailable, "not_ready", "not ready")
				return
			}
		}
		HealthHandler(w, r)
	}
}
