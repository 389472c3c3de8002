package audit

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-blinds/internal/obs"
)

// Recorder wraps admin routes and records each request once it is handled.
// A failed write is logged and never changes the response.
type Recorder struct {
	Service Service
	Logger  zerolog.Logger
}

// Middleware records action against the URL param idParam.
func (r Recorder) Middleware(action, idParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}
			rec := obs.NewStatusRecorder(w)
			next.ServeHTTP(rec, req)

			resourceID := ""
			if idParam != "" {
				resourceID = chi.URLParam(req, idParam)
			}
			ctx := context.WithoutCancel(req.Context())
			if err := r.Service.Record(ctx, req, action, resourceID, rec.Status()); err != nil {
				r.Logger.Error().Err(err).Str("action", action).Msg("record audit entry")
			}
		})
	}
}
