// Package metadata copies transport-level request metadata into requestcontext.
package metadata

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"medcourier/pkg/requestcontext"
)

// RequestID must run after chi's RequestID middleware; it mirrors the id into
// requestcontext so services and loggers can read it without chi.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := chimw.GetReqID(ctx); reqID != "" {
			ctx = requestcontext.WithRequestID(ctx, reqID)
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
