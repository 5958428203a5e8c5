package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/rkerrors"
)

func errUnauthorized() error { return rkerrors.Unauthorized() }

// Authenticate checks the Authorization: Bearer <token> header against
// expectedToken using a constant-time comparison. An empty expectedToken
// disables auth entirely (pass-through), matching local/dev deployments
// that run without a configured token.
func Authenticate(expectedToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expectedToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeManagerErr(w, errUnauthorized())
				return
			}

			if subtle.ConstantTimeCompare([]byte(expectedToken), []byte(token)) != 1 {
				writeManagerErr(w, errUnauthorized())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs every request with method, path, status, bytes
// written, request id and remote address,
// grounded on the teacher's internal/api/middleware.go RequestLogger.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
