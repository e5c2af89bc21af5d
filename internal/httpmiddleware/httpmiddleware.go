// Package httpmiddleware carries the facade's request-layer concerns —
// bearer auth, CORS, and panic-recovering access logging — composed as
// func(httprouter.Handle) httprouter.Handle chains.
package httpmiddleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/livepeer/pipectl/internal/apierrors"
	"github.com/livepeer/pipectl/internal/obslog"
)

// RequireBearerToken rejects requests whose Authorization header does
// not carry the configured token. An empty token disables the check
// entirely, since most local/dev deployments have no front door auth.
func RequireBearerToken(token string) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		if token == "" {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != token {
				apierrors.WriteHTTP(w, apierrors.New(apierrors.AuthorisationError, "invalid or missing bearer token", nil))
				return
			}
			next(w, r, ps)
		}
	}
}

// AllowCORS takes a permissive CORS posture: reflect the request's
// Origin, answer preflight requests directly.
func AllowCORS() func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, DELETE, OPTIONS")

			if r.Method == http.MethodOptions {
				w.Header().Set("allow", "GET, HEAD, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("content-length", "0")
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r, ps)
		}
	}
}

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

// LogAndRecover logs every request's outcome and turns a handler panic
// into a 500 instead of taking down the listener goroutine.
func LogAndRecover() func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w}

			defer func() {
				if rec := recover(); rec != nil {
					apierrors.WriteHTTP(wrapped, apierrors.New(apierrors.InternalError, "internal server error", nil))
					obslog.LogNoID("httpfacade: panic recovered", "err", rec, "trace", string(debug.Stack()))
				}
			}()

			next(wrapped, r, ps)
			obslog.LogNoID("httpfacade: request",
				"remote", r.RemoteAddr,
				"method", r.Method,
				"uri", r.URL.RequestURI(),
				"duration_ms", time.Since(start).Milliseconds(),
				"status", wrapped.status,
			)
		}
	}
}

// Chain applies middlewares in the order given, so the first one listed
// runs outermost (first to see the request).
func Chain(h httprouter.Handle, mws ...func(httprouter.Handle) httprouter.Handle) httprouter.Handle {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
