package middleware

import (
	"net/http"
	"strings"

	"github.com/routeprofile/routeprofile/internal/api/models"
)

// ProblemTypeTLSRequired answers plain HTTP requests when TLS is enforced.
const ProblemTypeTLSRequired = "https://profiles.example.com/problems/tls-required"

// responseHeaders are set on every response. Profiles belong to a client, so
// nothing may be cached by intermediaries.
var responseHeaders = [][2]string{
	{"Cache-Control", "no-store"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
	{"Referrer-Policy", "no-referrer"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
}

// SecurityHeaders sets responseHeaders before the handler runs, so a
// handler may still override them.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range responseHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS answers 403 when the load balancer reports a non-HTTPS scheme in
// X-Forwarded-Proto. Direct connections carry no header and pass.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proto := r.Header.Get("X-Forwarded-Proto")
			if proto == "" || strings.EqualFold(proto, "https") {
				next.ServeHTTP(w, r)
				return
			}
			p := models.NewProblem(ProblemTypeTLSRequired, "TLS required", http.StatusForbidden, GetRequestID(r.Context()))
			p.Detail = "This endpoint requires HTTPS"
			p.Instance = r.URL.Path
			p.Write(w)
		})
	}
}
