package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/routeprofile/routeprofile/internal/api/models"
)

// GPXMediaTypes are accepted for uploaded GPS traces.
var GPXMediaTypes = []string{"application/gpx+xml", "application/xml", "text/xml", "application/octet-stream"}

// ContentTypeJSON defaults the response Content-Type to application/json.
// Handlers that stream GPX or GeoJSON set their own type first.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects request bodies that are not declared as JSON.
func RequireJSON(next http.Handler) http.Handler {
	return RequireContentType("application/json")(next)
}

// RequireContentType rejects POST, PUT and PATCH requests whose declared
// media type is not one of types with 415. A missing Content-Type passes.
func RequireContentType(types ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Content-Type")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			mediaType, _, err := mime.ParseMediaType(header)
			if err == nil {
				for _, t := range types {
					if strings.EqualFold(mediaType, t) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			problem := models.NewUnsupportedMediaType(GetRequestID(r.Context()),
				"Content-Type must be one of: "+strings.Join(types, ", "))
			problem.Instance = r.URL.Path
			problem.Write(w)
		})
	}
}
