package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/routeprofile/routeprofile/internal/api/models"
	"github.com/routeprofile/routeprofile/internal/auth"
)

// TokenValidator validates bearer tokens. *auth.JWTService implements it.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

type claimsKey struct{}

// bearerRealm is announced in WWW-Authenticate challenges.
const bearerRealm = "routeprofile"

var (
	errNoCredentials = errors.New("missing authorization header")
	errNotBearer     = errors.New("authorization scheme must be Bearer")
	errEmptyToken    = errors.New("missing bearer token")
)

// Auth validates the bearer token and stores its claims in the request
// context. Failures answer 401 with an RFC 6750 challenge.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				challenge(w, r, http.StatusUnauthorized, "", err.Error())
				return
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				detail := "authentication failed"
				switch {
				case errors.Is(err, auth.ErrAccessTokenExpired):
					detail = "access token has expired"
				case errors.Is(err, auth.ErrInvalidAccessToken):
					detail = "invalid access token"
				}
				challenge(w, r, http.StatusUnauthorized, "invalid_token", detail)
				return
			}

			annotateClient(r.Context(), claims.ClientID)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// RequireScope answers 403 unless the token grants scope. It must run after
// Auth.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims := GetClaims(r.Context()); claims == nil || !claims.HasScope(scope) {
				challenge(w, r, http.StatusForbidden, "insufficient_scope", "token is missing scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errNoCredentials
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errEmptyToken
	}
	return token, nil
}

// challenge writes a 401 or 403 problem with a WWW-Authenticate header.
func challenge(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	value := `Bearer realm="` + bearerRealm + `"`
	if code != "" {
		value += `, error="` + code + `"`
	}
	w.Header().Set("WWW-Authenticate", value)

	var problem *models.Problem
	if status == http.StatusForbidden {
		problem = models.NewForbidden(GetRequestID(r.Context()), detail)
	} else {
		problem = models.NewUnauthorized(GetRequestID(r.Context()), detail)
	}
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetClaims returns the claims Auth stored, or nil.
func GetClaims(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(claimsKey{}).(*auth.Claims); ok {
		return c
	}
	return nil
}

// GetClientID returns the authenticated client, or "".
func GetClientID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.ClientID
	}
	return ""
}
