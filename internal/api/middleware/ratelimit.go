package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/routeprofile/routeprofile/internal/api/models"
)

// RateLimitConfig is a sliding window limit. Name prefixes the limiter keys
// and appears in the 429 detail.
type RateLimitConfig struct {
	Name         string
	RequestLimit int
	WindowLength time.Duration
}

var (
	// BuildLimit applies to profile builds, which call the routing provider.
	BuildLimit = RateLimitConfig{Name: "build", RequestLimit: 30, WindowLength: time.Minute}

	// ReadLimit applies to reads of stored profiles and geocoding.
	ReadLimit = RateLimitConfig{Name: "read", RequestLimit: 100, WindowLength: time.Minute}
)

// PerMinute returns cfg with its limit replaced by n requests per minute.
// Non-positive n leaves cfg unchanged.
func (cfg RateLimitConfig) PerMinute(n int) RateLimitConfig {
	if n > 0 {
		cfg.RequestLimit = n
		cfg.WindowLength = time.Minute
	}
	return cfg
}

// RateLimitByClient limits requests per authenticated client, or per real IP
// when the request carries no claims. Exceeding the limit yields a 429 problem
// with a Retry-After of one window.
func RateLimitByClient(cfg RateLimitConfig) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.WindowLength.Seconds())))

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if clientID := GetClientID(r.Context()); clientID != "" {
				return cfg.Name + "/client/" + clientID, nil
			}
			ip, err := httprate.KeyByRealIP(r)
			return cfg.Name + "/ip/" + ip, err
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem := models.NewTooManyRequests(GetRequestID(r.Context()),
				"Rate limit of "+strconv.Itoa(cfg.RequestLimit)+" "+cfg.Name+" requests per "+cfg.WindowLength.String()+" exceeded")
			problem.Instance = r.URL.Path
			w.Header().Set("Retry-After", retryAfter)
			problem.Write(w)
		}),
	)
}
