// Package auth issues and validates the bearer tokens API clients use.
//
// Tokens are HS256 JWTs issued to integrations and batch jobs rather than end
// users. A token names the client and its granted scopes. There are no refresh
// tokens; a client asks for a new token once the old one expires.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenExpiry applies when no lifetime is requested.
const DefaultAccessTokenExpiry = time.Hour

// Scopes granted to API clients.
const (
	ScopeProfilesRead  = "profiles:read"
	ScopeProfilesWrite = "profiles:write"
	ScopeOpsRead       = "ops:read"
)

var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrMissingClientID    = errors.New("client ID is required")
)

// Claims carried by an access token.
type Claims struct {
	jwt.RegisteredClaims

	ClientID string `json:"cid"`
	// Scope is space separated, as in OAuth 2.0.
	Scope string `json:"scope,omitempty"`
}

// Scopes returns the granted scopes.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// HasScope reports whether scope was granted.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes(), scope)
}

// JWTConfig configures a JWTService.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string

	// Now overrides the clock used for issuing and validating (optional).
	Now func() time.Time
}

// JWTService signs and verifies access tokens.
type JWTService struct {
	key    []byte
	issuer string
	aud    string
	now    func() time.Time
	parser *jwt.Parser
}

func NewJWTService(cfg JWTConfig) *JWTService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JWTService{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		aud:    cfg.Audience,
		now:    now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(now),
		),
	}
}

// GenerateAccessToken signs a token for clientID. A non-positive ttl selects
// DefaultAccessTokenExpiry. It returns the token and its expiry.
func (s *JWTService) GenerateAccessToken(clientID string, scopes []string, ttl time.Duration) (string, time.Time, error) {
	if clientID == "" {
		return "", time.Time{}, ErrMissingClientID
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenExpiry
	}

	issued := s.now().Truncate(time.Second)
	expires := issued.Add(ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   clientID,
			Audience:  jwt.ClaimStrings{s.aud},
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		ClientID: clientID,
		Scope:    strings.Join(scopes, " "),
	}).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expires, nil
}

// ValidateAccessToken verifies signature, issuer, audience and lifetime and
// returns the token's claims.
func (s *JWTService) ValidateAccessToken(token string) (*Claims, error) {
	claims := new(Claims)
	parsed, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrAccessTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	case !parsed.Valid || claims.ClientID == "":
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}
