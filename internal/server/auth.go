package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"teamtask/internal/domain"
	"teamtask/internal/engine/auth"
)

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

func (c AuthConfig) ttl() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return 24 * time.Hour
}

// Principal is the authenticated caller of a request.
type Principal struct {
	domain.Principal
	Source string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// actor returns the caller for engine calls, or nil when unauthenticated.
func actor(ctx context.Context) *domain.Principal {
	if p, ok := principalFromContext(ctx); ok && p.ID != "" {
		out := p.Principal
		return &out
	}
	return nil
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// IssueToken signs an HS256 token for u.
func IssueToken(cfg AuthConfig, u domain.User, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	expires := now.Add(cfg.ttl())
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role: u.Role.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// parseToken verifies token and returns its subject.
func parseToken(token string, cfg AuthConfig) (string, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	claims := &jwtClaims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("subject claim required")
	}
	return claims.Subject, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware attaches a Principal to requests under basePath. The
// role always comes from the user directory, so a role change applies to
// tokens issued before it.
func newAuthMiddleware(basePath string, h handlers) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "auth/login"):   true,
		path.Join(basePath, "openapi.json"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKey := strings.TrimSpace(req.Header.Get("X-Api-Key"))

			var (
				p      domain.Principal
				source string
				err    error
			)
			switch {
			case authz != "":
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "", "invalid credentials", nil))
					return
				}
				subject, perr := parseToken(token, h.auth)
				if perr != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "", "invalid credentials", nil))
					return
				}
				p, err = h.e.ResolvePrincipal(req.Context(), subject)
				source = "jwt"
			case apiKey != "":
				p, err = h.e.AuthenticateAPIKey(req.Context(), apiKey)
				source = "api_key"
			default:
				respondStatusError(w, h.handleError(auth.ErrUnauthenticated))
				return
			}
			if err != nil {
				respondStatusError(w, h.handleError(err))
				return
			}
			ctx := withPrincipal(req.Context(), Principal{Principal: p, Source: source})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
