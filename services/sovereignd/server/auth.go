package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"sovereign/crypto"
	"sovereign/observability/logging"
)

// AuthConfig configures HMAC JWT verification for admin routes.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

type adminContextKey struct{}

// AdminAuth verifies bearer tokens whose subject is the admin address.
type AdminAuth struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

// NewAdminAuth builds the admin authenticator. An empty secret rejects every
// admin request.
func NewAdminAuth(cfg AuthConfig, logger *slog.Logger) *AdminAuth {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminAuth{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.HMACSecret)), logger: logger}
}

// Middleware rejects requests without a valid admin token and stores the
// admin address in the request context.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}
		admin, err := a.verify(tokenString)
		if err != nil {
			a.logger.Warn("admin token rejected", "error", err, logging.MaskField("token", tokenString))
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
			return
		}
		ctx := context.WithValue(r.Context(), adminContextKey{}, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AdminAuth) verify(tokenString string) (crypto.Address, error) {
	if len(a.secret) == 0 {
		return crypto.Address{}, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return crypto.Address{}, err
	}
	if !token.Valid {
		return crypto.Address{}, errors.New("token invalid")
	}
	admin, err := crypto.ParseAddress(claims.Subject)
	if err != nil {
		return crypto.Address{}, errors.New("subject is not an address")
	}
	return admin, nil
}

// IssueAdminToken signs a short-lived admin token. Operators use it from the
// audit CLI and tests use it to drive admin routes.
func IssueAdminToken(secret string, admin crypto.Address, issuer, audience string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("secret required")
	}
	claims := jwt.RegisteredClaims{
		Subject:   admin.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

func adminFrom(ctx context.Context) (crypto.Address, bool) {
	admin, ok := ctx.Value(adminContextKey{}).(crypto.Address)
	return admin, ok
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
