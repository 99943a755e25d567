package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AuthConfig configures the bearer-token check applied to administrative
// endpoints (/contract/deploy, /contract/call, /gov/proposals|vote|deposit). Unlike the
// gateway's multi-scope Authenticator, the node recognizes exactly one
// role: there is no operator hierarchy to model here, just "is this caller
// the node operator".
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

const operatorRole = "operator"

// Authenticator validates the bearer token on administrative requests.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

// NewAuthenticator builds an Authenticator. If cfg.Enabled is false every
// request is let through, matching a single-node development deployment
// with no reverse proxy in front of it.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.HMACSecret)), logger: logger}
}

type contextKey string

const contextKeyOperator contextKey = "rpc.operator"

// RequireOperator wraps next, rejecting requests that do not carry a valid
// bearer token naming the operator role. Disabled auth passes everything
// through unchanged.
func (a *Authenticator) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := a.parse(token)
		if err != nil {
			a.logger.Warn("rpc auth: token rejected", "error", err)
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if err := a.validateClaims(claims); err != nil {
			a.logger.Warn("rpc auth: claims rejected", "error", err)
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		role, _ := claims["role"].(string)
		if role != operatorRole {
			writeJSONError(w, http.StatusForbidden, "operator role required")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyOperator, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) parse(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("rpc auth: HMAC secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not a map")
	}
	return claims, nil
}

func (a *Authenticator) validateClaims(claims jwt.MapClaims) error {
	if a.cfg.Issuer != "" {
		if v, ok := claims["iss"].(string); !ok || v != a.cfg.Issuer {
			return errors.New("issuer mismatch")
		}
	}
	if a.cfg.Audience != "" {
		if v, ok := claims["aud"].(string); !ok || v != a.cfg.Audience {
			return errors.New("audience mismatch")
		}
	}
	if exp, ok := claims["exp"].(float64); ok && int64(exp) < time.Now().Unix() {
		return errors.New("token expired")
	}
	return nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
