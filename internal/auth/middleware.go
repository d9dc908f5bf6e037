package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bher20/kwhmedio/internal/log"
)

type contextKey string

const TokenContextKey contextKey = "token"

// TokenFromContext returns the token Require authenticated.
func TokenFromContext(ctx context.Context) (*Token, bool) {
	t, ok := ctx.Value(TokenContextKey).(*Token)
	return t, ok
}

// Require authenticates the bearer token and checks that its role may
// perform act on obj.
func (s *Service) Require(obj, act string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.Ctx(r.Context())

		scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || scheme != "Bearer" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="kwhmedio"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		token, err := s.Authenticate(raw)
		if errors.Is(err, ErrTooManyAttempts) {
			logger.Warn("auth: verification rate limited")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		if err != nil {
			logger.Warn("auth: rejected token", "error", err)
			msg := "Invalid token"
			if errors.Is(err, ErrTokenExpired) {
				msg = "Token expired"
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="kwhmedio", error="invalid_token"`)
			http.Error(w, msg, http.StatusUnauthorized)
			return
		}

		allowed, err := s.Enforce(token.Name, obj, act)
		if err != nil {
			logger.Error("auth: enforce failed", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			logger.Warn("auth: permission denied", "token", token.Name, "obj", obj, "act", act)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), TokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(log.With(ctx, logger.With("token", token.Name))))
	})
}
