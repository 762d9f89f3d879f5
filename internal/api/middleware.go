package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bookstore/services/storefront/internal/auth"
	"github.com/bookstore/services/storefront/internal/db"
	"github.com/bookstore/services/storefront/internal/repo"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type contextKey string

const contextKeyClaims contextKey = "claims"

const (
	msgMissingToken = "missing token"
	msgInvalidToken = "invalid or expired token"
)

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// claimsFrom returns the verified token claims of the request, if any.
func claimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(contextKeyClaims).(*auth.Claims)
	return claims, ok && claims != nil
}

func requestID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// requestLogger logs one line per request once the response is written.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID(r.Context())),
			zap.String("remote_ip", r.RemoteAddr),
		}
		switch {
		case ww.Status() >= 500:
			s.log.Error("HTTP request failed", fields...)
		case ww.Status() >= 400:
			s.log.Warn("HTTP request rejected", fields...)
		default:
			s.log.Info("HTTP request completed", fields...)
		}
	})
}

// bearerToken extracts the token from the Authorization header. present is
// false when no header was sent at all.
func bearerToken(r *http.Request) (token string, present bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", true
	}
	return strings.TrimSpace(parts[1]), true
}

// authenticate verifies the request token. It writes the error response and
// returns ok=false when the request must stop.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, required bool) (*http.Request, bool) {
	token, present := bearerToken(r)
	if !present {
		if required {
			writeError(w, http.StatusUnauthorized, msgMissingToken)
			return r, false
		}
		return r, true
	}
	if token == "" {
		writeError(w, http.StatusForbidden, msgInvalidToken)
		return r, false
	}

	claims, err := s.tokens.Verify(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			s.log.Debug("Rejected token", zap.Error(err))
			writeError(w, http.StatusForbidden, msgInvalidToken)
			return r, false
		}
		s.internalError(w, r, "failed to verify token", err)
		return r, false
	}

	return r.WithContext(withClaims(r.Context(), claims)), true
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, ok := s.authenticate(w, r, true)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// optionalAuth attaches claims when a token is sent. A bad token is still
// rejected.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, ok := s.authenticate(w, r, false)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// currentUser loads the stored account behind the request token, so renames
// and role changes apply before the token expires. It writes the error
// response when ok is false.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*db.User, bool) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgMissingToken)
		return nil, false
	}

	user, err := s.users.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return nil, false
		}
		s.internalError(w, r, "failed to load user", err)
		return nil, false
	}
	return user, true
}

// requireAdmin must run after requireAuth. The role is read from the stored
// user, not the token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r.Context())
		if !ok {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		user, err := s.users.GetUser(r.Context(), claims.UserID)
		if err != nil && !errors.Is(err, repo.ErrUserNotFound) {
			s.internalError(w, r, "failed to load user", err)
			return
		}
		if err != nil || !user.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
