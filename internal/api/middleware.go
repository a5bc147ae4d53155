package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/db"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the signed-in caller of a request
type Principal struct {
	User model.User
	// Session is the token id; feedback messages are scoped to it
	Session string
	Token   string
}

// PrincipalFrom returns the caller stored by Authenticate
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Authenticate verifies the bearer token and loads the user from the directory.
// Roles come from the directory record so a role change applies immediately.
func (s *Server) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.logger.Debug("Missing or malformed Authorization header", zap.String("path", r.URL.Path))
			writeMessage(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		claims, err := s.auth.Verify(r.Context(), token)
		if err != nil {
			s.logger.Info("Token rejected", zap.Error(err))
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}

		record, err := s.store.GetUser(r.Context(), claims.UserID())
		if errors.Is(err, db.ErrNotFound) {
			writeMessage(w, http.StatusUnauthorized, "user no longer exists")
			return
		}
		if err != nil {
			s.logger.Error("Failed to load session user", zap.String("uid", claims.UserID()), zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !record.Enabled {
			writeMessage(w, http.StatusForbidden, "user disabled")
			return
		}

		p := &Principal{User: record.ToModel(), Session: claims.ID, Token: token}
		ctx := context.WithValue(r.Context(), principalKey, p)
		next(w, r.WithContext(ctx))
	}
}

// RequireRole authenticates and then checks the caller holds one of roles
func (s *Server) RequireRole(roles []model.Role, next http.HandlerFunc) http.HandlerFunc {
	return s.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		for _, role := range roles {
			if p.User.Roles.Has(role) {
				next(w, r)
				return
			}
		}
		s.logger.Info("Role mismatch",
			zap.String("uid", p.User.ID),
			zap.Stringer("roles", p.User.Roles),
			zap.String("path", r.URL.Path))
		writeMessage(w, http.StatusForbidden, "forbidden")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument logs the request and records it under the route pattern
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		if s.metrics != nil {
			s.metrics.ObserveRequest(route, rec.status, elapsed)
		}
		s.logger.Debug("Request handled",
			zap.String("route", route),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed))
	})
}

// CORS allows the listed origins; "*" allows any
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Vary", "Origin")
				break
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
