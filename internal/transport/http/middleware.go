package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"slotbook/backend/internal/session"
	"slotbook/backend/internal/token"
)

type contextKey string

const (
	contextKeyUserID  contextKey = "user_id"
	contextKeyTokenID contextKey = "token_id"
	contextKeyRole    contextKey = "role"
)

// UserIDFromContext returns the authenticated caller set by the auth
// middleware. Identity is always explicit, never a process-wide value.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(contextKeyUserID).(uuid.UUID)
	return id, ok
}

func TokenIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeyTokenID).(string)
	return id, ok
}

// Authenticator verifies bearer tokens and checks the session is still
// live, so deleted sessions revoke otherwise-valid tokens.
type Authenticator struct {
	tokens   *token.Manager
	sessions session.Store
	log      *slog.Logger
}

func NewAuthenticator(tokens *token.Manager, sessions session.Store, log *slog.Logger) *Authenticator {
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{
		tokens:   tokens,
		sessions: sessions,
		log:      log.With(slog.String("component", "http.auth")),
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(raw, prefix) {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := a.tokens.Verify(strings.TrimSpace(strings.TrimPrefix(raw, prefix)))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		if _, err := a.sessions.Get(r.Context(), claims.ID); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}
			a.log.Error("session lookup failed", slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, userID)
		ctx = context.WithValue(ctx, contextKeyTokenID, claims.ID)
		ctx = context.WithValue(ctx, contextKeyRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger logs one line per request with method, path, status and
// duration.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "http"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.Info(
				"request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(started)),
			)
		})
	}
}
