package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/backend/internal/service/users"
	"slotbook/backend/internal/session"
	"slotbook/backend/internal/token"
)

type memSessions struct {
	mu    sync.Mutex
	users map[string]string
}

func newMemSessions() *memSessions {
	return &memSessions{users: make(map[string]string)}
}

func (m *memSessions) Save(_ context.Context, tokenID, userID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[tokenID] = userID
	return nil
}

func (m *memSessions) Get(_ context.Context, tokenID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.users[tokenID]
	if !ok {
		return "", session.ErrNotFound
	}
	return userID, nil
}

func (m *memSessions) Delete(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, tokenID)
	return nil
}

func newRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// newAuthenticatedRequest builds a request carrying the context values the
// auth middleware would have set, for exercising handlers directly.
func newAuthenticatedRequest(method, target string, body any, userID uuid.UUID, tokenID string) *http.Request {
	req := newRequest(method, target, body)
	ctx := context.WithValue(req.Context(), contextKeyUserID, userID)
	ctx = context.WithValue(ctx, contextKeyTokenID, tokenID)
	return req.WithContext(ctx)
}

func recordHandler(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func testAuthenticator(t *testing.T) (*Authenticator, *token.Manager, *memSessions) {
	t.Helper()

	tokens, err := token.NewManager("test-secret", time.Minute)
	require.NoError(t, err)
	sessions := newMemSessions()
	return NewAuthenticator(tokens, sessions, nil), tokens, sessions
}

func identityEcho(t *testing.T, wantUserID uuid.UUID, wantTokenID string) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, wantUserID, userID)

		tokenID, ok := TokenIDFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, wantTokenID, tokenID)

		w.WriteHeader(http.StatusNoContent)
	}
}

func TestAuthenticator_ValidTokenWithLiveSession(t *testing.T) {
	auth, tokens, sessions := testAuthenticator(t)

	userID := uuid.New()
	signed, tokenID, err := tokens.Issue(userID.String(), "client")
	require.NoError(t, err)
	require.NoError(t, sessions.Save(context.Background(), tokenID, userID.String(), time.Minute))

	req := newRequest(http.MethodGet, "/user/profile", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	auth.Middleware(identityEcho(t, userID, tokenID)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthenticator_MissingHeader(t *testing.T) {
	auth, _, _ := testAuthenticator(t)

	req := newRequest(http.MethodGet, "/user/profile", nil)
	rec := httptest.NewRecorder()
	auth.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without credentials")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticator_GarbageToken(t *testing.T) {
	auth, _, _ := testAuthenticator(t)

	req := newRequest(http.MethodGet, "/user/profile", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	auth.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run with a garbage token")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticator_RevokedSession(t *testing.T) {
	auth, tokens, sessions := testAuthenticator(t)

	userID := uuid.New()
	signed, tokenID, err := tokens.Issue(userID.String(), "client")
	require.NoError(t, err)
	require.NoError(t, sessions.Save(context.Background(), tokenID, userID.String(), time.Minute))
	require.NoError(t, sessions.Delete(context.Background(), tokenID))

	req := newRequest(http.MethodGet, "/user/profile", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	auth.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run after the session is revoked")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "session expired")
}

func TestRouter_ProtectedRoutesRequireAuth(t *testing.T) {
	auth, _, _ := testAuthenticator(t)
	router := NewRouter(
		NewScheduleHandler(&fakeBooking{}, &fakeReconcile{}, nil),
		NewUserHandler(&fakeUsers{}, nil),
		auth,
		nil,
		RouterConfig{},
	)

	for _, tc := range []struct {
		method string
		target string
	}{
		{http.MethodPost, "/user/logout"},
		{http.MethodGet, "/user/profile"},
		{http.MethodPut, "/user/profile"},
	} {
		req := newRequest(tc.method, tc.target, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equalf(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.target)
	}
}

func TestRouter_Healthz(t *testing.T) {
	auth, _, _ := testAuthenticator(t)
	router := NewRouter(
		NewScheduleHandler(&fakeBooking{}, &fakeReconcile{}, nil),
		NewUserHandler(&fakeUsers{}, nil),
		auth,
		nil,
		RouterConfig{},
	)

	req := newRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_AuthRateLimit(t *testing.T) {
	auth, _, _ := testAuthenticator(t)
	router := NewRouter(
		NewScheduleHandler(&fakeBooking{}, &fakeReconcile{}, nil),
		NewUserHandler(&fakeUsers{
			loginFn: func(context.Context, string, string) (users.LoginOutput, error) {
				return users.LoginOutput{}, users.ErrInvalidCredentials
			},
		}, nil),
		auth,
		nil,
		RouterConfig{AuthRateLimit: 2, AuthRateLimitWindow: time.Minute},
	)

	body := map[string]string{"email": "jane@example.com", "password": "wrong-horse"}
	var last int
	for i := 0; i < 3; i++ {
		req := newRequest(http.MethodPost, "/user/login", body)
		req.RemoteAddr = "203.0.113.9:4242"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}
