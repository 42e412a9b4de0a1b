package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T, repo SessionRepository) *SessionManager {
	t.Helper()
	sm := NewSessionManager("test-secret", repo)
	t.Cleanup(sm.Stop)
	return sm
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("Session cookie not found")
	return nil
}

type memoryRepo struct {
	mu       sync.Mutex
	sessions map[string]StoredSession
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sessions: make(map[string]StoredSession)}
}

func (m *memoryRepo) Save(_ context.Context, s *StoredSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (*StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memoryRepo) DeleteExpired(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if time.Now().After(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func TestSessionManager_CreateSession(t *testing.T) {
	sm := newTestManager(t, nil)

	session, err := sm.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ID == "" {
		t.Error("session ID is empty")
	}
	if session.Authenticated() {
		t.Error("a new session must be anonymous")
	}
	if session.ExpiresAt.Before(time.Now()) {
		t.Error("session expires in the past")
	}
}

func TestSessionManager_UpdateAndGetSession(t *testing.T) {
	sm := newTestManager(t, nil)
	ctx := context.Background()

	session, _ := sm.CreateSession(ctx)
	session.UID = "u1"
	session.Token = "tok"
	if err := sm.UpdateSession(ctx, session); err != nil {
		t.Fatal(err)
	}

	retrieved := sm.GetSession(ctx, session.ID)
	if retrieved == nil || retrieved.Token != "tok" || !retrieved.Authenticated() {
		t.Fatalf("GetSession() = %+v", retrieved)
	}

	// Returned sessions are copies.
	retrieved.Token = "changed"
	if again := sm.GetSession(ctx, session.ID); again.Token != "tok" {
		t.Error("mutating a returned session must not change the stored one")
	}

	if sm.GetSession(ctx, "nonexistent-id") != nil {
		t.Error("GetSession() should return nil for non-existing session")
	}
}

func TestSessionManager_DeleteSessionRunsHooks(t *testing.T) {
	sm := newTestManager(t, nil)
	ctx := context.Background()

	var deleted []string
	sm.OnDelete(func(id string) { deleted = append(deleted, id) })

	session, _ := sm.CreateSession(ctx)
	sm.DeleteSession(ctx, session.ID)

	if sm.GetSession(ctx, session.ID) != nil {
		t.Error("GetSession() should return nil after deletion")
	}
	if len(deleted) != 1 || deleted[0] != session.ID {
		t.Errorf("OnDelete hooks got %v", deleted)
	}
}

func TestSessionManager_ExpiredSession(t *testing.T) {
	sm := newTestManager(t, nil)
	ctx := context.Background()

	session, _ := sm.CreateSession(ctx)
	session.ExpiresAt = time.Now().Add(-time.Minute)
	sm.UpdateSession(ctx, session)

	if sm.GetSession(ctx, session.ID) != nil {
		t.Error("expired session must not be returned")
	}
}

func TestSessionManager_RestoresFromRepository(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	first := newTestManager(t, repo)
	session, _ := first.CreateSession(ctx)
	session.UID = "u1"
	session.Token = "tok"
	first.UpdateSession(ctx, session)

	// A new manager (after a restart) finds the session in the repository.
	second := newTestManager(t, repo)
	restored := second.GetSession(ctx, session.ID)
	if restored == nil || restored.UID != "u1" || restored.Token != "tok" {
		t.Fatalf("GetSession() = %+v", restored)
	}

	second.DeleteSession(ctx, session.ID)
	if s, _ := repo.Get(ctx, session.ID); s != nil {
		t.Error("DeleteSession must remove the stored session")
	}
}

func TestSessionManager_CookieRoundTrip(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession(context.Background())

	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, httptest.NewRequest("GET", "/", nil), session)
	cookie := sessionCookie(t, w)
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)
	retrieved := sm.GetSessionFromRequest(req)
	if retrieved == nil || retrieved.ID != session.ID {
		t.Fatalf("GetSessionFromRequest() = %+v", retrieved)
	}
}

func TestSessionManager_InvalidCookie(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession(context.Background())

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: session.ID + ".forged-signature"})

	if sm.GetSessionFromRequest(req) != nil {
		t.Error("GetSessionFromRequest() should return nil for invalid signature")
	}
}

func TestSessionManager_BearerAuth(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession(context.Background())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)

	retrieved := sm.GetSessionFromRequest(req)
	if retrieved == nil || retrieved.ID != session.ID {
		t.Fatalf("GetSessionFromRequest() = %+v", retrieved)
	}
}

func TestRequireSession_CreatesOnDemand(t *testing.T) {
	sm := newTestManager(t, nil)

	var seen *Session
	handler := RequireSession(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetSessionFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/analysis", nil))
	if seen == nil {
		t.Fatal("session not found in context")
	}
	cookie := sessionCookie(t, w)

	// The cookie resumes the same session.
	req := httptest.NewRequest("GET", "/api/v1/analysis", nil)
	req.AddCookie(cookie)
	first := seen.ID
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen.ID != first {
		t.Errorf("session ID = %s, want %s", seen.ID, first)
	}
}

func TestRequireAuth(t *testing.T) {
	sm := newTestManager(t, nil)
	ctx := context.Background()

	anonymous, _ := sm.CreateSession(ctx)
	loggedIn, _ := sm.CreateSession(ctx)
	loggedIn.UID = "u1"
	loggedIn.Token = "tok"
	sm.UpdateSession(ctx, loggedIn)

	handlerCalled := false
	protected := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if GetSessionFromContext(r.Context()) == nil {
			t.Error("Session not found in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		sessionID  string
		wantStatus int
		wantCalled bool
	}{
		{"logged in", loggedIn.ID, http.StatusOK, true},
		{"anonymous", anonymous.ID, http.StatusUnauthorized, false},
		{"no session", "", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled = false
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.sessionID != "" {
				req.Header.Set("Authorization", "Bearer "+tt.sessionID)
			}
			protected.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if handlerCalled != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", handlerCalled, tt.wantCalled)
			}
		})
	}
}

func TestSessionManager_ClearSessionCookie(t *testing.T) {
	sm := newTestManager(t, nil)

	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w)

	if c := sessionCookie(t, w); c.MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1 (expired)", c.MaxAge)
	}
}

func TestSession_JSONHidesToken(t *testing.T) {
	data, err := json.Marshal(&Session{ID: "test123", Token: "secret-token", RememberEmail: "a@b.co"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret-token") || strings.Contains(string(data), "a@b.co") {
		t.Errorf("JSON leaks private fields: %s", data)
	}
	if !strings.Contains(string(data), "test123") {
		t.Error("JSON should contain the session id")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, time.Hour)
	defer rl.Stop()

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/analysis/start", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v", codes)
	}

	// Another visitor has its own budget.
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/analysis/start", nil)
	req = req.WithContext(SetSessionInContext(req.Context(), &Session{ID: "other"}))
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("other visitor status = %d", w.Code)
	}

	if rl.Len() != 2 {
		t.Errorf("tracked visitors = %d, want 2", rl.Len())
	}
	rl.cleanup(time.Now().Add(3 * time.Hour))
	if rl.Len() != 0 {
		t.Errorf("idle visitors not evicted, %d left", rl.Len())
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"http://localhost:8080/", "https://hijab.example.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantAllowed bool
	}{
		{"preflight from page", http.MethodOptions, "http://localhost:8080", http.StatusNoContent, true},
		{"preflight from extra origin", http.MethodOptions, "https://hijab.example.com", http.StatusNoContent, true},
		{"preflight from other origin", http.MethodOptions, "https://evil.example", http.StatusForbidden, false},
		{"other localhost port", http.MethodGet, "http://localhost:3000", http.StatusOK, false},
		{"simple request from other origin", http.MethodGet, "https://evil.example", http.StatusOK, false},
		{"same-origin request", http.MethodGet, "", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/analysis", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			got := w.Header().Get("Access-Control-Allow-Origin")
			if tt.wantAllowed && got != tt.origin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.origin)
			}
			if !tt.wantAllowed && got != "" {
				t.Errorf("unexpected Allow-Origin %q", got)
			}
			if tt.wantAllowed {
				methods := w.Header().Get("Access-Control-Allow-Methods")
				if strings.Contains(methods, "PUT") || !strings.Contains(methods, "DELETE") {
					t.Errorf("Allow-Methods = %q", methods)
				}
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/previews/x", nil))

	if got := w.Header().Get("Content-Security-Policy"); got != "default-src 'none'; img-src 'self'; frame-ancestors 'none'" {
		t.Errorf("Content-Security-Policy = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	tests := []struct {
		perSecond float64
		want      string
	}{
		{0.5, "2"},
		{10, "1"},
		{0, "60"},
		{-1, "60"},
	}
	for _, tt := range tests {
		rl := NewRateLimiter(tt.perSecond, 0, time.Hour)
		w := httptest.NewRecorder()
		rl.writeLimited(w)
		rl.Stop()

		if got := w.Header().Get("Retry-After"); got != tt.want {
			t.Errorf("limit %v: Retry-After = %q, want %q", tt.perSecond, got, tt.want)
		}
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("limit %v: status = %d", tt.perSecond, w.Code)
		}
	}
}
