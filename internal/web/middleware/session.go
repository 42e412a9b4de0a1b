package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/hijabist/internal/constants"
	"github.com/kozaktomas/hijabist/internal/logger"
)

const sessionCookieName = "hijabist_session"

// Session is a visitor session. A visitor is logged in when Token is set.
type Session struct {
	ID            string    `json:"id"`
	UID           string    `json:"uid,omitempty"`
	Email         string    `json:"email,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	Token         string    `json:"-"`
	RememberEmail string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Authenticated reports whether the visitor has logged in.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != ""
}

// StoredSession is the persisted form of a Session.
type StoredSession struct {
	ID            string
	UID           string
	Email         string
	DisplayName   string
	Token         string
	RememberEmail string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// SessionRepository persists sessions across restarts.
type SessionRepository interface {
	Save(ctx context.Context, s *StoredSession) error
	// Get returns nil when the session does not exist or has expired.
	Get(ctx context.Context, id string) (*StoredSession, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionManager creates, validates and persists visitor sessions. A nil
// repository keeps sessions in memory only.
type SessionManager struct {
	secret   []byte
	repo     SessionRepository
	sessions map[string]*Session
	mu       sync.RWMutex

	onDelete []func(id string)
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a session manager and starts the expiry sweeper.
// An empty secret is replaced by a random one, which invalidates cookies on restart.
func NewSessionManager(secret string, repo SessionRepository) *SessionManager {
	key := []byte(secret)
	if secret == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("failed to generate session secret: " + err.Error())
		}
		logger.Warn("WEB_SESSION_SECRET is not set, using a random secret")
	}
	sm := &SessionManager{
		secret:   key,
		repo:     repo,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
	go sm.cleanupLoop(constants.SessionCleanupInterval)
	return sm
}

// OnDelete registers fn to run when a session is deleted or expires.
func (sm *SessionManager) OnDelete(fn func(id string)) {
	sm.mu.Lock()
	sm.onDelete = append(sm.onDelete, fn)
	sm.mu.Unlock()
}

// CreateSession creates an anonymous visitor session.
func (sm *SessionManager) CreateSession(ctx context.Context) (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}
	now := time.Now()
	session := &Session{
		ID:        base64.RawURLEncoding.EncodeToString(idBytes),
		CreatedAt: now,
		ExpiresAt: now.Add(constants.SessionDuration),
	}
	if err := sm.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession returns a copy of a live session, consulting the repository
// when it is not in memory. Expired sessions are deleted.
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if !ok && sm.repo != nil {
		stored, err := sm.repo.Get(ctx, sessionID)
		if err != nil {
			logger.WithError(err).Warn("failed to load session")
			return nil
		}
		if stored == nil {
			return nil
		}
		session = fromStored(stored)
		sm.mu.Lock()
		sm.sessions[sessionID] = session
		sm.mu.Unlock()
	}
	if session == nil {
		return nil
	}

	if time.Now().After(session.ExpiresAt) {
		sm.DeleteSession(ctx, sessionID)
		return nil
	}

	c := *session
	return &c
}

// UpdateSession stores s in memory and in the repository.
func (sm *SessionManager) UpdateSession(ctx context.Context, s *Session) error {
	c := *s
	sm.mu.Lock()
	sm.sessions[s.ID] = &c
	sm.mu.Unlock()

	if sm.repo != nil {
		if err := sm.repo.Save(ctx, toStored(&c)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSession removes a session and runs the OnDelete hooks.
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	hooks := append([]func(string){}, sm.onDelete...)
	sm.mu.Unlock()

	if sm.repo != nil {
		if err := sm.repo.Delete(ctx, sessionID); err != nil {
			logger.WithError(err).Warn("failed to delete session")
		}
	}
	for _, fn := range hooks {
		fn(sessionID)
	}
}

// Stop halts the expiry sweeper.
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.stop) })
}

func (sm *SessionManager) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			sm.deleteExpired(context.Background())
		}
	}
}

func (sm *SessionManager) deleteExpired(ctx context.Context) {
	now := time.Now()
	var expired []string
	sm.mu.RLock()
	for id, s := range sm.sessions {
		if now.After(s.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	sm.mu.RUnlock()

	for _, id := range expired {
		sm.DeleteSession(ctx, id)
	}

	if sm.repo != nil {
		n, err := sm.repo.DeleteExpired(ctx)
		if err != nil {
			logger.WithError(err).Warn("failed to delete expired sessions")
			return
		}
		if n > 0 {
			logger.WithField("count", n).Debug("deleted expired sessions")
		}
	}
}

// SetSessionCookie sets the signed session cookie.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, r *http.Request, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID + "." + sm.signData(session.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(constants.SessionDuration.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest returns the session named by the signed cookie or
// a Bearer session ID, or nil.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if id, signature, ok := strings.Cut(cookie.Value, "."); ok && sm.verifySignature(id, signature) {
			if session := sm.GetSession(r.Context(), id); session != nil {
				return session
			}
		}
	}

	if id, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && id != "" {
		if session := sm.GetSession(r.Context(), id); session != nil {
			return session
		}
	}

	return nil
}

// EnsureSession returns the request's session, creating one and setting its
// cookie when there is none.
func (sm *SessionManager) EnsureSession(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if session := sm.GetSessionFromRequest(r); session != nil {
		return session, nil
	}
	session, err := sm.CreateSession(r.Context())
	if err != nil {
		return nil, err
	}
	sm.SetSessionCookie(w, r, session)
	return session, nil
}

func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func (sm *SessionManager) verifySignature(data, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(sm.signData(data)))
}

func toStored(s *Session) *StoredSession {
	return &StoredSession{
		ID:            s.ID,
		UID:           s.UID,
		Email:         s.Email,
		DisplayName:   s.DisplayName,
		Token:         s.Token,
		RememberEmail: s.RememberEmail,
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
	}
}

func fromStored(s *StoredSession) *Session {
	return &Session{
		ID:            s.ID,
		UID:           s.UID,
		Email:         s.Email,
		DisplayName:   s.DisplayName,
		Token:         s.Token,
		RememberEmail: s.RememberEmail,
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
	}
}
