// Package session adapts the backend's auth endpoints into a login session
// with change listeners and persistence.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/backend"
	"github.com/kozaktomas/hijabist/internal/logger"
	"github.com/kozaktomas/hijabist/internal/store"
)

// Session is the logged-in user.
type Session struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Token       string `json:"-"`
}

// Authenticator is the backend auth surface.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResult, error)
	Register(ctx context.Context, displayName, email, password string) (*backend.RegisterResponse, error)
}

// LoginInput is a login form.
type LoginInput struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	RememberEmail bool   `json:"rememberEmail"`
}

// RegisterInput is a registration form.
type RegisterInput struct {
	DisplayName string `json:"displayName" validate:"required,min=2,max=64"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
}

// Manager owns the current session. A nil persister keeps it in memory only.
type Manager struct {
	auth      Authenticator
	persister store.SessionStore
	validate  *validator.Validate

	mu        sync.RWMutex
	current   *Session
	listeners map[int]func(*Session)
	nextID    int
}

// NewManager creates a session manager.
func NewManager(auth Authenticator, persister store.SessionStore) *Manager {
	return &Manager{
		auth:      auth,
		persister: persister,
		validate:  validator.New(),
		listeners: make(map[int]func(*Session)),
	}
}

// Restore loads a persisted session, if any.
func (m *Manager) Restore(ctx context.Context) (*Session, error) {
	if m.persister == nil {
		return nil, nil
	}
	rec, err := m.persister.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Token == "" {
		return nil, nil
	}
	s := &Session{UID: rec.UID, Email: rec.Email, DisplayName: rec.DisplayName, Token: rec.Token}
	m.set(s)
	return s, nil
}

// Login authenticates, stores the session and notifies listeners.
func (m *Manager) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := m.validateInput(in); err != nil {
		return nil, err
	}

	res, err := m.auth.Login(ctx, in.Email, in.Password)
	if err != nil {
		return nil, friendly(err)
	}

	email := res.Email
	if email == "" {
		email = in.Email
	}
	s := &Session{UID: res.UID, Email: email, DisplayName: res.DisplayName, Token: res.Token}

	if m.persister != nil {
		rec := &store.SessionRecord{
			UID: s.UID, Email: s.Email, DisplayName: s.DisplayName, Token: s.Token, SavedAt: time.Now().UTC(),
		}
		if err := m.persister.SaveSession(ctx, rec); err != nil {
			return nil, apperrors.Internal("could not persist session", err)
		}
		remembered := ""
		if in.RememberEmail {
			remembered = in.Email
		}
		if err := m.persister.SetRememberedEmail(ctx, remembered); err != nil {
			logger.WithError(err).Warn("failed to store remembered email")
		}
	}

	m.set(s)
	logger.WithField("uid", s.UID).Info("user logged in")
	return s, nil
}

// Register creates an account. It does not log in.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (string, error) {
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Email = strings.TrimSpace(in.Email)
	if err := m.validateInput(in); err != nil {
		return "", err
	}

	resp, err := m.auth.Register(ctx, in.DisplayName, in.Email, in.Password)
	if err != nil {
		return "", friendly(err)
	}
	msg := resp.Message
	if msg == "" {
		msg = "Registration successful"
	}
	return msg, nil
}

// Logout clears the session and notifies listeners.
func (m *Manager) Logout(ctx context.Context) error {
	if m.persister != nil {
		if err := m.persister.ClearSession(ctx); err != nil {
			return apperrors.Internal("could not clear session", err)
		}
	}
	m.set(nil)
	return nil
}

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// RememberedEmail returns the email saved by a "remember me" login.
func (m *Manager) RememberedEmail(ctx context.Context) string {
	if m.persister == nil {
		return ""
	}
	email, err := m.persister.RememberedEmail(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to read remembered email")
		return ""
	}
	return email
}

// OnChange registers fn for session changes and returns an unsubscribe func.
func (m *Manager) OnChange(fn func(*Session)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// AuthToken returns the active session's bearer token.
func (m *Manager) AuthToken(_ context.Context) (string, error) {
	s := m.Current()
	if s == nil || s.Token == "" {
		return "", apperrors.NotAuthenticated("")
	}
	return s.Token, nil
}

func (m *Manager) set(s *Session) {
	m.mu.Lock()
	m.current = s
	listeners := make([]func(*Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		if s == nil {
			fn(nil)
			continue
		}
		c := *s
		fn(&c)
	}
}

func (m *Manager) validateInput(in any) error {
	err := m.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Validation("invalid input", err)
	}
	return apperrors.Validation(fieldMessage(verrs[0]), err)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Email":
		if fe.Tag() == "required" {
			return "Email is required"
		}
		return "Invalid email address"
	case "Password":
		if fe.Tag() == "required" {
			return "Password is required"
		}
		return authMessages["auth/weak-password"]
	case "DisplayName":
		if fe.Tag() == "required" {
			return "Name is required"
		}
		return "Name must be between 2 and 64 characters"
	}
	return fe.Error()
}

// friendly rewrites auth failures into user text; other errors pass through.
func friendly(err error) error {
	appErr, ok := apperrors.As(err)
	if !ok {
		out := apperrors.AuthFailed(authMessages["auth/network-request-failed"], err)
		out.StatusCode = http.StatusBadGateway
		return out
	}
	if appErr.Kind != apperrors.KindAuthFailed {
		return err
	}
	out := *appErr
	out.Message = FriendlyMessage(appErr.Message)
	return &out
}
