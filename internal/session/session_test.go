package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/backend"
	"github.com/kozaktomas/hijabist/internal/store"
)

type fakeAuth struct {
	loginErr    error
	registerErr error
	logins      int
	passwords   []string
	registered  []string
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (*backend.LoginResult, error) {
	f.logins++
	f.passwords = append(f.passwords, password)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &backend.LoginResult{UID: "u1", Email: email, DisplayName: "Aisyah", Token: "tok"}, nil
}

func (f *fakeAuth) Register(_ context.Context, displayName, _, _ string) (*backend.RegisterResponse, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.registered = append(f.registered, displayName)
	return &backend.RegisterResponse{Envelope: backend.Envelope{Message: "User created"}}, nil
}

func newManager(t *testing.T, auth *fakeAuth) (*Manager, *store.FileStore) {
	t.Helper()
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	return NewManager(auth, fs), fs
}

func TestLogin_PersistsAndNotifies(t *testing.T) {
	m, fs := newManager(t, &fakeAuth{})
	ctx := context.Background()

	var events []*Session
	unsubscribe := m.OnChange(func(s *Session) { events = append(events, s) })
	defer unsubscribe()

	s, err := m.Login(ctx, LoginInput{Email: " aisyah@example.com ", Password: "secret1", RememberEmail: true})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if s.UID != "u1" || s.Email != "aisyah@example.com" {
		t.Errorf("Login() = %+v", s)
	}
	if len(events) != 1 || events[0].UID != "u1" {
		t.Errorf("listener events = %v", events)
	}

	token, err := m.AuthToken(ctx)
	if err != nil || token != "tok" {
		t.Errorf("AuthToken() = %q, %v", token, err)
	}

	rec, _ := fs.LoadSession(ctx)
	if rec == nil || rec.Token != "tok" {
		t.Errorf("persisted session = %+v", rec)
	}
	if got := m.RememberedEmail(ctx); got != "aisyah@example.com" {
		t.Errorf("RememberedEmail() = %q", got)
	}

	// A fresh manager resumes the persisted session.
	restored := NewManager(&fakeAuth{}, fs)
	if s, err := restored.Restore(ctx); err != nil || s == nil || s.UID != "u1" {
		t.Errorf("Restore() = %+v, %v", s, err)
	}
}

func TestLogin_WithoutRememberClearsEmail(t *testing.T) {
	m, fs := newManager(t, &fakeAuth{})
	ctx := context.Background()
	fs.SetRememberedEmail(ctx, "old@example.com")

	if _, err := m.Login(ctx, LoginInput{Email: "a@b.co", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}
	if got := m.RememberedEmail(ctx); got != "" {
		t.Errorf("RememberedEmail() = %q, want empty", got)
	}
}

func TestLogin_KeepsPasswordVerbatim(t *testing.T) {
	auth := &fakeAuth{}
	m, _ := newManager(t, auth)

	if _, err := m.Login(context.Background(), LoginInput{Email: " a@b.co ", Password: "  pass word  "}); err != nil {
		t.Fatal(err)
	}
	if len(auth.passwords) != 1 || auth.passwords[0] != "  pass word  " {
		t.Errorf("password sent = %q, want it unchanged", auth.passwords)
	}
}

func TestLogin_Validation(t *testing.T) {
	auth := &fakeAuth{}
	m, _ := newManager(t, auth)

	tests := []struct {
		name string
		in   LoginInput
		want string
	}{
		{"missing email", LoginInput{Password: "x"}, "Email is required"},
		{"bad email", LoginInput{Email: "nope", Password: "x"}, "Invalid email address"},
		{"missing password", LoginInput{Email: "a@b.co"}, "Password is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Login(context.Background(), tt.in)
			appErr, ok := apperrors.As(err)
			if !ok || appErr.Kind != apperrors.KindValidation {
				t.Fatalf("expected Validation, got %v", err)
			}
			if appErr.Message != tt.want {
				t.Errorf("Message = %q, want %q", appErr.Message, tt.want)
			}
		})
	}
	if auth.logins != 0 {
		t.Error("invalid input must not reach the backend")
	}
}

func TestLogin_FriendlyErrors(t *testing.T) {
	m, _ := newManager(t, &fakeAuth{loginErr: apperrors.AuthFailed("Firebase: Error (auth/wrong-password).", nil)})
	_, err := m.Login(context.Background(), LoginInput{Email: "a@b.co", Password: "x"})
	if got := apperrors.Message(err); got != "Incorrect password" {
		t.Errorf("Message = %q", got)
	}
	if m.Current() != nil {
		t.Error("failed login must not set a session")
	}

	m, _ = newManager(t, &fakeAuth{loginErr: errors.New("dial tcp: connection refused")})
	_, err = m.Login(context.Background(), LoginInput{Email: "a@b.co", Password: "x"})
	if got := apperrors.Message(err); got != "Network error. Please check your connection" {
		t.Errorf("Message = %q", got)
	}
}

func TestRegister(t *testing.T) {
	auth := &fakeAuth{}
	m, _ := newManager(t, auth)

	if _, err := m.Register(context.Background(), RegisterInput{DisplayName: "A", Email: "a@b.co", Password: "secret1"}); !apperrors.IsKind(err, apperrors.KindValidation) {
		t.Errorf("short name: expected Validation, got %v", err)
	}
	if _, err := m.Register(context.Background(), RegisterInput{DisplayName: "Aisyah", Email: "a@b.co", Password: "123"}); apperrors.Message(err) != "Password should be at least 6 characters" {
		t.Errorf("weak password: got %v", err)
	}

	msg, err := m.Register(context.Background(), RegisterInput{DisplayName: " Aisyah ", Email: "a@b.co", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if msg != "User created" || len(auth.registered) != 1 || auth.registered[0] != "Aisyah" {
		t.Errorf("Register() = %q, registered %v", msg, auth.registered)
	}
	if m.Current() != nil {
		t.Error("Register must not log in")
	}
}

func TestLogout(t *testing.T) {
	m, fs := newManager(t, &fakeAuth{})
	ctx := context.Background()
	if _, err := m.Login(ctx, LoginInput{Email: "a@b.co", Password: "x"}); err != nil {
		t.Fatal(err)
	}

	last := &Session{}
	m.OnChange(func(s *Session) { last = s })

	if err := m.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if last != nil || m.Current() != nil {
		t.Error("expected session cleared and listeners notified with nil")
	}
	if _, err := m.AuthToken(ctx); !apperrors.IsKind(err, apperrors.KindNotAuthenticated) {
		t.Errorf("AuthToken() after logout = %v", err)
	}
	if rec, _ := fs.LoadSession(ctx); rec != nil {
		t.Error("persisted session should be cleared")
	}
}

func TestFriendlyMessage(t *testing.T) {
	tests := map[string]string{
		"auth/user-not-found":                       "No account found with this email address",
		"Firebase: Error (auth/too-many-requests).": "Too many failed attempts. Please try again later",
		"auth/email-already-in-use":                 "An account with this email already exists",
		"":                                          "An error occurred. Please try again",
		"Server is down":                            "Server is down",
	}
	for in, want := range tests {
		if got := FriendlyMessage(in); got != want {
			t.Errorf("FriendlyMessage(%q) = %q, want %q", in, got, want)
		}
	}
}
