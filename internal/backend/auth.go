package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/kozaktomas/hijabist/internal/apperrors"
)

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)

	resp, err := doRequestJSON[LoginResponse](ctx, c, request{
		method:      http.MethodPost,
		endpoint:    endpointLogin,
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, authError(err, "Login failed")
	}
	if resp.Error {
		return nil, apperrors.AuthFailed(messageOr(resp.Message, "Login failed"), nil)
	}
	if resp.LoginResult == nil || resp.LoginResult.Token == "" {
		return nil, apperrors.MalformedResponse("login response has no token", nil)
	}
	return resp.LoginResult, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, displayName, email, password string) (*RegisterResponse, error) {
	form := url.Values{}
	form.Set("displayName", displayName)
	form.Set("email", email)
	form.Set("password", password)

	resp, err := doRequestJSON[RegisterResponse](ctx, c, request{
		method:      http.MethodPost,
		endpoint:    endpointRegister,
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, authError(err, "Registration failed")
	}
	if resp.Error {
		return nil, apperrors.AuthFailed(messageOr(resp.Message, "Registration failed"), nil)
	}
	return resp, nil
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context, token string) (*ProfileData, error) {
	resp, err := doRequestJSON[ProfileResponse](ctx, c, request{
		method:   http.MethodGet,
		endpoint: endpointProfile,
		token:    token,
	}, http.StatusOK)
	if err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, apperrors.RemoteAnalysis(messageOr(resp.Message, "profile request failed"), http.StatusOK, resp.Message)
	}
	if resp.Data == nil {
		return nil, apperrors.MalformedResponse("profile response has no data", nil)
	}
	return resp.Data, nil
}

// authError turns a rejected auth request into AuthFailed, using the
// envelope message from the response body when there is one.
func authError(err error, fallback string) error {
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.KindRemoteAnalysis {
		return err
	}
	var env Envelope
	msg := fallback
	if json.Unmarshal([]byte(appErr.RemoteBody), &env) == nil && env.Message != "" {
		msg = env.Message
	}
	authErr := apperrors.AuthFailed(msg, err)
	authErr.RemoteStatus = appErr.RemoteStatus
	authErr.RemoteBody = appErr.RemoteBody
	if appErr.RemoteStatus >= 500 {
		authErr.StatusCode = http.StatusBadGateway
	}
	return authErr
}

func messageOr(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}
