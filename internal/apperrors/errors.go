// Package apperrors defines the error taxonomy shared by acquisition,
// analysis and presentation code. Every failure a user can act on is an
// *AppError with a Kind; callers branch on IsKind instead of string matching.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an AppError.
type Kind string

const (
	KindPermissionDenied  Kind = "permission_denied"
	KindDeviceUnavailable Kind = "device_unavailable"
	KindDeviceBusy        Kind = "device_busy"
	KindCaptureNotReady   Kind = "capture_not_ready"
	KindInvalidFileType   Kind = "invalid_file_type"
	KindFileTooLarge      Kind = "file_too_large"
	KindNotAuthenticated  Kind = "not_authenticated"
	KindAuthFailed        Kind = "auth_failed"
	KindRemoteAnalysis    Kind = "remote_analysis"
	KindMalformedResponse Kind = "malformed_response"
	KindTimeout           Kind = "timeout"
	KindValidation        Kind = "validation"
	KindInternal          Kind = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"status_code"`

	// RemoteStatus and RemoteBody are set for KindRemoteAnalysis.
	RemoteStatus int    `json:"remote_status,omitempty"`
	RemoteBody   string `json:"remote_body,omitempty"`

	Cause error `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Kind == KindRemoteAnalysis {
		msg = fmt.Sprintf("%s (status %d: %s)", msg, e.RemoteStatus, e.RemoteBody)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, status int, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, StatusCode: status, Cause: cause}
}

// PermissionDenied reports that the user or device rejected camera access.
func PermissionDenied(message string, cause error) *AppError {
	return newError(KindPermissionDenied, http.StatusForbidden, message, cause)
}

// DeviceUnavailable reports a missing or unreachable camera.
func DeviceUnavailable(message string, cause error) *AppError {
	return newError(KindDeviceUnavailable, http.StatusServiceUnavailable, message, cause)
}

// DeviceBusy reports a camera held by another consumer.
func DeviceBusy(message string, cause error) *AppError {
	return newError(KindDeviceBusy, http.StatusConflict, message, cause)
}

// CaptureNotReady reports that no frame is available yet.
func CaptureNotReady(message string, cause error) *AppError {
	return newError(KindCaptureNotReady, http.StatusConflict, message, cause)
}

// InvalidFileType reports an upload outside the image allow-list.
func InvalidFileType(mimeType string) *AppError {
	e := newError(KindInvalidFileType, http.StatusUnsupportedMediaType,
		"Please select a valid image file (JPG, PNG, WEBP).", nil)
	e.Details = mimeType
	return e
}

// FileTooLarge reports an upload above the size limit.
func FileTooLarge(size int64) *AppError {
	e := newError(KindFileTooLarge, http.StatusRequestEntityTooLarge, "Image must be less than 10MB.", nil)
	e.Details = fmt.Sprintf("%d bytes", size)
	return e
}

// NotAuthenticated reports a missing session or token.
func NotAuthenticated(message string) *AppError {
	if message == "" {
		message = "User not authenticated"
	}
	return newError(KindNotAuthenticated, http.StatusUnauthorized, message, nil)
}

// AuthFailed reports a rejected login or registration.
func AuthFailed(message string, cause error) *AppError {
	return newError(KindAuthFailed, http.StatusUnauthorized, message, cause)
}

// RemoteAnalysis reports a non-2xx response from the prediction backend.
func RemoteAnalysis(message string, status int, body string) *AppError {
	e := newError(KindRemoteAnalysis, http.StatusBadGateway, message, nil)
	e.RemoteStatus = status
	e.RemoteBody = body
	return e
}

// MalformedResponse reports a backend payload missing required fields.
func MalformedResponse(message string, cause error) *AppError {
	return newError(KindMalformedResponse, http.StatusBadGateway, message, cause)
}

// Timeout reports an operation that exceeded its deadline.
func Timeout(message string, cause error) *AppError {
	return newError(KindTimeout, http.StatusGatewayTimeout, message, cause)
}

// Validation reports invalid user input.
func Validation(message string, cause error) *AppError {
	return newError(KindValidation, http.StatusBadRequest, message, cause)
}

// Internal reports an unexpected failure.
func Internal(message string, cause error) *AppError {
	return newError(KindInternal, http.StatusInternalServerError, message, cause)
}

// As returns the first *AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind checks if the error chain contains an AppError of the given kind
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// KindOf returns the kind of the first AppError in the chain, or KindInternal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// StatusCode extracts the HTTP status code from an error
func StatusCode(err error) int {
	if appErr, ok := As(err); ok && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing message of an error.
func Message(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return err.Error()
}
