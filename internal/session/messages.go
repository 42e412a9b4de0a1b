package session

import "strings"

const defaultAuthMessage = "An error occurred. Please try again"

var authMessages = map[string]string{
	"auth/user-not-found":         "No account found with this email address",
	"auth/wrong-password":         "Incorrect password",
	"auth/invalid-credential":     "Invalid email or password",
	"auth/email-already-in-use":   "An account with this email already exists",
	"auth/weak-password":          "Password should be at least 6 characters",
	"auth/invalid-email":          "Invalid email address",
	"auth/too-many-requests":      "Too many failed attempts. Please try again later",
	"auth/network-request-failed": "Network error. Please check your connection",
	"auth/requires-recent-login":  "Please log in again to continue",
}

// FriendlyMessage maps an auth provider error code, bare or embedded in a
// message such as "Firebase: Error (auth/wrong-password).", to user text.
// Messages without a known code are returned unchanged.
func FriendlyMessage(msg string) string {
	trimmed := strings.TrimSpace(msg)
	if trimmed == "" {
		return defaultAuthMessage
	}
	for code, friendly := range authMessages {
		if strings.Contains(trimmed, code) {
			return friendly
		}
	}
	return trimmed
}
