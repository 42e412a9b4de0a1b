// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// Web session constants
const (
	// SessionDuration is how long a visitor session stays valid
	SessionDuration = 24 * time.Hour

	// SessionCleanupInterval is how often expired sessions and idle workspaces are swept
	SessionCleanupInterval = 10 * time.Minute

	// WorkspaceIdleTimeout evicts a visitor workspace (and releases its camera) after inactivity
	WorkspaceIdleTimeout = 30 * time.Minute
)

// Job constants
const (
	// JobRetention is how long finished analysis jobs remain queryable
	JobRetention = 15 * time.Minute
)
