// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Upload constants
const (
	// MaxUploadSize is the largest image accepted for analysis (10 MiB)
	MaxUploadSize = 10 * 1024 * 1024

	// MaxUploadFormOverhead is the slack allowed on top of MaxUploadSize for
	// multipart boundaries and headers when reading web uploads
	MaxUploadFormOverhead = 1 << 20
)

// AllowedImageTypes lists the MIME types accepted from uploads and captures.
var AllowedImageTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/webp"}

// Capture constants
const (
	// MaxCaptureDimension is the maximum width or height of an encoded camera frame
	MaxCaptureDimension = 1280

	// JPEGQuality is the encoder quality used for captured frames
	JPEGQuality = 85

	// CaptureFileName is the file name given to captured frames
	CaptureFileName = "capture.jpg"

	// DefaultFacingMode is the camera facing mode used when none is requested
	DefaultFacingMode = "user"
)

// Progress constants
const (
	// ProgressStep is how much the cosmetic progress counter grows per tick
	ProgressStep = 10

	// ProgressInterval is the tick period of the cosmetic progress counter
	ProgressInterval = 300 * time.Millisecond

	// ProgressCap is the value the counter stops at while analysis is pending
	ProgressCap = 90

	// ProgressDone is the value reported after a successful analysis
	ProgressDone = 100
)

// Analysis constants
const (
	// DefaultSkinToneConfidence is reported for skin tone results; the backend
	// does not return a confidence for them
	DefaultSkinToneConfidence = 0.8

	// DefaultAnalysisTimeout bounds a combined analysis unless configured otherwise
	DefaultAnalysisTimeout = 2 * time.Minute

	// MaxLabelDistance is the largest edit distance at which a backend face
	// label is snapped to a known face shape
	MaxLabelDistance = 2
)

// Presentation constants
const (
	// ThumbnailPlaceholder is returned when no video ID can be extracted
	ThumbnailPlaceholder = "https://via.placeholder.com/320x180"

	// ShareTitle is the title used when sharing results
	ShareTitle = "My Hijab Analysis Results"
)
