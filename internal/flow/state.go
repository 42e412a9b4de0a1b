// Package flow drives one analysis session: selecting an image, running the
// combined analysis and holding its result. Transitions are computed by the
// pure Reduce function; Controller binds it to the acquirer and analyzer.
package flow

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/hijabist/internal/analysis"
	"github.com/kozaktomas/hijabist/internal/apperrors"
)

// State is a step of the analysis flow.
type State string

const (
	StateIdle          State = "idle"
	StateImageSelected State = "image_selected"
	StateAnalyzing     State = "analyzing"
	StateResultsReady  State = "results_ready"
	StateFailed        State = "failed"
)

// CaptureMode is how the user supplies an image.
type CaptureMode string

const (
	ModeUpload CaptureMode = "upload"
	ModeCamera CaptureMode = "camera"
)

// EventType identifies an Event.
type EventType string

const (
	EventImageSelected    EventType = "image_selected"
	EventImageRemoved     EventType = "image_removed"
	EventCameraOpened     EventType = "camera_opened"
	EventCameraClosed     EventType = "camera_closed"
	EventAnalyzeRequested EventType = "analyze_requested"
	EventSucceeded        EventType = "succeeded"
	EventFailed           EventType = "failed"
	EventRetry            EventType = "retry"
	EventReset            EventType = "reset"
	EventNotice           EventType = "notice"
)

// ErrInvalidTransition is returned by Reduce for events the current state
// does not accept.
var ErrInvalidTransition = errors.New("invalid transition")

// Notice is a transient message for the user.
type Notice struct {
	Kind        apperrors.Kind `json:"kind,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Destructive bool           `json:"destructive"`
}

// Snapshot is the observable state of a flow.
type Snapshot struct {
	State     State            `json:"state"`
	Mode      CaptureMode      `json:"mode"`
	HasImage  bool             `json:"hasImage"`
	PreviewID string           `json:"previewId,omitempty"`
	Result    *analysis.Result `json:"result,omitempty"`
	Err       error            `json:"-"`
	Notice    *Notice          `json:"notice,omitempty"`
	Progress  int              `json:"progress"`
}

// Initial is the snapshot of a fresh flow.
func Initial() Snapshot {
	return Snapshot{State: StateIdle, Mode: ModeUpload}
}

// Event is an input to Reduce.
type Event struct {
	Type      EventType
	PreviewID string
	Result    *analysis.Result
	Err       error
	Notice    *Notice
}

// Retryable reports whether a failed snapshot can be analyzed again.
func (s Snapshot) Retryable() bool {
	return s.State == StateFailed && s.HasImage
}

// Reduce computes the snapshot after e. It never mutates s. Notices are
// cleared by every event except EventNotice.
func Reduce(s Snapshot, e Event) (Snapshot, error) {
	next := s
	next.Notice = nil

	switch e.Type {
	case EventNotice:
		next.Notice = e.Notice
		return next, nil

	case EventReset:
		return Initial(), nil

	case EventImageSelected:
		if s.State == StateAnalyzing {
			return s, invalid(s, e)
		}
		next.State = StateImageSelected
		next.HasImage = true
		next.PreviewID = e.PreviewID
		next.Result = nil
		next.Err = nil
		next.Progress = 0
		return next, nil

	case EventImageRemoved:
		if s.State == StateAnalyzing {
			return s, invalid(s, e)
		}
		next.State = StateIdle
		next.HasImage = false
		next.PreviewID = ""
		next.Result = nil
		next.Err = nil
		next.Progress = 0
		return next, nil

	case EventCameraOpened:
		if s.State == StateAnalyzing {
			return s, invalid(s, e)
		}
		next.Mode = ModeCamera
		return next, nil

	case EventCameraClosed:
		next.Mode = ModeUpload
		return next, nil

	case EventAnalyzeRequested:
		if !s.HasImage || (s.State != StateImageSelected && s.State != StateFailed) {
			return s, invalid(s, e)
		}
		next.State = StateAnalyzing
		next.Result = nil
		next.Err = nil
		next.Progress = 0
		return next, nil

	case EventSucceeded:
		if s.State != StateAnalyzing {
			return s, invalid(s, e)
		}
		if err := e.Result.Validate(); err != nil {
			next.State = StateFailed
			next.Err = err
			return next, nil
		}
		next.State = StateResultsReady
		next.Result = e.Result
		next.Progress = 100
		return next, nil

	case EventFailed:
		if s.State != StateAnalyzing {
			return s, invalid(s, e)
		}
		next.State = StateFailed
		next.Err = e.Err
		if next.Err == nil {
			next.Err = apperrors.Internal("analysis failed", nil)
		}
		next.Progress = 0
		return next, nil

	case EventRetry:
		if s.State != StateFailed {
			return s, invalid(s, e)
		}
		next.Err = nil
		if s.HasImage {
			next.State = StateImageSelected
		} else {
			next.State = StateIdle
		}
		return next, nil
	}

	return s, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, e.Type)
}

func invalid(s Snapshot, e Event) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, e.Type, s.State)
}
