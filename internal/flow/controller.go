package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/kozaktomas/hijabist/internal/analysis"
	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/logger"
	"github.com/kozaktomas/hijabist/internal/media"
	"github.com/kozaktomas/hijabist/internal/progress"
)

// Analyzer runs the combined analysis.
type Analyzer interface {
	PerformCombinedAnalysis(ctx context.Context, img *media.Image) (*analysis.Result, error)
}

// Controller dispatches user actions to Reduce and performs their side
// effects. It is safe for concurrent use.
type Controller struct {
	acquirer *media.Acquirer
	analyzer Analyzer
	progress *progress.Reporter

	mu        sync.Mutex
	snap      Snapshot
	cancel    context.CancelFunc
	runID     int
	listeners map[int]func(Snapshot)
	nextID    int

	unsubscribeProgress func()
}

// NewController creates a controller. A nil reporter gets the default one.
func NewController(acquirer *media.Acquirer, analyzer Analyzer, reporter *progress.Reporter) *Controller {
	if reporter == nil {
		reporter = progress.NewReporter()
	}
	c := &Controller{
		acquirer:  acquirer,
		analyzer:  analyzer,
		progress:  reporter,
		snap:      Initial(),
		listeners: make(map[int]func(Snapshot)),
	}
	c.unsubscribeProgress = reporter.Subscribe(c.onProgress)
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Subscribe registers fn for snapshot changes and returns an unsubscribe func.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Acquirer returns the acquirer that holds the selected image.
func (c *Controller) Acquirer() *media.Acquirer {
	return c.acquirer
}

// SelectUpload validates and selects an uploaded file. A rejected file keeps
// the current selection and is reported as a notice.
func (c *Controller) SelectUpload(u media.Upload) (Snapshot, error) {
	if s := c.Snapshot(); s.State == StateAnalyzing {
		return s, invalid(s, Event{Type: EventImageSelected})
	}
	if _, err := c.acquirer.AcceptUpload(u); err != nil {
		return c.notify(err), err
	}
	c.releaseCamera()
	return c.selected()
}

// OpenCamera requests a camera stream. Failures return the flow to upload mode.
func (c *Controller) OpenCamera(ctx context.Context, constraints media.Constraints) (Snapshot, error) {
	if s := c.Snapshot(); s.State == StateAnalyzing {
		return s, invalid(s, Event{Type: EventCameraOpened})
	}
	if err := c.acquirer.RequestCamera(ctx, constraints); err != nil {
		c.dispatch(Event{Type: EventCameraClosed})
		return c.notify(err), err
	}
	return c.dispatch(Event{Type: EventCameraOpened})
}

// Capture selects the current camera frame and stops the stream.
func (c *Controller) Capture(ctx context.Context) (Snapshot, error) {
	if s := c.Snapshot(); s.State == StateAnalyzing {
		return s, invalid(s, Event{Type: EventImageSelected})
	}
	if _, err := c.acquirer.CaptureFrame(ctx); err != nil {
		return c.notify(err), err
	}
	c.releaseCamera()
	return c.selected()
}

// CloseCamera stops the stream and returns to upload mode.
func (c *Controller) CloseCamera() Snapshot {
	c.acquirer.CloseCamera()
	s, _ := c.dispatch(Event{Type: EventCameraClosed})
	return s
}

// RemoveImage drops the selected image.
func (c *Controller) RemoveImage() (Snapshot, error) {
	s, err := c.dispatch(Event{Type: EventImageRemoved})
	if err != nil {
		return s, err
	}
	c.acquirer.RemoveImage()
	return s, nil
}

// Analyze runs the combined analysis on the selected image and blocks until
// it finishes, fails, or is cancelled by ctx or Reset.
func (c *Controller) Analyze(ctx context.Context) (*analysis.Result, error) {
	run, err := c.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return run()
}

// Begin moves the flow to analyzing and releases the camera. The returned
// run performs the analysis and must be called exactly once; it blocks until
// the analysis finishes, fails, or is cancelled by ctx or Reset. A missing
// image is reported as a notice.
func (c *Controller) Begin(ctx context.Context) (run func() (*analysis.Result, error), err error) {
	img := c.acquirer.Image()
	if img == nil {
		c.notice(&Notice{
			Kind:        apperrors.KindValidation,
			Title:       "No Image Selected",
			Description: "Please upload or capture an image first.",
			Destructive: true,
		})
		return nil, apperrors.Validation("No Image Selected", nil)
	}

	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	next, err := Reduce(c.snap, Event{Type: EventAnalyzeRequested})
	if err != nil {
		c.mu.Unlock()
		cancel()
		return nil, err
	}
	c.snap = next
	c.cancel = cancel
	c.runID++
	id := c.runID
	c.mu.Unlock()
	c.publish()

	c.releaseCamera()

	return func() (*analysis.Result, error) {
		defer cancel()
		return c.run(ctx, id, img)
	}, nil
}

func (c *Controller) run(ctx context.Context, id int, img *media.Image) (*analysis.Result, error) {
	c.notice(&Notice{Title: "Analysis Started", Description: "Analyzing image..."})
	c.progress.Start()

	result, err := c.analyzer.PerformCombinedAnalysis(ctx, img)

	c.mu.Lock()
	if c.runID == id {
		c.cancel = nil
	}
	c.mu.Unlock()

	if err != nil {
		c.progress.Fail()
		if _, derr := c.dispatch(Event{Type: EventFailed, Err: err}); derr != nil {
			// Reset while in flight; the outcome is discarded.
			return nil, err
		}
		c.notice(&Notice{
			Kind:        apperrors.KindOf(err),
			Title:       "Analysis Failed",
			Description: failureDescription(err),
			Destructive: true,
		})
		return nil, err
	}

	snap, derr := c.dispatch(Event{Type: EventSucceeded, Result: result})
	if derr != nil {
		c.progress.Stop()
		return nil, derr
	}
	if snap.State == StateFailed {
		c.progress.Fail()
		c.notice(&Notice{
			Kind:        apperrors.KindOf(snap.Err),
			Title:       "Analysis Failed",
			Description: failureDescription(snap.Err),
			Destructive: true,
		})
		return nil, snap.Err
	}

	c.progress.Complete()
	c.notice(&Notice{Title: "Analysis Complete", Description: "Recommendations are ready."})
	return result, nil
}

// Retry returns a failed flow to its image.
func (c *Controller) Retry() (Snapshot, error) {
	return c.dispatch(Event{Type: EventRetry})
}

// Reset cancels any running analysis and clears the image, the camera and
// the result.
func (c *Controller) Reset() Snapshot {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.progress.Stop()
	c.acquirer.Close()
	s, _ := c.dispatch(Event{Type: EventReset})
	return s
}

// releaseCamera stops a live stream and returns to upload mode.
func (c *Controller) releaseCamera() {
	if !c.acquirer.CameraOpen() {
		return
	}
	c.acquirer.CloseCamera()
	c.dispatch(Event{Type: EventCameraClosed})
}

// Close releases the camera and preview and stops the progress reporter.
func (c *Controller) Close() {
	c.Reset()
	c.unsubscribeProgress()
}

func (c *Controller) selected() (Snapshot, error) {
	var id string
	if p := c.acquirer.Preview(); p != nil {
		id = p.ID
	}
	return c.dispatch(Event{Type: EventImageSelected, PreviewID: id})
}

func (c *Controller) dispatch(e Event) (Snapshot, error) {
	c.mu.Lock()
	next, err := Reduce(c.snap, e)
	if err != nil {
		s := c.snap
		c.mu.Unlock()
		logger.WithError(err).Debug("flow event rejected")
		return s, err
	}
	next.Progress = c.progressFor(next)
	c.snap = next
	c.mu.Unlock()

	c.publish()
	return next, nil
}

// progressFor keeps the reporter's value while analyzing.
func (c *Controller) progressFor(s Snapshot) int {
	if s.State == StateAnalyzing {
		return c.progress.Value()
	}
	return s.Progress
}

func (c *Controller) notice(n *Notice) Snapshot {
	s, _ := c.dispatch(Event{Type: EventNotice, Notice: n})
	return s
}

func (c *Controller) notify(err error) Snapshot {
	return c.notice(noticeFor(err))
}

func (c *Controller) onProgress(v int) {
	c.mu.Lock()
	if c.snap.State != StateAnalyzing {
		c.mu.Unlock()
		return
	}
	c.snap.Progress = v
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) publish() {
	c.mu.Lock()
	snap := c.snap
	listeners := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

var noticeTitles = map[apperrors.Kind]string{
	apperrors.KindInvalidFileType:   "Invalid File Type",
	apperrors.KindFileTooLarge:      "File Too Large",
	apperrors.KindPermissionDenied:  "Camera Access Denied",
	apperrors.KindDeviceUnavailable: "Camera Unavailable",
	apperrors.KindDeviceBusy:        "Camera Busy",
	apperrors.KindCaptureNotReady:   "Camera Not Ready",
}

func noticeFor(err error) *Notice {
	kind := apperrors.KindOf(err)
	title, ok := noticeTitles[kind]
	if !ok {
		title = "Something went wrong"
	}
	return &Notice{Kind: kind, Title: title, Description: apperrors.Message(err), Destructive: true}
}

func failureDescription(err error) string {
	if err == nil {
		return "Something went wrong."
	}
	if errors.Is(err, context.Canceled) {
		return "Analysis was cancelled."
	}
	if msg := apperrors.Message(err); msg != "" {
		return msg
	}
	return "Something went wrong."
}
