package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/constants"
)

// Constraints describes the requested camera stream.
type Constraints struct {
	FacingMode string `json:"facing_mode"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

// Camera opens video streams.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live camera stream. Stop releases the device.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Stop() error
}

// HTTPCamera is a network camera that serves still snapshots over HTTP.
type HTTPCamera struct {
	snapshotURL string
	client      *http.Client
}

// NewHTTPCamera creates a camera for the given snapshot URL. An empty URL
// yields a camera that reports itself as unavailable.
func NewHTTPCamera(snapshotURL string) *HTTPCamera {
	transport := &http.Transport{
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	return &HTTPCamera{
		snapshotURL: snapshotURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   15 * time.Second,
		},
	}
}

// Open probes the snapshot endpoint and returns a stream on success.
func (c *HTTPCamera) Open(ctx context.Context, constraints Constraints) (Stream, error) {
	if c.snapshotURL == "" {
		return nil, apperrors.DeviceUnavailable("Camera is not available on this device. Please use the upload option.", nil)
	}

	endpoint, err := c.endpoint(constraints)
	if err != nil {
		return nil, apperrors.DeviceUnavailable("invalid camera URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return nil, apperrors.DeviceUnavailable("invalid camera URL", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.DeviceUnavailable("camera is not reachable", err)
	}
	resp.Body.Close()

	if err := classifyCameraStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	return &httpStream{camera: c, endpoint: endpoint}, nil
}

// endpoint appends the facing mode and size hints as query parameters.
func (c *HTTPCamera) endpoint(constraints Constraints) (string, error) {
	u, err := url.Parse(c.snapshotURL)
	if err != nil {
		return "", fmt.Errorf("parse snapshot URL: %w", err)
	}
	q := u.Query()
	facing := constraints.FacingMode
	if facing == "" {
		facing = constants.DefaultFacingMode
	}
	q.Set("facingMode", facing)
	if constraints.Width > 0 {
		q.Set("width", fmt.Sprint(constraints.Width))
	}
	if constraints.Height > 0 {
		q.Set("height", fmt.Sprint(constraints.Height))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func classifyCameraStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperrors.PermissionDenied("Camera access was denied.", nil)
	case code == http.StatusConflict || code == http.StatusLocked || code == http.StatusServiceUnavailable:
		return apperrors.DeviceBusy("Camera is being used by another application.", nil)
	default:
		return apperrors.DeviceUnavailable(fmt.Sprintf("camera returned status %d", code), nil)
	}
}

type httpStream struct {
	camera   *HTTPCamera
	endpoint string

	mu      sync.Mutex
	stopped bool
}

// Frame fetches the current snapshot.
func (s *httpStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil, apperrors.CaptureNotReady("camera stream is closed", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, */*")

	resp, err := s.camera.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperrors.DeviceUnavailable("camera is not reachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, apperrors.CaptureNotReady("camera has not buffered a frame yet", nil)
	}
	if err := classifyCameraStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("could not read frame: %w", err)
	}
	if len(data) == 0 {
		return nil, apperrors.CaptureNotReady("camera has not buffered a frame yet", nil)
	}
	return DecodeFrame(data)
}

// Stop marks the stream closed. Stopping twice is a no-op.
func (s *httpStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}
