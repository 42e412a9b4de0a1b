// Package media acquires images for analysis from uploads or a camera and
// keeps at most one live camera stream and one live preview per acquirer.
package media

import (
	"context"
	"sync"

	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/constants"
	"github.com/kozaktomas/hijabist/internal/logger"
)

// Acquirer holds the selected image, its preview and the camera stream.
type Acquirer struct {
	camera   Camera
	previews *PreviewRegistry

	mu      sync.Mutex
	stream  Stream
	image   *Image
	preview *Preview
}

// NewAcquirer creates an acquirer. camera may be nil when no camera exists.
func NewAcquirer(camera Camera, previews *PreviewRegistry) *Acquirer {
	if previews == nil {
		previews = NewPreviewRegistry("preview:")
	}
	return &Acquirer{camera: camera, previews: previews}
}

// RequestCamera opens a stream, releasing any previous one first. On failure
// no stream is retained.
func (a *Acquirer) RequestCamera(ctx context.Context, c Constraints) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopStreamLocked()

	if a.camera == nil {
		return apperrors.DeviceUnavailable("Camera is not available on this device. Please use the upload option.", nil)
	}

	stream, err := a.camera.Open(ctx, c)
	if err != nil {
		return err
	}
	a.stream = stream
	return nil
}

// CameraOpen reports whether a stream is live.
func (a *Acquirer) CameraOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream != nil
}

// CaptureFrame encodes the current frame as JPEG and selects it.
func (a *Acquirer) CaptureFrame(ctx context.Context) (*Image, error) {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()

	if stream == nil {
		return nil, apperrors.CaptureNotReady("camera is not open", nil)
	}

	frame, err := stream.Frame(ctx)
	if err != nil {
		return nil, err
	}
	data, err := EncodeJPEG(frame, constants.MaxCaptureDimension)
	if err != nil {
		return nil, err
	}

	img := &Image{Data: data, MIMEType: "image/jpeg", Name: constants.CaptureFileName}
	a.mu.Lock()
	a.selectLocked(img)
	a.mu.Unlock()
	return img, nil
}

// AcceptUpload validates an upload and selects it, replacing the previous preview.
func (a *Acquirer) AcceptUpload(u Upload) (*Image, error) {
	img, err := NewImage(u)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.selectLocked(img)
	a.mu.Unlock()
	return img, nil
}

// selectLocked revokes the old preview before creating the new one.
func (a *Acquirer) selectLocked(img *Image) {
	a.revokePreviewLocked()
	a.image = img
	a.preview = a.previews.Create(img)
}

// Image returns the selected image, or nil.
func (a *Acquirer) Image() *Image {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.image
}

// Preview returns the live preview, or nil.
func (a *Acquirer) Preview() *Preview {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.preview
}

// RemoveImage drops the selected image and revokes its preview.
func (a *Acquirer) RemoveImage() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revokePreviewLocked()
	a.image = nil
}

// CloseCamera stops the live stream if any.
func (a *Acquirer) CloseCamera() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopStreamLocked()
}

// Close releases the stream and the preview.
func (a *Acquirer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopStreamLocked()
	a.revokePreviewLocked()
	a.image = nil
}

func (a *Acquirer) revokePreviewLocked() {
	if a.preview != nil {
		a.previews.Revoke(a.preview.ID)
		a.preview = nil
	}
}

func (a *Acquirer) stopStreamLocked() {
	if a.stream == nil {
		return
	}
	if err := a.stream.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop camera stream")
	}
	a.stream = nil
}
