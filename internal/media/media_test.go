package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/constants"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateUpload_AllowList(t *testing.T) {
	allowed := []string{"image/jpeg", "image/jpg", "image/png", "image/webp"}
	for _, mt := range allowed {
		if err := ValidateUpload(mt, 1024); err != nil {
			t.Errorf("ValidateUpload(%s) = %v, want nil", mt, err)
		}
	}

	rejected := []string{"image/gif", "application/pdf", "text/plain", ""}
	for _, mt := range rejected {
		err := ValidateUpload(mt, 1024)
		if !apperrors.IsKind(err, apperrors.KindInvalidFileType) {
			t.Errorf("ValidateUpload(%q) = %v, want InvalidFileType", mt, err)
		}
	}
}

func TestValidateUpload_SizeLimit(t *testing.T) {
	if err := ValidateUpload("image/png", constants.MaxUploadSize); err != nil {
		t.Errorf("exactly 10 MiB should be accepted, got %v", err)
	}
	for _, mt := range []string{"image/jpeg", "image/png", "image/webp"} {
		err := ValidateUpload(mt, constants.MaxUploadSize+1)
		if !apperrors.IsKind(err, apperrors.KindFileTooLarge) {
			t.Errorf("ValidateUpload(%s, 10MiB+1) = %v, want FileTooLarge", mt, err)
		}
	}
}

func TestNewImage_SniffsMissingType(t *testing.T) {
	data := testPNG(t, 4, 4)
	img, err := NewImage(Upload{Data: data})
	if err != nil {
		t.Fatalf("NewImage() error = %v", err)
	}
	if img.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", img.MIMEType)
	}
	if img.Name != "image.png" {
		t.Errorf("Name = %q, want image.png", img.Name)
	}
}

func TestNewImage_DeclaredTypeWins(t *testing.T) {
	// The declared type is what the allow-list checks, as with browser file inputs.
	_, err := NewImage(Upload{Name: "doc.pdf", Type: "application/pdf", Data: testPNG(t, 2, 2)})
	if !apperrors.IsKind(err, apperrors.KindInvalidFileType) {
		t.Errorf("expected InvalidFileType, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.png")
	if err := os.WriteFile(path, testPNG(t, 3, 3), 0o600); err != nil {
		t.Fatal(err)
	}

	u, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if u.Name != "face.png" || u.Type != "image/png" {
		t.Errorf("ReadFile() = %q %q", u.Name, u.Type)
	}
}

func TestEncodeJPEG_Resizes(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))
	data, err := EncodeJPEG(src, 100)
	if err != nil {
		t.Fatalf("EncodeJPEG() error = %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("size = %dx%d, want 100x50", b.Dx(), b.Dy())
	}
}

func TestEncodeJPEG_EmptyFrame(t *testing.T) {
	_, err := EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 0, 0)), 100)
	if !apperrors.IsKind(err, apperrors.KindCaptureNotReady) {
		t.Errorf("expected CaptureNotReady, got %v", err)
	}
}

func TestPreviewRegistry(t *testing.T) {
	reg := NewPreviewRegistry("/api/v1/previews/")
	p := reg.Create(&Image{MIMEType: "image/png"})

	if p.URL != "/api/v1/previews/"+p.ID {
		t.Errorf("URL = %q", p.URL)
	}
	if _, ok := reg.Get(p.ID); !ok {
		t.Error("expected preview to be live")
	}
	reg.Revoke(p.ID)
	reg.Revoke(p.ID)
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
}

func TestAcquirer_AcceptUpload_SinglePreview(t *testing.T) {
	reg := NewPreviewRegistry("p:")
	a := NewAcquirer(nil, reg)

	first, err := a.AcceptUpload(Upload{Name: "a.png", Type: "image/png", Data: testPNG(t, 2, 2)})
	if err != nil {
		t.Fatalf("AcceptUpload() error = %v", err)
	}
	firstPreview := a.Preview()

	second, err := a.AcceptUpload(Upload{Name: "b.png", Type: "image/png", Data: testPNG(t, 3, 3)})
	if err != nil {
		t.Fatalf("AcceptUpload() error = %v", err)
	}

	if reg.Len() != 1 {
		t.Errorf("live previews = %d, want 1", reg.Len())
	}
	if _, ok := reg.Get(firstPreview.ID); ok {
		t.Error("expected first preview to be revoked")
	}
	if a.Image() != second || a.Image() == first {
		t.Error("expected second upload to be selected")
	}

	a.RemoveImage()
	if reg.Len() != 0 || a.Image() != nil || a.Preview() != nil {
		t.Error("RemoveImage() should release image and preview")
	}
}

func TestAcquirer_RejectedUploadKeepsSelection(t *testing.T) {
	a := NewAcquirer(nil, nil)
	if _, err := a.AcceptUpload(Upload{Type: "image/png", Data: testPNG(t, 2, 2)}); err != nil {
		t.Fatal(err)
	}
	ok := a.Image()

	_, err := a.AcceptUpload(Upload{Type: "image/gif", Data: []byte("GIF89a")})
	if err == nil {
		t.Fatal("expected gif to be rejected")
	}
	if a.Image() != ok {
		t.Error("rejected upload must not replace the selection")
	}
}

type fakeStream struct {
	frame   image.Image
	err     error
	stopped int
}

func (s *fakeStream) Frame(context.Context) (image.Image, error) { return s.frame, s.err }
func (s *fakeStream) Stop() error                                { s.stopped++; return nil }

type fakeCamera struct {
	streams []*fakeStream
	err     error
}

func (c *fakeCamera) Open(context.Context, Constraints) (Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	s := &fakeStream{frame: image.NewRGBA(image.Rect(0, 0, 8, 8))}
	c.streams = append(c.streams, s)
	return s, nil
}

func TestAcquirer_RequestCamera_ReleasesPrevious(t *testing.T) {
	cam := &fakeCamera{}
	a := NewAcquirer(cam, nil)
	ctx := context.Background()

	if err := a.RequestCamera(ctx, Constraints{}); err != nil {
		t.Fatal(err)
	}
	if err := a.RequestCamera(ctx, Constraints{}); err != nil {
		t.Fatal(err)
	}
	if cam.streams[0].stopped != 1 {
		t.Errorf("first stream stopped %d times, want 1", cam.streams[0].stopped)
	}

	a.Close()
	if cam.streams[1].stopped != 1 {
		t.Errorf("second stream stopped %d times, want 1", cam.streams[1].stopped)
	}
	if a.CameraOpen() {
		t.Error("expected camera closed after Close()")
	}
}

func TestAcquirer_RequestCamera_PermissionDenied(t *testing.T) {
	a := NewAcquirer(&fakeCamera{err: apperrors.PermissionDenied("denied", nil)}, nil)

	err := a.RequestCamera(context.Background(), Constraints{})
	if !apperrors.IsKind(err, apperrors.KindPermissionDenied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if a.CameraOpen() {
		t.Error("no stream may be retained after a denied request")
	}
}

func TestAcquirer_NoCamera(t *testing.T) {
	a := NewAcquirer(nil, nil)
	err := a.RequestCamera(context.Background(), Constraints{})
	if !apperrors.IsKind(err, apperrors.KindDeviceUnavailable) {
		t.Errorf("expected DeviceUnavailable, got %v", err)
	}
}

func TestAcquirer_CaptureFrame(t *testing.T) {
	a := NewAcquirer(&fakeCamera{}, nil)

	if _, err := a.CaptureFrame(context.Background()); !apperrors.IsKind(err, apperrors.KindCaptureNotReady) {
		t.Errorf("capture without stream: expected CaptureNotReady, got %v", err)
	}

	if err := a.RequestCamera(context.Background(), Constraints{}); err != nil {
		t.Fatal(err)
	}
	img, err := a.CaptureFrame(context.Background())
	if err != nil {
		t.Fatalf("CaptureFrame() error = %v", err)
	}
	if img.MIMEType != "image/jpeg" || len(img.Data) == 0 {
		t.Errorf("captured image = %s, %d bytes", img.MIMEType, len(img.Data))
	}
	if a.Preview() == nil {
		t.Error("expected captured frame to get a preview")
	}
}

func TestHTTPCamera_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   apperrors.Kind
	}{
		{"forbidden", http.StatusForbidden, apperrors.KindPermissionDenied},
		{"unauthorized", http.StatusUnauthorized, apperrors.KindPermissionDenied},
		{"busy", http.StatusConflict, apperrors.KindDeviceBusy},
		{"locked", http.StatusLocked, apperrors.KindDeviceBusy},
		{"not found", http.StatusNotFound, apperrors.KindDeviceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := NewHTTPCamera(server.URL).Open(context.Background(), Constraints{})
			if !apperrors.IsKind(err, tt.kind) {
				t.Errorf("Open() = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestHTTPCamera_Unconfigured(t *testing.T) {
	_, err := NewHTTPCamera("").Open(context.Background(), Constraints{})
	if !apperrors.IsKind(err, apperrors.KindDeviceUnavailable) {
		t.Errorf("expected DeviceUnavailable, got %v", err)
	}
}

func TestHTTPCamera_Frame(t *testing.T) {
	frame := testPNG(t, 6, 4)
	ready := false
	var facing string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		facing = r.URL.Query().Get("facingMode")
		if r.Method == http.MethodHead {
			return
		}
		if !ready {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(frame)
	}))
	defer server.Close()

	stream, err := NewHTTPCamera(server.URL).Open(context.Background(), Constraints{FacingMode: "environment"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if facing != "environment" {
		t.Errorf("facingMode = %q, want environment", facing)
	}

	if _, err := stream.Frame(context.Background()); !apperrors.IsKind(err, apperrors.KindCaptureNotReady) {
		t.Errorf("expected CaptureNotReady before first frame, got %v", err)
	}

	ready = true
	img, err := stream.Frame(context.Background())
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 6 || b.Dy() != 4 {
		t.Errorf("frame size = %dx%d", b.Dx(), b.Dy())
	}

	stream.Stop()
	if _, err := stream.Frame(context.Background()); !apperrors.IsKind(err, apperrors.KindCaptureNotReady) {
		t.Errorf("expected CaptureNotReady after Stop, got %v", err)
	}
}
