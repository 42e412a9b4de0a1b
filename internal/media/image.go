package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/constants"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Image is an image selected for analysis: uploaded or captured.
type Image struct {
	Data     []byte
	MIMEType string
	Name     string
}

// Size returns the image size in bytes.
func (i *Image) Size() int64 {
	return int64(len(i.Data))
}

// Upload is a user-supplied file before validation.
type Upload struct {
	Name string
	Type string // declared MIME type, may be empty
	Data []byte
}

// IsAllowedType reports whether mimeType is on the upload allow-list.
func IsAllowedType(mimeType string) bool {
	return slices.Contains(constants.AllowedImageTypes, strings.ToLower(mimeType))
}

// ValidateUpload checks a declared type and size against the upload limits.
func ValidateUpload(mimeType string, size int64) error {
	if !IsAllowedType(mimeType) {
		return apperrors.InvalidFileType(mimeType)
	}
	if size > constants.MaxUploadSize {
		return apperrors.FileTooLarge(size)
	}
	return nil
}

// DetectType sniffs the MIME type of data.
func DetectType(data []byte) string {
	// mimetype reports parameters for some types; keep only the media type.
	mt, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return mt
}

// NewImage validates an upload and turns it into an Image. An empty declared
// type is sniffed from content.
func NewImage(u Upload) (*Image, error) {
	declared := strings.TrimSpace(u.Type)
	if declared == "" {
		declared = DetectType(u.Data)
	}
	if err := ValidateUpload(declared, int64(len(u.Data))); err != nil {
		return nil, err
	}
	name := u.Name
	if name == "" {
		name = "image" + extensionFor(declared)
	}
	return &Image{Data: u.Data, MIMEType: strings.ToLower(declared), Name: name}, nil
}

// ReadFile loads a file from disk as an Upload with a sniffed type.
func ReadFile(path string) (Upload, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided file path for analysis
	if err != nil {
		return Upload{}, fmt.Errorf("could not read file: %w", err)
	}
	return Upload{Name: filepath.Base(path), Type: DetectType(data), Data: data}, nil
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// EncodeJPEG scales img to fit within maxSize (width or height) keeping the
// aspect ratio and encodes it as JPEG.
func EncodeJPEG(img image.Image, maxSize int) ([]byte, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, apperrors.CaptureNotReady("frame has no pixels yet", nil)
	}

	out := img
	if maxSize > 0 && (width > maxSize || height > maxSize) {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxSize
			newHeight = int(float64(height) * float64(maxSize) / float64(width))
		} else {
			newHeight = maxSize
			newWidth = int(float64(width) * float64(maxSize) / float64(height))
		}
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: constants.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeFrame decodes a JPEG, PNG, WebP or BMP snapshot.
func DecodeFrame(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}
