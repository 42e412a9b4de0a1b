package backend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kozaktomas/hijabist/internal/apperrors"
)

// Upload is an image sent to a prediction endpoint.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// PredictFaceShape posts the image to the face shape endpoint.
func (c *Client) PredictFaceShape(ctx context.Context, token string, img Upload) (*FaceShapeResponse, error) {
	body, contentType, err := imageForm(img)
	if err != nil {
		return nil, err
	}
	return doRequestJSON[FaceShapeResponse](ctx, c, request{
		method:      http.MethodPost,
		endpoint:    endpointFaceShape,
		token:       token,
		body:        body,
		contentType: contentType,
	})
}

// PredictSkinTone posts the image to the skin tone endpoint.
func (c *Client) PredictSkinTone(ctx context.Context, token string, img Upload) (*SkinToneResponse, error) {
	body, contentType, err := imageForm(img)
	if err != nil {
		return nil, err
	}
	return doRequestJSON[SkinToneResponse](ctx, c, request{
		method:      http.MethodPost,
		endpoint:    endpointSkinTone,
		token:       token,
		body:        body,
		contentType: contentType,
	})
}

// imageForm builds a multipart body with the image in the "image" field.
// The part carries the real image MIME type; the backend rejects
// application/octet-stream.
func imageForm(img Upload) (*bytes.Buffer, string, error) {
	if len(img.Data) == 0 {
		return nil, "", apperrors.Validation("no image selected", nil)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filename := img.Filename
	if filename == "" {
		filename = "image"
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="image"; filename="%s"`, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("could not create form file: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("could not copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("could not close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
