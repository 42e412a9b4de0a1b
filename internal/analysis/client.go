package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/backend"
	"github.com/kozaktomas/hijabist/internal/logger"
	"github.com/kozaktomas/hijabist/internal/media"
	"github.com/kozaktomas/hijabist/internal/metrics"
)

// Prediction kinds, used for metrics and log fields.
const (
	KindFaceShape = "face_shape"
	KindSkinTone  = "skin_tone"
)

// Predictor is the backend surface the analysis client calls.
type Predictor interface {
	PredictFaceShape(ctx context.Context, token string, img backend.Upload) (*backend.FaceShapeResponse, error)
	PredictSkinTone(ctx context.Context, token string, img backend.Upload) (*backend.SkinToneResponse, error)
}

// TokenSource provides the bearer token of the active session.
type TokenSource interface {
	AuthToken(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// AuthToken implements TokenSource.
func (f TokenSourceFunc) AuthToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken is a TokenSource that always returns the same token.
func StaticToken(token string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) {
		if token == "" {
			return "", apperrors.NotAuthenticated("")
		}
		return token, nil
	})
}

// Client coordinates predictions for one image.
type Client struct {
	predictor Predictor
	tokens    TokenSource
	timeout   time.Duration
	metrics   metrics.Recorder
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds PerformCombinedAnalysis. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMetrics records prediction and analysis outcomes.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates an analysis client.
func NewClient(predictor Predictor, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		predictor: predictor,
		tokens:    tokens,
		metrics:   metrics.Noop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthToken returns the active session's token or NotAuthenticated.
func (c *Client) AuthToken(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", apperrors.NotAuthenticated("")
	}
	token, err := c.tokens.AuthToken(ctx)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return "", err
		}
		return "", apperrors.AuthFailed("could not get auth token", err)
	}
	if strings.TrimSpace(token) == "" {
		return "", apperrors.NotAuthenticated("")
	}
	return token, nil
}

func toUpload(img *media.Image) backend.Upload {
	return backend.Upload{Filename: img.Name, ContentType: img.MIMEType, Data: img.Data}
}

// PredictFaceShape runs the face shape prediction for img.
func (c *Client) PredictFaceShape(ctx context.Context, img *media.Image, token string) (*FaceShape, error) {
	start := time.Now()
	resp, err := c.predictor.PredictFaceShape(ctx, token, toUpload(img))
	var shape *FaceShape
	if err == nil {
		shape, err = normalizeFaceShape(resp)
	}
	c.metrics.RecordPrediction(KindFaceShape, time.Since(start), outcome(err))
	if err != nil {
		return nil, err
	}
	return shape, nil
}

// PredictSkinTone runs the skin tone prediction for img.
func (c *Client) PredictSkinTone(ctx context.Context, img *media.Image, token string) (*SkinTone, error) {
	start := time.Now()
	resp, err := c.predictor.PredictSkinTone(ctx, token, toUpload(img))
	var tone *SkinTone
	if err == nil {
		tone, err = normalizeSkinTone(resp)
	}
	c.metrics.RecordPrediction(KindSkinTone, time.Since(start), outcome(err))
	if err != nil {
		return nil, err
	}
	return tone, nil
}

// PerformCombinedAnalysis runs both predictions concurrently with one token
// snapshot. The first failure cancels the other call and is returned; no
// partial Result is ever produced.
func (c *Client) PerformCombinedAnalysis(ctx context.Context, img *media.Image) (*Result, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, apperrors.Validation("No Image Selected", nil)
	}

	start := time.Now()
	result, err := c.performCombined(ctx, img)
	c.metrics.RecordAnalysis(time.Since(start), outcome(err))

	if err != nil {
		logger.WithError(err).WithField("kind", apperrors.KindOf(err)).Warn("combined analysis failed")
		return nil, err
	}
	logger.WithFields(map[string]any{
		"face_shape": result.FaceShape.Type,
		"skin_tone":  result.SkinTone.Type,
		"duration":   time.Since(start).String(),
	}).Info("combined analysis completed")
	return result, nil
}

func (c *Client) performCombined(parent context.Context, img *media.Image) (*Result, error) {
	token, err := c.AuthToken(parent)
	if err != nil {
		return nil, err
	}

	ctx := parent
	var cancelTimeout context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, cancelTimeout = context.WithTimeout(parent, c.timeout)
	}
	defer cancelTimeout()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		shape    *FaceShape
		tone     *SkinTone
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel(err)
		})
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		s, err := c.PredictFaceShape(ctx, img, token)
		if err != nil {
			fail(fmt.Errorf("face shape prediction failed: %w", err))
			return
		}
		shape = s
	}()
	go func() {
		defer wg.Done()
		t, err := c.PredictSkinTone(ctx, img, token)
		if err != nil {
			fail(fmt.Errorf("skin tone prediction failed: %w", err))
			return
		}
		tone = t
	}()
	wg.Wait()

	if firstErr != nil {
		return nil, c.classify(parent, firstErr)
	}

	result := &Result{FaceShape: shape, SkinTone: tone, Timestamp: c.now().UTC()}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// classify turns deadline expiry into a Timeout error. Cancellation by the
// caller is returned as-is.
func (c *Client) classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("analysis aborted: %w", parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(fmt.Sprintf("analysis did not finish within %s", c.timeout), err)
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperrors.KindOf(err))
}
