package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/backend"
	"github.com/kozaktomas/hijabist/internal/media"
)

func ptr[T any](v T) *T { return &v }

func faceResponse(shape string, probs string) *backend.FaceShapeResponse {
	return &backend.FaceShapeResponse{Result: &backend.FaceShapeResult{
		PredictedFaceShape: shape,
		ConfidenceRaw:      ptr(0.62),
		AllProbabilities:   json.RawMessage(probs),
		HijabRecommendation: &backend.HijabRecommendation{
			Recommendations: []string{"https://youtu.be/aYGc00orKjY"},
		},
	}}
}

func toneResponse(tone string) *backend.SkinToneResponse {
	resp := &backend.SkinToneResponse{}
	resp.Result = &struct {
		ColorRecommendation *backend.ColorRecommendation `json:"color_recommendation"`
	}{
		ColorRecommendation: &backend.ColorRecommendation{
			SkinTone:          tone,
			RecommendedGroups: []backend.ColorGroup{{Group: "autumn_warm", Colors: []string{"#8B4513"}}},
		},
	}
	return resp
}

type fakePredictor struct {
	mu sync.Mutex

	face     *backend.FaceShapeResponse
	faceErr  error
	tone     *backend.SkinToneResponse
	toneErr  error
	block    bool // block until ctx is done for calls without an error
	tokens   []string
	faceSeen []*backend.Upload
	toneSeen []*backend.Upload
	canceled int
}

func (f *fakePredictor) wait(ctx context.Context, err error) error {
	if err != nil || !f.block {
		return err
	}
	<-ctx.Done()
	f.mu.Lock()
	f.canceled++
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakePredictor) PredictFaceShape(ctx context.Context, token string, img backend.Upload) (*backend.FaceShapeResponse, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.faceSeen = append(f.faceSeen, &img)
	f.mu.Unlock()
	if err := f.wait(ctx, f.faceErr); err != nil {
		return nil, err
	}
	return f.face, nil
}

func (f *fakePredictor) PredictSkinTone(ctx context.Context, token string, img backend.Upload) (*backend.SkinToneResponse, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.toneSeen = append(f.toneSeen, &img)
	f.mu.Unlock()
	if err := f.wait(ctx, f.toneErr); err != nil {
		return nil, err
	}
	return f.tone, nil
}

func testImage() *media.Image {
	return &media.Image{Data: []byte("jpeg"), MIMEType: "image/jpeg", Name: "capture.jpg"}
}

const probsJSON = `{"Round":{"probability":0.3,"percentage":"30.00%"},"Oval":{"probability":0.4,"percentage":"40.00%"},"Heart":{"probability":0.3}}`

func TestPerformCombinedAnalysis_Success(t *testing.T) {
	fixed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	pred := &fakePredictor{face: faceResponse("Oval", probsJSON), tone: toneResponse("medium")}
	calls := 0
	tokens := TokenSourceFunc(func(context.Context) (string, error) {
		calls++
		return "tok-1", nil
	})

	c := NewClient(pred, tokens, WithClock(func() time.Time { return fixed }))
	res, err := c.PerformCombinedAnalysis(context.Background(), testImage())
	if err != nil {
		t.Fatalf("PerformCombinedAnalysis() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("token fetched %d times, want 1", calls)
	}
	if len(pred.tokens) != 2 || pred.tokens[0] != "tok-1" || pred.tokens[1] != "tok-1" {
		t.Errorf("tokens seen = %v", pred.tokens)
	}
	if pred.faceSeen[0].ContentType != "image/jpeg" || pred.toneSeen[0].Filename != "capture.jpg" {
		t.Error("both predictions must receive the same image")
	}

	if res.FaceShape.Type != "oval" {
		t.Errorf("FaceShape.Type = %q, want oval", res.FaceShape.Type)
	}
	if res.FaceShape.Description != "Recommended hijab styles for Oval face." {
		t.Errorf("Description = %q", res.FaceShape.Description)
	}
	if res.FaceShape.Confidence != 0.62 {
		t.Errorf("Confidence = %v", res.FaceShape.Confidence)
	}
	if res.SkinTone.Confidence != 0.8 {
		t.Errorf("SkinTone.Confidence = %v, want 0.8", res.SkinTone.Confidence)
	}
	if !res.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v", res.Timestamp)
	}

	labels := []string{}
	for _, p := range res.FaceShape.AllProbabilities {
		labels = append(labels, p.Label)
	}
	if want := []string{"Round", "Oval", "Heart"}; len(labels) != 3 || labels[0] != want[0] || labels[1] != want[1] || labels[2] != want[2] {
		t.Errorf("probability order = %v, want %v", labels, want)
	}
	if got := res.FaceShape.AllProbabilities[2].Percentage; got != "30.00%" {
		t.Errorf("derived percentage = %q, want 30.00%%", got)
	}
}

func TestPerformCombinedAnalysis_FailFast(t *testing.T) {
	tests := []struct {
		name string
		pred *fakePredictor
	}{
		{"face shape fails", &fakePredictor{
			faceErr: apperrors.RemoteAnalysis("boom", 500, "internal"), tone: toneResponse("dark"), block: true,
		}},
		{"skin tone fails", &fakePredictor{
			face: faceResponse("Round", probsJSON), toneErr: apperrors.RemoteAnalysis("boom", 500, "internal"), block: true,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.pred, StaticToken("tok"))

			done := make(chan struct{})
			var res *Result
			var err error
			go func() {
				res, err = c.PerformCombinedAnalysis(context.Background(), testImage())
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("combined analysis did not cancel the sibling call")
			}

			if res != nil {
				t.Errorf("expected no partial result, got %+v", res)
			}
			appErr, ok := apperrors.As(err)
			if !ok || appErr.Kind != apperrors.KindRemoteAnalysis || appErr.RemoteStatus != 500 {
				t.Errorf("expected RemoteAnalysis 500, got %v", err)
			}
			if tt.pred.canceled != 1 {
				t.Errorf("sibling canceled %d times, want 1", tt.pred.canceled)
			}
		})
	}
}

func TestPerformCombinedAnalysis_MalformedHalf(t *testing.T) {
	pred := &fakePredictor{face: faceResponse("Oval", probsJSON), tone: &backend.SkinToneResponse{}}
	res, err := NewClient(pred, StaticToken("tok")).PerformCombinedAnalysis(context.Background(), testImage())
	if res != nil || !apperrors.IsKind(err, apperrors.KindMalformedResponse) {
		t.Errorf("expected MalformedResponse and no result, got %v, %v", res, err)
	}
}

func TestPerformCombinedAnalysis_NotAuthenticated(t *testing.T) {
	pred := &fakePredictor{}
	_, err := NewClient(pred, StaticToken("")).PerformCombinedAnalysis(context.Background(), testImage())
	if !apperrors.IsKind(err, apperrors.KindNotAuthenticated) {
		t.Errorf("expected NotAuthenticated, got %v", err)
	}
	if len(pred.tokens) != 0 {
		t.Error("no prediction may be issued without a token")
	}

	_, err = NewClient(pred, nil).AuthToken(context.Background())
	if !apperrors.IsKind(err, apperrors.KindNotAuthenticated) {
		t.Errorf("nil token source: expected NotAuthenticated, got %v", err)
	}
}

func TestPerformCombinedAnalysis_Timeout(t *testing.T) {
	pred := &fakePredictor{face: faceResponse("Oval", probsJSON), tone: toneResponse("light"), block: true}
	c := NewClient(pred, StaticToken("tok"), WithTimeout(20*time.Millisecond))

	_, err := c.PerformCombinedAnalysis(context.Background(), testImage())
	if !apperrors.IsKind(err, apperrors.KindTimeout) {
		t.Errorf("expected Timeout, got %v", err)
	}
}

func TestPerformCombinedAnalysis_CallerCancel(t *testing.T) {
	pred := &fakePredictor{face: faceResponse("Oval", probsJSON), tone: toneResponse("light"), block: true}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(pred, StaticToken("tok")).PerformCombinedAnalysis(ctx, testImage())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if apperrors.IsKind(err, apperrors.KindTimeout) {
		t.Error("caller cancellation is not a timeout")
	}
}

func TestPerformCombinedAnalysis_NoImage(t *testing.T) {
	_, err := NewClient(&fakePredictor{}, StaticToken("tok")).PerformCombinedAnalysis(context.Background(), nil)
	if !apperrors.IsKind(err, apperrors.KindValidation) {
		t.Errorf("expected Validation, got %v", err)
	}
}

func TestNormalizeFaceShape_Defaults(t *testing.T) {
	shape, err := normalizeFaceShape(&backend.FaceShapeResponse{Result: &backend.FaceShapeResult{
		PredictedFaceShape: "Heart",
	}})
	if err != nil {
		t.Fatal(err)
	}
	if shape.Confidence != 0 {
		t.Errorf("missing confidence_raw should be 0, got %v", shape.Confidence)
	}
	if shape.Recommendations == nil || len(shape.Recommendations) != 0 {
		t.Errorf("Recommendations = %v, want empty", shape.Recommendations)
	}
	if len(shape.AllProbabilities) != 0 {
		t.Errorf("AllProbabilities = %v, want empty", shape.AllProbabilities)
	}

	if _, err := normalizeFaceShape(&backend.FaceShapeResponse{}); !apperrors.IsKind(err, apperrors.KindMalformedResponse) {
		t.Errorf("missing result: expected MalformedResponse, got %v", err)
	}
	_, err = normalizeFaceShape(&backend.FaceShapeResponse{Result: &backend.FaceShapeResult{
		PredictedFaceShape: "Oval", AllProbabilities: json.RawMessage(`[1,2]`),
	}})
	if !apperrors.IsKind(err, apperrors.KindMalformedResponse) {
		t.Errorf("array probabilities: expected MalformedResponse, got %v", err)
	}
}

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{1, 1},
		{49.67, 0.4967},
		{100, 1},
		{250, 1},
		{-3, 0},
	}
	for _, tt := range tests {
		got := normalizeConfidence(tt.in)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("normalizeConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalFaceShape(t *testing.T) {
	tests := map[string]string{
		"Oval":     "oval",
		" ROUND ":  "round",
		"oblong":   "oblong",
		"sqaure":   "square",
		"hearts":   "heart",
		"Óval":     "oval",
		"Rõund\t":  "round",
		"diamond":  "diamond",
		"triangle": "triangle",
	}
	for in, want := range tests {
		if got := CanonicalFaceShape(in); got != want {
			t.Errorf("CanonicalFaceShape(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResultValidate(t *testing.T) {
	var nilResult *Result
	cases := []*Result{
		nilResult,
		{SkinTone: &SkinTone{Type: "light"}},
		{FaceShape: &FaceShape{Type: "oval"}},
		{FaceShape: &FaceShape{Type: "oval"}, SkinTone: &SkinTone{}},
	}
	for i, r := range cases {
		if err := r.Validate(); !apperrors.IsKind(err, apperrors.KindMalformedResponse) {
			t.Errorf("case %d: expected MalformedResponse, got %v", i, err)
		}
	}

	ok := &Result{FaceShape: &FaceShape{Type: "oval"}, SkinTone: &SkinTone{Type: "light"}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
