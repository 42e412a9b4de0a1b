package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/hijabist/internal/backend"
	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/media"
	"github.com/kozaktomas/hijabist/internal/store"
	"github.com/kozaktomas/hijabist/internal/web/middleware"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{URL: "http://backend.test/api", Timeout: 5 * time.Second},
		Camera:  config.CameraConfig{FacingMode: "user"},
		Web:     config.WebConfig{PublicURL: "http://localhost:8080"},
		Catalog: config.LoadCatalog(),
	}
}

func ptr[T any](v T) *T { return &v }

// fakePredictor answers predictions with a fixed valid result. With block
// set, calls wait until release is closed or ctx ends.
type fakePredictor struct {
	mu      sync.Mutex
	faceErr error
	block   bool
	release chan struct{}
	calls   int
}

func (f *fakePredictor) wait(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	block, release := f.block, f.release
	f.mu.Unlock()
	if !block {
		return nil
	}
	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakePredictor) PredictFaceShape(ctx context.Context, _ string, _ backend.Upload) (*backend.FaceShapeResponse, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.faceErr != nil {
		return nil, f.faceErr
	}
	return &backend.FaceShapeResponse{Result: &backend.FaceShapeResult{
		PredictedFaceShape: "Oval",
		ConfidenceRaw:      ptr(0.62),
		AllProbabilities:   json.RawMessage(`{"Oval":{"probability":0.62,"percentage":"62.00%"},"Round":{"probability":0.38}}`),
		HijabRecommendation: &backend.HijabRecommendation{
			Recommendations: []string{"https://youtu.be/dQw4w9WgXcQ"},
		},
	}}, nil
}

func (f *fakePredictor) PredictSkinTone(ctx context.Context, _ string, _ backend.Upload) (*backend.SkinToneResponse, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	resp := &backend.SkinToneResponse{}
	resp.Result = &struct {
		ColorRecommendation *backend.ColorRecommendation `json:"color_recommendation"`
	}{
		ColorRecommendation: &backend.ColorRecommendation{
			SkinTone:          "medium",
			RecommendedGroups: []backend.ColorGroup{{Group: "autumn_warm", Colors: []string{"#cd853f"}}},
		},
	}
	return resp, nil
}

type fakeAuth struct{}

func (fakeAuth) Login(_ context.Context, email, password string) (*backend.LoginResult, error) {
	return &backend.LoginResult{UID: "u1", Email: email, DisplayName: "Aisyah Putri", Token: "tok-" + password}, nil
}

func (fakeAuth) Register(context.Context, string, string, string) (*backend.RegisterResponse, error) {
	return &backend.RegisterResponse{Envelope: backend.Envelope{Message: "User created"}}, nil
}

// testEnv wires handlers against fakes.
type testEnv struct {
	cfg        *config.Config
	predictor  *fakePredictor
	sessions   *middleware.SessionManager
	workspaces *WorkspaceManager
	jobs       *JobManager
	analyses   *store.FileStore
	visitor    *middleware.Session
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	env := &testEnv{
		cfg:       cfg,
		predictor: &fakePredictor{},
		sessions:  middleware.NewSessionManager("test-secret", nil),
		jobs:      NewJobManager(),
		analyses:  store.NewFileStore(filepath.Join(t.TempDir(), "state.json")),
	}
	env.workspaces = NewWorkspaceManager(&WorkspaceDeps{
		Config:    cfg,
		Predictor: env.predictor,
		Auth:      fakeAuth{},
		Analyses:  env.analyses,
		Sessions:  env.sessions,
	}, media.NewPreviewRegistry(PreviewPrefix))
	t.Cleanup(func() {
		env.workspaces.Stop()
		env.sessions.Stop()
	})

	visitor, err := env.sessions.CreateSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	env.visitor = visitor
	return env
}

// request creates a request carrying the env's visitor session
func (env *testEnv) request(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	return req.WithContext(middleware.SetSessionInContext(req.Context(), env.visitor))
}

func (env *testEnv) jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := env.request(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// login logs the env's visitor in through the auth handler
func (env *testEnv) login(t *testing.T) {
	t.Helper()
	w := httptest.NewRecorder()
	NewAuthHandler(env.workspaces).Login(w, env.jsonRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]any{
		"email": "aisyah@example.com", "password": "secret1", "rememberEmail": true,
	}))
	assertStatusCode(t, w, http.StatusOK)
}

// uploadRequest builds a multipart upload of a small PNG
func (env *testEnv) uploadRequest(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="face.png"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := env.request(http.MethodPost, "/api/v1/analysis/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, G: 150, B: 120, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// waitForJob polls until the job reaches a terminal status
func waitForJob(t *testing.T, job *AnalysisJob) JobView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if isJobTerminal(job.GetStatus()) {
			return job.Snapshot()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish, status %s", job.ID, job.GetStatus())
	return JobView{}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
