package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/hijabist/internal/analysis"
	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/constants"
	"github.com/kozaktomas/hijabist/internal/flow"
	"github.com/kozaktomas/hijabist/internal/logger"
	"github.com/kozaktomas/hijabist/internal/media"
	"github.com/kozaktomas/hijabist/internal/metrics"
	"github.com/kozaktomas/hijabist/internal/presenter"
	"github.com/kozaktomas/hijabist/internal/session"
	"github.com/kozaktomas/hijabist/internal/store"
	"github.com/kozaktomas/hijabist/internal/web/middleware"
)

// PreviewPrefix is the URL prefix of image previews.
const PreviewPrefix = "/api/v1/previews/"

// WorkspaceDeps are the collaborators shared by all visitor workspaces.
type WorkspaceDeps struct {
	Config    *config.Config
	Predictor analysis.Predictor
	Auth      session.Authenticator
	Analyses  store.AnalysisStore
	Camera    media.Camera // nil when no camera is configured
	Metrics   metrics.Recorder
	Sessions  *middleware.SessionManager
}

// Workspace is the analysis flow and login of one visitor.
type Workspace struct {
	ID         string
	Controller *flow.Controller
	Sessions   *session.Manager

	deps     *WorkspaceDeps
	mu       sync.Mutex
	lastSeen time.Time
	job      *AnalysisJob
	results  *presenter.ResultsPresenter
}

// ActiveJob returns the visitor's running analysis job, or nil.
func (ws *Workspace) ActiveJob() *AnalysisJob {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.job == nil || isJobTerminal(ws.job.GetStatus()) {
		return nil
	}
	return ws.job
}

// Busy reports whether an analysis is running.
func (ws *Workspace) Busy() bool {
	return ws.ActiveJob() != nil || ws.Controller.Snapshot().State == flow.StateAnalyzing
}

// Reset cancels the running job and clears the flow, the camera and the result.
func (ws *Workspace) Reset() flow.Snapshot {
	if job := ws.ActiveJob(); job != nil {
		job.Cancel()
	}
	s := ws.Controller.Reset()
	ws.mu.Lock()
	ws.results = nil
	ws.mu.Unlock()
	return s
}

func (ws *Workspace) setJob(job *AnalysisJob) {
	ws.mu.Lock()
	ws.job = job
	ws.mu.Unlock()
}

// Results returns the presenter of the current result, or nil when there is
// none. The presenter is kept while the result stays the same so repeated
// saves are recognized.
func (ws *Workspace) Results() *presenter.ResultsPresenter {
	result := ws.Controller.Snapshot().Result
	if result == nil {
		return nil
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.results == nil || ws.results.Result() != result {
		ws.results = presenter.NewResultsPresenter(result, presenter.ResultsOptions{
			Sessions: ws.Sessions,
			Store:    ws.deps.Analyses,
			PageURL:  ws.deps.Config.Web.PublicURL + "/results",
			Metrics:  ws.deps.Metrics,
		})
	}
	return ws.results
}

func (ws *Workspace) touch(now time.Time) {
	ws.mu.Lock()
	ws.lastSeen = now
	ws.mu.Unlock()
}

func (ws *Workspace) idleSince() time.Time {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.lastSeen
}

// WorkspaceManager keeps a workspace per visitor session and evicts idle ones.
type WorkspaceManager struct {
	deps     *WorkspaceDeps
	previews *media.PreviewRegistry

	mu    sync.Mutex
	items map[string]*Workspace

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWorkspaceManager creates a manager and starts the idle sweeper.
// Workspaces of deleted visitor sessions are closed.
func NewWorkspaceManager(deps *WorkspaceDeps, previews *media.PreviewRegistry) *WorkspaceManager {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	m := &WorkspaceManager{
		deps:     deps,
		previews: previews,
		items:    make(map[string]*Workspace),
		stop:     make(chan struct{}),
	}
	if deps.Sessions != nil {
		deps.Sessions.OnDelete(m.Remove)
	}
	go m.cleanupLoop(constants.SessionCleanupInterval)
	return m
}

// Previews returns the shared preview registry.
func (m *WorkspaceManager) Previews() *media.PreviewRegistry {
	return m.previews
}

// Get returns the workspace of a visitor, creating it on first use.
func (m *WorkspaceManager) Get(ctx context.Context, visitor *middleware.Session) *Workspace {
	m.mu.Lock()
	ws, ok := m.items[visitor.ID]
	if !ok {
		ws = m.newWorkspace(visitor.ID)
		m.items[visitor.ID] = ws
	}
	m.mu.Unlock()

	if !ok {
		if _, err := ws.Sessions.Restore(ctx); err != nil {
			logger.WithError(err).Warn("failed to restore visitor login")
		}
	}
	ws.touch(time.Now())
	return ws
}

func (m *WorkspaceManager) newWorkspace(id string) *Workspace {
	ws := &Workspace{ID: id, deps: m.deps}
	ws.Sessions = session.NewManager(m.deps.Auth, &visitorSessionStore{sm: m.deps.Sessions, id: id})

	client := analysis.NewClient(m.deps.Predictor, ws.Sessions,
		analysis.WithTimeout(m.deps.Config.Backend.Timeout),
		analysis.WithMetrics(m.deps.Metrics),
	)
	ws.Controller = flow.NewController(media.NewAcquirer(m.deps.Camera, m.previews), client, nil)

	// Logging out ends the visitor's flow.
	ws.Sessions.OnChange(func(s *session.Session) {
		if s == nil {
			ws.Reset()
		}
	})

	logger.WithField("visitor", id).Debug("workspace created")
	return ws
}

// Remove closes and forgets a visitor's workspace.
func (m *WorkspaceManager) Remove(id string) {
	m.mu.Lock()
	ws, ok := m.items[id]
	delete(m.items, id)
	m.mu.Unlock()

	if ok {
		ws.Controller.Close()
	}
}

// Len returns the number of live workspaces.
func (m *WorkspaceManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Stop halts the sweeper and closes every workspace.
func (m *WorkspaceManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	items := m.items
	m.items = make(map[string]*Workspace)
	m.mu.Unlock()

	for _, ws := range items {
		ws.Controller.Close()
	}
}

func (m *WorkspaceManager) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.evictIdle(now)
		}
	}
}

// evictIdle closes workspaces without activity for WorkspaceIdleTimeout.
// Busy workspaces are kept.
func (m *WorkspaceManager) evictIdle(now time.Time) {
	var idle []string
	m.mu.Lock()
	for id, ws := range m.items {
		if now.Sub(ws.idleSince()) > constants.WorkspaceIdleTimeout && !ws.Busy() {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	for _, id := range idle {
		m.Remove(id)
	}
	if len(idle) > 0 {
		logger.WithField("count", len(idle)).Debug("evicted idle workspaces")
	}
}

// visitorSessionStore persists a visitor's login on its web session so it
// survives restarts when the session repository is durable.
type visitorSessionStore struct {
	sm *middleware.SessionManager
	id string
}

func (s *visitorSessionStore) session(ctx context.Context) *middleware.Session {
	if s.sm == nil {
		return nil
	}
	return s.sm.GetSession(ctx, s.id)
}

func (s *visitorSessionStore) LoadSession(ctx context.Context) (*store.SessionRecord, error) {
	vs := s.session(ctx)
	if !vs.Authenticated() {
		return nil, nil
	}
	return &store.SessionRecord{UID: vs.UID, Email: vs.Email, DisplayName: vs.DisplayName, Token: vs.Token}, nil
}

func (s *visitorSessionStore) SaveSession(ctx context.Context, rec *store.SessionRecord) error {
	return s.update(ctx, func(vs *middleware.Session) {
		vs.UID, vs.Email, vs.DisplayName, vs.Token = rec.UID, rec.Email, rec.DisplayName, rec.Token
	})
}

func (s *visitorSessionStore) ClearSession(ctx context.Context) error {
	return s.update(ctx, func(vs *middleware.Session) {
		vs.UID, vs.Email, vs.DisplayName, vs.Token = "", "", "", ""
	})
}

func (s *visitorSessionStore) RememberedEmail(ctx context.Context) (string, error) {
	if vs := s.session(ctx); vs != nil {
		return vs.RememberEmail, nil
	}
	return "", nil
}

func (s *visitorSessionStore) SetRememberedEmail(ctx context.Context, email string) error {
	return s.update(ctx, func(vs *middleware.Session) { vs.RememberEmail = email })
}

// update is a no-op when the visitor session is gone.
func (s *visitorSessionStore) update(ctx context.Context, fn func(*middleware.Session)) error {
	vs := s.session(ctx)
	if vs == nil {
		return nil
	}
	fn(vs)
	return s.sm.UpdateSession(ctx, vs)
}
