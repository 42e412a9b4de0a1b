package handlers

import (
	"net/http"

	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/presenter"
	"github.com/kozaktomas/hijabist/internal/web/middleware"
)

// ResultsHandler serves the current result of a visitor.
type ResultsHandler struct {
	config     *config.Config
	workspaces *WorkspaceManager
}

// NewResultsHandler creates a new results handler
func NewResultsHandler(cfg *config.Config, wm *WorkspaceManager) *ResultsHandler {
	return &ResultsHandler{
		config:     cfg,
		workspaces: wm,
	}
}

const errNoResults = "no analysis results"

// ResultsResponse is the results view.
type ResultsResponse struct {
	*presenter.ViewModel
	Saved bool `json:"saved"`
}

// SaveResponse reports what saving did.
type SaveResponse struct {
	Outcome presenter.SaveOutcome `json:"outcome"`
	Saved   bool                  `json:"saved"`
	Error   string                `json:"error,omitempty"`
}

func (h *ResultsHandler) results(r *http.Request) *presenter.ResultsPresenter {
	ws := h.workspaces.Get(r.Context(), middleware.GetSessionFromContext(r.Context()))
	return ws.Results()
}

// Get returns the results view.
func (h *ResultsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := h.results(r)
	if p == nil {
		respondError(w, http.StatusNotFound, errNoResults)
		return
	}
	vm, err := presenter.MapToViewModel(p.Result(), &h.config.Catalog)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ResultsResponse{ViewModel: vm, Saved: p.IsSaved()})
}

// Save adds the result to the user's history.
func (h *ResultsHandler) Save(w http.ResponseWriter, r *http.Request) {
	p := h.results(r)
	if p == nil {
		respondError(w, http.StatusNotFound, errNoResults)
		return
	}

	outcome, err := p.SaveAnalysis(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	if outcome == presenter.SaveLoginRequired {
		respondJSON(w, http.StatusUnauthorized, SaveResponse{
			Outcome: outcome,
			Error:   "Please log in to save your analysis",
		})
		return
	}
	respondJSON(w, http.StatusOK, SaveResponse{Outcome: outcome, Saved: true})
}

// Share returns the share payload. The server has no share sheet, so the
// client gets the clipboard fallback and the data to share natively.
func (h *ResultsHandler) Share(w http.ResponseWriter, r *http.Request) {
	p := h.results(r)
	if p == nil {
		respondError(w, http.StatusNotFound, errNoResults)
		return
	}
	res, err := p.Share(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
