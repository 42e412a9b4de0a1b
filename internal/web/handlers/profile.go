package handlers

import (
	"net/http"

	"github.com/kozaktomas/hijabist/internal/profile"
	"github.com/kozaktomas/hijabist/internal/store"
	"github.com/kozaktomas/hijabist/internal/web/middleware"
)

// ProfileHandler serves the logged-in user's analysis history.
type ProfileHandler struct {
	workspaces *WorkspaceManager
	cache      *profile.Cache
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(wm *WorkspaceManager, cache *profile.Cache) *ProfileHandler {
	return &ProfileHandler{workspaces: wm, cache: cache}
}

// LastAnalysisResponse is the profile summary card.
type LastAnalysisResponse struct {
	Initials     string            `json:"initials"`
	DisplayName  string            `json:"display_name"`
	Email        string            `json:"email"`
	LastAnalysis *LastAnalysisView `json:"last_analysis"`
}

// LastAnalysisView is the last analysis with display fields.
type LastAnalysisView struct {
	*profile.LastAnalysis
	ShapeInitial string `json:"shape_initial"`
	ToneInitial  string `json:"tone_initial"`
	SkinToneName string `json:"skin_tone_name"`
	DateText     string `json:"date_text"`
	TimeText     string `json:"time_text"`
}

// LastAnalysis returns the user's most recent analysis, if any.
func (h *ProfileHandler) LastAnalysis(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.Get(r.Context(), middleware.GetSessionFromContext(r.Context()))
	user := ws.Sessions.Current()
	if user == nil {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	resp := LastAnalysisResponse{
		Initials:    profile.UserInitials(user),
		DisplayName: user.DisplayName,
		Email:       user.Email,
	}
	if last := h.cache.LoadLastAnalysis(r.Context(), user); last != nil {
		resp.LastAnalysis = &LastAnalysisView{
			LastAnalysis: last,
			ShapeInitial: profile.ShapeInitial(last.FaceShape),
			ToneInitial:  profile.ToneInitial(last.SkinTone),
			SkinToneName: profile.FormatSkinTone(last.SkinTone),
			DateText:     profile.FormatDate(last.Date),
			TimeText:     profile.FormatTime(last.Date),
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// Analyses returns the user's saved analyses, newest first.
func (h *ProfileHandler) Analyses(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.Get(r.Context(), middleware.GetSessionFromContext(r.Context()))
	user := ws.Sessions.Current()
	if user == nil {
		respondError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	list, err := h.cache.History(r.Context(), user)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if list == nil {
		list = []store.SavedAnalysis{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"analyses": list})
}
