// Package store persists the session, remembered email and saved analyses.
package store

import (
	"context"
	"time"

	"github.com/kozaktomas/hijabist/internal/analysis"
)

// SchemaVersion is the current persisted state version.
const SchemaVersion = 1

// SessionRecord is a persisted login.
type SessionRecord struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Token       string    `json:"token"`
	SavedAt     time.Time `json:"savedAt"`
}

// SavedAnalysis is the summary kept for a user's analysis history.
type SavedAnalysis struct {
	ID              string                `json:"id"`
	Date            time.Time             `json:"date"`
	FaceShape       string                `json:"faceShape"`
	Confidence      float64               `json:"confidence"`
	SkinTone        string                `json:"skinTone"`
	ColorGroups     []analysis.ColorGroup `json:"colorGroups"`
	Recommendations []string              `json:"recommendations"`
}

// State is the persisted state document.
type State struct {
	Version       int                        `json:"version"`
	Session       *SessionRecord             `json:"session,omitempty"`
	RememberEmail string                     `json:"rememberEmail,omitempty"`
	Analyses      map[string][]SavedAnalysis `json:"analyses"`
}

// NewState returns an empty state at the current version.
func NewState() *State {
	return &State{Version: SchemaVersion, Analyses: make(map[string][]SavedAnalysis)}
}

// AnalysisStore keeps saved analyses per user.
type AnalysisStore interface {
	AppendAnalysis(ctx context.Context, userID string, a SavedAnalysis) error
	// ListAnalyses returns the user's analyses, newest first.
	ListAnalyses(ctx context.Context, userID string) ([]SavedAnalysis, error)
}

// SessionStore keeps the current login and the remembered email.
type SessionStore interface {
	LoadSession(ctx context.Context) (*SessionRecord, error)
	SaveSession(ctx context.Context, rec *SessionRecord) error
	ClearSession(ctx context.Context) error
	RememberedEmail(ctx context.Context) (string, error)
	SetRememberedEmail(ctx context.Context, email string) error
}

// Latest returns the most recent analysis, or nil.
func Latest(analyses []SavedAnalysis) *SavedAnalysis {
	var latest *SavedAnalysis
	for i := range analyses {
		if latest == nil || analyses[i].Date.After(latest.Date) {
			latest = &analyses[i]
		}
	}
	return latest
}

// FromResult derives the saved summary of a combined analysis.
func FromResult(id string, r *analysis.Result) SavedAnalysis {
	groups := make([]analysis.ColorGroup, len(r.SkinTone.RecommendedGroups))
	copy(groups, r.SkinTone.RecommendedGroups)
	recs := make([]string, len(r.FaceShape.Recommendations))
	copy(recs, r.FaceShape.Recommendations)

	return SavedAnalysis{
		ID:              id,
		Date:            r.Timestamp,
		FaceShape:       r.FaceShape.Type,
		Confidence:      r.FaceShape.Confidence,
		SkinTone:        r.SkinTone.Type,
		ColorGroups:     groups,
		Recommendations: recs,
	}
}
