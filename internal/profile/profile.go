// Package profile loads the most recent analysis for a user from the local
// history and the backend profile, and formats it for display.
package profile

import (
	"context"
	"strings"
	"time"

	"github.com/kozaktomas/hijabist/internal/analysis"
	"github.com/kozaktomas/hijabist/internal/backend"
	"github.com/kozaktomas/hijabist/internal/logger"
	"github.com/kozaktomas/hijabist/internal/session"
	"github.com/kozaktomas/hijabist/internal/store"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Source says where a LastAnalysis came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// ProfileReader fetches the backend user profile.
type ProfileReader interface {
	Profile(ctx context.Context, token string) (*backend.ProfileData, error)
}

// LastAnalysis is the most recent saved analysis of a user.
type LastAnalysis struct {
	store.SavedAnalysis
	Source Source `json:"source"`
}

// Cache combines the local history with the remote profile. Either side may be nil.
type Cache struct {
	local  store.AnalysisStore
	remote ProfileReader
}

// NewCache creates a Cache.
func NewCache(local store.AnalysisStore, remote ProfileReader) *Cache {
	return &Cache{local: local, remote: remote}
}

// LoadLastAnalysis returns the newest analysis of s, or nil when there is
// none. Read failures are logged and treated as no analysis.
func (c *Cache) LoadLastAnalysis(ctx context.Context, s *session.Session) *LastAnalysis {
	if s == nil || s.UID == "" {
		return nil
	}
	log := logger.WithField("uid", s.UID)

	var best *LastAnalysis
	if c.local != nil {
		list, err := c.local.ListAnalyses(ctx, s.UID)
		if err != nil {
			log.WithError(err).Warn("failed to read local analyses")
		} else if latest := store.Latest(list); latest != nil {
			best = &LastAnalysis{SavedAnalysis: *latest, Source: SourceLocal}
		}
	}

	if c.remote != nil && s.Token != "" {
		data, err := c.remote.Profile(ctx, s.Token)
		if err != nil {
			log.WithError(err).Warn("failed to load profile")
		} else if remote := fromProfile(data); remote != nil {
			if best == nil || remote.Date.After(best.Date) {
				best = remote
			}
		}
	}

	return best
}

// History returns the user's local analyses, newest first.
func (c *Cache) History(ctx context.Context, s *session.Session) ([]store.SavedAnalysis, error) {
	if s == nil || c.local == nil {
		return nil, nil
	}
	return c.local.ListAnalyses(ctx, s.UID)
}

// fromProfile derives an analysis from the profile record. Its date is the
// later of the two updatedAt timestamps.
func fromProfile(data *backend.ProfileData) *LastAnalysis {
	if data == nil || (data.FaceShape == nil && data.SkinTone == nil) {
		return nil
	}

	a := &LastAnalysis{Source: SourceRemote}
	a.ID = "profile:" + data.UID

	var faceAt, toneAt time.Time
	if fs := data.FaceShape; fs != nil {
		a.FaceShape = analysis.CanonicalFaceShape(fs.Type)
		if fs.Confidence != nil {
			a.Confidence = *fs.Confidence
		}
		a.Recommendations = append([]string{}, fs.Recommendations...)
		faceAt = fs.UpdatedAt.Time
	}
	if st := data.SkinTone; st != nil {
		a.SkinTone = strings.ToLower(strings.TrimSpace(st.Type))
		for _, g := range st.RecommendedGroups {
			a.ColorGroups = append(a.ColorGroups, analysis.ColorGroup{
				Group:  g.Group,
				Colors: append([]string{}, g.Colors...),
			})
		}
		toneAt = st.UpdatedAt.Time
	}

	a.Date = faceAt
	if toneAt.After(faceAt) {
		a.Date = toneAt
	}
	return a
}

// ShapeInitial returns the upper-cased first letter of a face shape, or "F".
func ShapeInitial(faceShape string) string {
	return initial(faceShape, "F")
}

// ToneInitial returns the upper-cased first letter of a skin tone, or "S".
func ToneInitial(skinTone string) string {
	return initial(skinTone, "S")
}

// UserInitials returns the initials of the display name (or email), or "G"
// for a guest.
func UserInitials(s *session.Session) string {
	if s == nil {
		return "G"
	}
	name := s.DisplayName
	if name == "" {
		name = s.Email
	}
	var b strings.Builder
	for _, part := range strings.Fields(name) {
		b.WriteString(initial(part, ""))
	}
	if b.Len() == 0 {
		return "G"
	}
	return b.String()
}

// FormatSkinTone renders a tone key such as "medium" or "warm_olive" for display.
func FormatSkinTone(skinTone string) string {
	tone := strings.TrimSpace(strings.ReplaceAll(skinTone, "_", " "))
	if tone == "" {
		return "Unknown"
	}
	return cases.Title(language.English).String(tone)
}

// FormatDate renders a date like "Jan 15, 2024".
func FormatDate(t time.Time) string {
	return t.Format("Jan 2, 2006")
}

// FormatTime renders a time like "10:30 AM".
func FormatTime(t time.Time) string {
	return t.Format("03:04 PM")
}

func initial(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	r := []rune(s)[0]
	return strings.ToUpper(string(r))
}
