// Package presenter turns analysis results into display structures and
// implements the save and share actions of the results view.
package presenter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kozaktomas/hijabist/internal/analysis"
	"github.com/kozaktomas/hijabist/internal/config"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Catalog resolves reference data for display.
type Catalog interface {
	GroupName(key string) (string, bool)
}

// FaceShapeCatalog optionally adds curated face shape descriptions.
type FaceShapeCatalog interface {
	FaceShapeInfo(shape string) (config.FaceShapeInfo, bool)
}

// Video is a recommended tutorial.
type Video struct {
	URL       string `json:"url"`
	VideoID   string `json:"videoId,omitempty"`
	EmbedURL  string `json:"embedUrl,omitempty"`
	Thumbnail string `json:"thumbnail"`
}

// Group is a color group ready for display.
type Group struct {
	Key    string   `json:"key"`
	Name   string   `json:"name"`
	Colors []string `json:"colors"`
}

// FaceShapeView is the face shape section of the results view.
type FaceShapeView struct {
	Type              string                 `json:"type"`
	Title             string                 `json:"title"`
	Confidence        float64                `json:"confidence"`
	ConfidencePercent string                 `json:"confidencePercent"`
	Description       string                 `json:"description"`
	Details           string                 `json:"details,omitempty"`
	Probabilities     []analysis.Probability `json:"probabilities"`
	Videos            []Video                `json:"videos"`
}

// SkinToneView is the skin tone section of the results view.
type SkinToneView struct {
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Groups     []Group `json:"groups"`
}

// ViewModel is everything the results view renders.
type ViewModel struct {
	FaceShape FaceShapeView `json:"faceShape"`
	SkinTone  SkinToneView  `json:"skinTone"`
	Timestamp time.Time     `json:"timestamp"`
}

// titleCase title-cases s. Casers are stateful, so each call gets its own.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// GroupDisplayName returns the curated name of a group key, falling back to
// the key with underscores as spaces, title-cased.
func GroupDisplayName(catalog Catalog, key string) string {
	if catalog != nil {
		if name, ok := catalog.GroupName(key); ok {
			return name
		}
	}
	return titleCase(strings.ReplaceAll(key, "_", " "))
}

// MapToViewModel shapes a result for display. It does not modify r.
func MapToViewModel(r *analysis.Result, catalog Catalog) (*ViewModel, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	probs := make([]analysis.Probability, len(r.FaceShape.AllProbabilities))
	copy(probs, r.FaceShape.AllProbabilities)
	sort.SliceStable(probs, func(i, j int) bool {
		return probs[i].Probability > probs[j].Probability
	})

	videos := make([]Video, 0, len(r.FaceShape.Recommendations))
	for _, u := range r.FaceShape.Recommendations {
		videos = append(videos, Video{
			URL:       u,
			VideoID:   YouTubeVideoID(u),
			EmbedURL:  YouTubeEmbedURL(u),
			Thumbnail: YouTubeThumbnail(u),
		})
	}

	groups := make([]Group, 0, len(r.SkinTone.RecommendedGroups))
	for _, g := range r.SkinTone.RecommendedGroups {
		colors := make([]string, len(g.Colors))
		copy(colors, g.Colors)
		groups = append(groups, Group{Key: g.Group, Name: GroupDisplayName(catalog, g.Group), Colors: colors})
	}

	face := FaceShapeView{
		Type:              r.FaceShape.Type,
		Title:             titleCase(r.FaceShape.Type),
		Confidence:        r.FaceShape.Confidence,
		ConfidencePercent: fmt.Sprintf("%.0f%%", r.FaceShape.Confidence*100),
		Description:       r.FaceShape.Description,
		Probabilities:     probs,
		Videos:            videos,
	}
	if fc, ok := catalog.(FaceShapeCatalog); ok {
		if info, ok := fc.FaceShapeInfo(r.FaceShape.Type); ok {
			face.Title = info.Title
			face.Details = info.Description
		}
	}

	return &ViewModel{
		FaceShape: face,
		SkinTone: SkinToneView{
			Type:       r.SkinTone.Type,
			Title:      titleCase(r.SkinTone.Type),
			Confidence: r.SkinTone.Confidence,
			Groups:     groups,
		},
		Timestamp: r.Timestamp,
	}, nil
}
