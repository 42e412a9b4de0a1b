// Package analysis runs face shape and skin tone predictions against the
// backend and normalizes them into the one canonical Result shape.
package analysis

import (
	"time"

	"github.com/kozaktomas/hijabist/internal/apperrors"
)

// Probability is one face shape label with its predicted probability.
type Probability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	Percentage  string  `json:"percentage"`
}

// FaceShape is the normalized face shape prediction.
type FaceShape struct {
	Type             string        `json:"type"`
	Confidence       float64       `json:"confidence"`
	Description      string        `json:"description"`
	AllProbabilities []Probability `json:"allProbabilities"`
	Recommendations  []string      `json:"recommendations"`
}

// ColorGroup is a season-tone palette recommended for a skin tone.
type ColorGroup struct {
	Group  string   `json:"group"`
	Colors []string `json:"colors"`
}

// SkinTone is the normalized skin tone prediction.
type SkinTone struct {
	Type              string       `json:"type"`
	RecommendedGroups []ColorGroup `json:"recommendedGroups"`
	Confidence        float64      `json:"confidence"`
}

// Result is a combined analysis. It is immutable once produced.
type Result struct {
	FaceShape *FaceShape `json:"faceShape"`
	SkinTone  *SkinTone  `json:"skinTone"`
	Timestamp time.Time  `json:"timestamp"`
}

// Validate rejects results that are missing either half.
func (r *Result) Validate() error {
	if r == nil {
		return apperrors.MalformedResponse("analysis result is missing", nil)
	}
	if r.FaceShape == nil || r.FaceShape.Type == "" {
		return apperrors.MalformedResponse("analysis result has no face shape", nil)
	}
	if r.SkinTone == nil || r.SkinTone.Type == "" {
		return apperrors.MalformedResponse("analysis result has no skin tone", nil)
	}
	return nil
}
