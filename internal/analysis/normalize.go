package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/arbovm/levenshtein"
	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/backend"
	"github.com/kozaktomas/hijabist/internal/constants"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FaceShapes is the label set the backend predicts from.
var FaceShapes = []string{"oval", "round", "square", "heart", "oblong"}

func normalizeFaceShape(resp *backend.FaceShapeResponse) (*FaceShape, error) {
	if resp == nil || resp.Result == nil {
		return nil, apperrors.MalformedResponse("face shape response has no result", nil)
	}
	res := resp.Result
	if strings.TrimSpace(res.PredictedFaceShape) == "" {
		return nil, apperrors.MalformedResponse("face shape response has no predicted_face_shape", nil)
	}

	probs, err := decodeProbabilities(res.AllProbabilities)
	if err != nil {
		return nil, apperrors.MalformedResponse("face shape response has invalid all_probabilities", err)
	}

	var confidence float64
	if res.ConfidenceRaw != nil {
		confidence = normalizeConfidence(*res.ConfidenceRaw)
	}

	recommendations := []string{}
	if res.HijabRecommendation != nil && res.HijabRecommendation.Recommendations != nil {
		recommendations = res.HijabRecommendation.Recommendations
	}

	shape := res.PredictedFaceShape
	return &FaceShape{
		Type:             CanonicalFaceShape(shape),
		Confidence:       confidence,
		Description:      fmt.Sprintf("Recommended hijab styles for %s face.", shape),
		AllProbabilities: probs,
		Recommendations:  recommendations,
	}, nil
}

func normalizeSkinTone(resp *backend.SkinToneResponse) (*SkinTone, error) {
	if resp == nil || resp.Result == nil || resp.Result.ColorRecommendation == nil {
		return nil, apperrors.MalformedResponse("skin tone response has no color_recommendation", nil)
	}
	rec := resp.Result.ColorRecommendation
	if strings.TrimSpace(rec.SkinTone) == "" {
		return nil, apperrors.MalformedResponse("skin tone response has no skin_tone", nil)
	}

	groups := make([]ColorGroup, 0, len(rec.RecommendedGroups))
	for _, g := range rec.RecommendedGroups {
		colors := g.Colors
		if colors == nil {
			colors = []string{}
		}
		groups = append(groups, ColorGroup{Group: g.Group, Colors: colors})
	}

	return &SkinTone{
		Type:              rec.SkinTone,
		RecommendedGroups: groups,
		Confidence:        constants.DefaultSkinToneConfidence,
	}, nil
}

// decodeProbabilities reads the label map in document order.
func decodeProbabilities(raw json.RawMessage) ([]Probability, error) {
	probs := []Probability{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return probs, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		label, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected label, got %v", keyTok)
		}

		var entry backend.ProbabilityEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("label %s: %w", label, err)
		}
		percentage := entry.Percentage
		if percentage == "" {
			percentage = fmt.Sprintf("%.2f%%", entry.Probability*100)
		}
		probs = append(probs, Probability{
			Label:       label,
			Probability: entry.Probability,
			Percentage:  percentage,
		})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return probs, nil
}

// normalizeConfidence maps a raw confidence into [0,1]. Values above 1 are
// read as percentages.
func normalizeConfidence(raw float64) float64 {
	switch {
	case raw < 0:
		return 0
	case raw <= 1:
		return raw
	case raw <= 100:
		return raw / 100
	default:
		return 1
	}
}

// CanonicalFaceShape lower-cases a backend label and snaps it to the nearest
// known face shape. Labels too far from any known shape are kept as sent.
func CanonicalFaceShape(label string) string {
	normalized := normalizeLabel(label)
	best := ""
	bestDistance := constants.MaxLabelDistance + 1
	for _, shape := range FaceShapes {
		d := levenshtein.Distance(normalized, shape)
		if d < bestDistance {
			best = shape
			bestDistance = d
		}
	}
	if best == "" {
		return label
	}
	return best
}

// normalizeLabel lowercases a backend label and folds diacritics ("Ovále" -> "ovale").
func normalizeLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ReplaceAll(folded, "_", " ")
	return strings.ToLower(strings.TrimSpace(folded))
}
