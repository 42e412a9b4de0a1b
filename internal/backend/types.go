package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Flag decodes the backend's error flag, sent either as a JSON boolean or as
// the string "true"/"false".
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag %s", data)
	}
	return nil
}

// Envelope is the status wrapper around every auth response.
type Envelope struct {
	Error   Flag   `json:"error"`
	Message string `json:"message"`
}

// LoginResult is the authenticated user returned by /auth/login.
type LoginResult struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Token       string `json:"token"`
}

// LoginResponse is the /auth/login payload.
type LoginResponse struct {
	Envelope
	LoginResult *LoginResult `json:"loginResult"`
}

// RegisterResponse is the /auth/register payload.
type RegisterResponse struct {
	Envelope
	Data *struct {
		UID         string `json:"uid"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"data,omitempty"`
}

// ProfileFaceShape is the face shape stored on the user profile.
type ProfileFaceShape struct {
	Type            string    `json:"type"`
	Confidence      *float64  `json:"confidence"`
	Recommendations []string  `json:"recommendations"`
	UpdatedAt       Timestamp `json:"updatedAt"`
}

// ProfileSkinTone is the skin tone stored on the user profile.
type ProfileSkinTone struct {
	Type              string       `json:"type"`
	RecommendedGroups []ColorGroup `json:"recommendedGroups"`
	UpdatedAt         Timestamp    `json:"updatedAt"`
}

// ProfileData is the user record returned by /auth/profile.
type ProfileData struct {
	UID         string            `json:"uid"`
	Email       string            `json:"email"`
	DisplayName string            `json:"displayName"`
	FaceShape   *ProfileFaceShape `json:"faceShape"`
	SkinTone    *ProfileSkinTone  `json:"skinTone"`
}

// ProfileResponse is the /auth/profile payload.
type ProfileResponse struct {
	Envelope
	Data *ProfileData `json:"data"`
}

// FaceShapeResponse is the /predict/face-shape payload.
type FaceShapeResponse struct {
	Result *FaceShapeResult `json:"result"`
}

// FaceShapeResult holds the face shape prediction. AllProbabilities is kept
// raw so the label order of the JSON object survives decoding.
type FaceShapeResult struct {
	PredictedFaceShape  string               `json:"predicted_face_shape"`
	ConfidenceRaw       *float64             `json:"confidence_raw"`
	AllProbabilities    json.RawMessage      `json:"all_probabilities"`
	HijabRecommendation *HijabRecommendation `json:"hijabRecomendation"`
}

// HijabRecommendation lists tutorial video URLs for a face shape.
type HijabRecommendation struct {
	Recommendations []string `json:"recommendations"`
}

// ProbabilityEntry is one value of all_probabilities.
type ProbabilityEntry struct {
	Probability float64 `json:"probability"`
	Percentage  string  `json:"percentage"`
}

// SkinToneResponse is the /predict/skin-tone payload.
type SkinToneResponse struct {
	Result *struct {
		ColorRecommendation *ColorRecommendation `json:"color_recommendation"`
	} `json:"result"`
}

// ColorRecommendation holds the skin tone and its palettes.
type ColorRecommendation struct {
	SkinTone          string       `json:"skin_tone"`
	RecommendedGroups []ColorGroup `json:"recommended_groups"`
}

// ColorGroup is a season-tone group with its hex colors.
type ColorGroup struct {
	Group  string   `json:"group"`
	Colors []string `json:"colors"`
}

// Timestamp accepts RFC 3339 strings, epoch milliseconds, and Firestore
// {"_seconds","_nanoseconds"} objects. The zero value means absent.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed
	case '{':
		var fs struct {
			Seconds     int64 `json:"_seconds"`
			Nanoseconds int64 `json:"_nanoseconds"`
		}
		if err := json.Unmarshal(data, &fs); err != nil {
			return fmt.Errorf("invalid timestamp object: %w", err)
		}
		t.Time = time.Unix(fs.Seconds, fs.Nanoseconds).UTC()
	default:
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", data, err)
		}
		t.Time = time.UnixMilli(ms).UTC()
	}
	return nil
}
