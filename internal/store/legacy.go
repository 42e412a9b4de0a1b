package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/hijabist/internal/analysis"
	"github.com/kozaktomas/hijabist/internal/logger"
)

// Legacy state documents are flat browser-storage dumps: key to string value.
const (
	legacyAnalysesPrefix = "analyses_"
	legacyUserPrefix     = "legacy:"
)

// ignoredLegacyKeys are dropped during migration.
var ignoredLegacyKeys = map[string]bool{
	"isLoggedIn":   true,
	"userEmail":    true,
	"userName":     true,
	"userUID":      true,
	"userUIState":  true,
	"analysisData": true,
	"users":        true,
	"resetToken":   true,
}

func legacyUserKey(email string) string {
	return legacyUserPrefix + strings.ToLower(strings.TrimSpace(email))
}

type legacyUser struct {
	UID         string `json:"uid"`
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
	Token       string `json:"token"`
}

type legacyAnalysis struct {
	ID              string                `json:"id"`
	Date            json.RawMessage       `json:"date"`
	Timestamp       string                `json:"timestamp"`
	FaceShape       string                `json:"faceShape"`
	Confidence      float64               `json:"confidence"`
	SkinTone        string                `json:"skinTone"`
	ColorGroups     []analysis.ColorGroup `json:"colorGroups"`
	Recommendations []string              `json:"recommendations"`
}

// migrateLegacy converts a browser-storage dump into the current schema.
// Analyses are parked under "legacy:<email>" until a login with that email
// adopts them. Sessions without a token cannot be resumed and are dropped.
func migrateLegacy(data []byte) (*State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("legacy state is not an object: %w", err)
	}

	state := NewState()
	for key, value := range raw {
		payload := unwrapStorageValue(value)

		switch {
		case key == "rememberEmail":
			var email string
			if json.Unmarshal(payload, &email) == nil {
				state.RememberEmail = email
			} else {
				state.RememberEmail = string(payload)
			}

		case strings.HasPrefix(key, legacyAnalysesPrefix):
			email := strings.TrimPrefix(key, legacyAnalysesPrefix)
			var items []legacyAnalysis
			if err := json.Unmarshal(payload, &items); err != nil {
				logger.WithError(err).WithField("key", key).Warn("skipping unreadable legacy analyses")
				continue
			}
			list := make([]SavedAnalysis, 0, len(items))
			for _, item := range items {
				list = append(list, item.toSaved())
			}
			sortNewestFirst(list)
			state.Analyses[legacyUserKey(email)] = list

		case key == "currentUser" || key == "user":
			var u legacyUser
			if err := json.Unmarshal(payload, &u); err != nil || u.Token == "" {
				continue
			}
			uid := u.UID
			if uid == "" {
				uid = u.ID
			}
			name := u.DisplayName
			if name == "" {
				name = u.Name
			}
			if uid != "" && (state.Session == nil || key == "currentUser") {
				state.Session = &SessionRecord{UID: uid, Email: u.Email, DisplayName: name, Token: u.Token}
			}

		case ignoredLegacyKeys[key]:
			logger.WithField("key", key).Debug("ignoring legacy state key")
		}
	}

	if state.Session != nil {
		if legacy, ok := state.Analyses[legacyUserKey(state.Session.Email)]; ok {
			state.Analyses[state.Session.UID] = legacy
			delete(state.Analyses, legacyUserKey(state.Session.Email))
		}
	}
	return state, nil
}

// unwrapStorageValue returns the JSON inside a string-encoded storage value.
// Plain strings that are not JSON are returned JSON-quoted.
func unwrapStorageValue(value json.RawMessage) json.RawMessage {
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return value
	}
	trimmed := strings.TrimSpace(s)
	if json.Valid([]byte(trimmed)) && (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) {
		return json.RawMessage(trimmed)
	}
	return value
}

func (a legacyAnalysis) toSaved() SavedAnalysis {
	groups := a.ColorGroups
	if groups == nil {
		groups = []analysis.ColorGroup{}
	}
	recs := a.Recommendations
	if recs == nil {
		recs = []string{}
	}
	return SavedAnalysis{
		ID:              a.ID,
		Date:            a.date(),
		FaceShape:       a.FaceShape,
		Confidence:      a.Confidence,
		SkinTone:        a.SkinTone,
		ColorGroups:     groups,
		Recommendations: recs,
	}
}

// date reads the record time from date (epoch ms or RFC 3339), then
// timestamp, then the Date.now() based id.
func (a legacyAnalysis) date() time.Time {
	d := bytes.TrimSpace(a.Date)
	if len(d) > 0 && string(d) != "null" {
		var s string
		if json.Unmarshal(d, &s) == nil {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t.UTC()
			}
			if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
				return time.UnixMilli(ms).UTC()
			}
		} else if ms, err := strconv.ParseFloat(string(d), 64); err == nil {
			return time.UnixMilli(int64(ms)).UTC()
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, a.Timestamp); err == nil {
		return t.UTC()
	}
	if ms, err := strconv.ParseInt(a.ID, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}
