package mariadb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/hijabist/internal/store"
)

// AnalysisRepository keeps saved analyses per user.
type AnalysisRepository struct {
	pool *Pool
}

// NewAnalysisRepository creates a MariaDB analysis repository.
func NewAnalysisRepository(pool *Pool) *AnalysisRepository {
	return &AnalysisRepository{pool: pool}
}

var _ store.AnalysisStore = (*AnalysisRepository)(nil)

// AppendAnalysis stores a. Saving the same analysis ID twice is a no-op.
func (r *AnalysisRepository) AppendAnalysis(ctx context.Context, userID string, a store.SavedAnalysis) error {
	if userID == "" {
		return errors.New("user id is required")
	}

	groups, err := json.Marshal(a.ColorGroups)
	if err != nil {
		return fmt.Errorf("marshal color groups: %w", err)
	}
	recs, err := json.Marshal(a.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	_, err = r.pool.db.ExecContext(ctx, `
		INSERT IGNORE INTO analyses (id, user_uid, analyzed_at, face_shape, confidence, skin_tone, color_groups, recommendations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, userID, a.Date.UTC(), a.FaceShape, a.Confidence, a.SkinTone, string(groups), string(recs))
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// ListAnalyses returns the user's analyses, newest first.
func (r *AnalysisRepository) ListAnalyses(ctx context.Context, userID string) ([]store.SavedAnalysis, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, analyzed_at, face_shape, confidence, skin_tone, color_groups, recommendations
		FROM analyses
		WHERE user_uid = ?
		ORDER BY analyzed_at DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var list []store.SavedAnalysis
	for rows.Next() {
		var (
			a            store.SavedAnalysis
			groups, recs string
		)
		if err := rows.Scan(&a.ID, &a.Date, &a.FaceShape, &a.Confidence, &a.SkinTone, &groups, &recs); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		if err := json.Unmarshal([]byte(groups), &a.ColorGroups); err != nil {
			return nil, fmt.Errorf("decode color groups of %s: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(recs), &a.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations of %s: %w", a.ID, err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return list, nil
}
