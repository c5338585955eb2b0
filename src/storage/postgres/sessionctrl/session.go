package sessionctrl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"packsight/src/core/rebrand"
)

type RebrandSession struct {
	ID            string          `gorm:"primaryKey" json:"id"`
	AnalysisID    int64           `gorm:"not null;index;column:analysis_id" json:"analysis_id"`
	SourceAsset   string          `gorm:"column:source_asset" json:"source_asset"`
	BrandIdentity string          `gorm:"column:brand_identity" json:"brand_identity"`
	Category      string          `json:"category"`
	Members       json.RawMessage `gorm:"not null" json:"members"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SessionService struct {
	db *gorm.DB
}

func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{db: db}
}

func (s *SessionService) Create(ctx context.Context, sess *rebrand.Session) error {
	members, err := json.Marshal(sess.Members)
	if err != nil {
		return fmt.Errorf("failed to encode members: %v", err)
	}

	row := &RebrandSession{
		ID:            sess.ID,
		AnalysisID:    sess.AnalysisID,
		SourceAsset:   sess.SourceAsset,
		BrandIdentity: sess.BrandIdentity,
		Category:      sess.Category,
		Members:       members,
		CreatedAt:     sess.CreatedAt,
	}

	result := s.db.WithContext(ctx).Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to create session: %v", result.Error)
	}
	return nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*rebrand.Session, error) {
	var row RebrandSession
	result := s.db.WithContext(ctx).First(&row, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %v", result.Error)
	}
	return toDomain(&row)
}

// LatestByAnalysis returns the most recently created session for the
// analysis, or nil when none exists.
func (s *SessionService) LatestByAnalysis(ctx context.Context, analysisID int64) (*rebrand.Session, error) {
	var row RebrandSession
	result := s.db.WithContext(ctx).
		Where("analysis_id = ?", analysisID).
		Order("created_at DESC").
		First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest session: %v", result.Error)
	}
	return toDomain(&row)
}

func toDomain(row *RebrandSession) (*rebrand.Session, error) {
	var members []rebrand.Member
	if err := json.Unmarshal(row.Members, &members); err != nil {
		return nil, fmt.Errorf("failed to decode members: %v", err)
	}

	return &rebrand.Session{
		ID:            row.ID,
		AnalysisID:    row.AnalysisID,
		SourceAsset:   row.SourceAsset,
		BrandIdentity: row.BrandIdentity,
		Category:      row.Category,
		Members:       members,
		CreatedAt:     row.CreatedAt,
	}, nil
}
