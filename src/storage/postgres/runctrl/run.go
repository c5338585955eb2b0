package runctrl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"packsight/src/core/pipeline"
)

type RunRecord struct {
	RunID      string          `gorm:"primaryKey;column:run_id" json:"run_id"`
	Kind       string          `gorm:"not null" json:"kind"`
	ContextKey string          `gorm:"index;column:context_key" json:"context_key"`
	Params     json.RawMessage `json:"params"`
	CreatedAt  time.Time       `json:"created_at"`
}

type RunService struct {
	db *gorm.DB
}

func NewRunService(db *gorm.DB) *RunService {
	return &RunService{db: db}
}

func (s *RunService) Create(ctx context.Context, rec *pipeline.RunRecord) error {
	row := &RunRecord{
		RunID:      rec.RunID,
		Kind:       rec.Kind,
		ContextKey: rec.ContextKey,
		Params:     rec.Params,
	}

	result := s.db.WithContext(ctx).Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to create run record: %v", result.Error)
	}

	rec.CreatedAt = row.CreatedAt
	return nil
}

func (s *RunService) Get(ctx context.Context, runID string) (*pipeline.RunRecord, error) {
	var row RunRecord
	result := s.db.WithContext(ctx).First(&row, "run_id = ?", runID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run record: %v", result.Error)
	}

	return &pipeline.RunRecord{
		RunID:      row.RunID,
		Kind:       row.Kind,
		ContextKey: row.ContextKey,
		Params:     row.Params,
		CreatedAt:  row.CreatedAt,
	}, nil
}
