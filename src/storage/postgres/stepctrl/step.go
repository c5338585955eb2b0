package stepctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"packsight/src/core/pipeline"
)

type StepRecord struct {
	ID            int64           `gorm:"primaryKey" json:"id"`
	JobID         int64           `gorm:"not null;index;column:job_id" json:"job_id"`
	RunID         string          `gorm:"not null;index;column:run_id" json:"run_id"`
	Ordinal       int             `gorm:"not null" json:"ordinal"`
	Name          string          `gorm:"not null" json:"name"`
	Status        string          `gorm:"not null" json:"status"`
	InputSummary  string          `gorm:"column:input_summary" json:"input_summary"`
	OutputSummary string          `gorm:"column:output_summary" json:"output_summary"`
	Output        json.RawMessage `json:"output"`
	ArtifactURL   string          `gorm:"column:artifact_url" json:"artifact_url"`
	DurationMS    int64           `gorm:"column:duration_ms" json:"duration_ms"`
	ErrorMessage  string          `gorm:"column:error_message" json:"error_message"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type StepService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewStepService(db *gorm.DB) (*StepService, error) {
	// Initialize snowflake node
	node, err := snowflake.NewNode(2) // Node number 2 for step records
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &StepService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *StepService) Append(ctx context.Context, rec *pipeline.StepRecord) error {
	row := fromDomain(rec)
	if row.ID == 0 {
		row.ID = s.snowflake.Generate().Int64()
	}

	result := s.db.WithContext(ctx).Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to create step record: %v", result.Error)
	}

	rec.ID = row.ID
	rec.CreatedAt = row.CreatedAt
	rec.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *StepService) Update(ctx context.Context, rec *pipeline.StepRecord) error {
	result := s.db.WithContext(ctx).Model(&StepRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
		"status":         string(rec.Status),
		"input_summary":  rec.InputSummary,
		"output_summary": rec.OutputSummary,
		"output":         []byte(rec.Output),
		"artifact_url":   rec.ArtifactURL,
		"duration_ms":    rec.DurationMS,
		"error_message":  rec.ErrorMessage,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update step record: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("step record %d: %w", rec.ID, pipeline.ErrNotFound)
	}
	return nil
}

// ListByRun returns every step record accumulated under the run id,
// oldest first, across all jobs that executed the run.
func (s *StepService) ListByRun(ctx context.Context, runID string) ([]pipeline.StepRecord, error) {
	var rows []StepRecord
	result := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id ASC").Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list step records: %v", result.Error)
	}
	return toDomainList(rows), nil
}

func (s *StepService) ListByJob(ctx context.Context, jobID int64) ([]pipeline.StepRecord, error) {
	var rows []StepRecord
	result := s.db.WithContext(ctx).Where("job_id = ?", jobID).Order("ordinal ASC").Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list step records: %v", result.Error)
	}
	return toDomainList(rows), nil
}

func fromDomain(rec *pipeline.StepRecord) *StepRecord {
	return &StepRecord{
		ID:            rec.ID,
		JobID:         rec.JobID,
		RunID:         rec.RunID,
		Ordinal:       rec.Ordinal,
		Name:          rec.Name,
		Status:        string(rec.Status),
		InputSummary:  rec.InputSummary,
		OutputSummary: rec.OutputSummary,
		Output:        rec.Output,
		ArtifactURL:   rec.ArtifactURL,
		DurationMS:    rec.DurationMS,
		ErrorMessage:  rec.ErrorMessage,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func toDomain(row *StepRecord) *pipeline.StepRecord {
	return &pipeline.StepRecord{
		ID:            row.ID,
		JobID:         row.JobID,
		RunID:         row.RunID,
		Ordinal:       row.Ordinal,
		Name:          row.Name,
		Status:        pipeline.StepStatus(row.Status),
		InputSummary:  row.InputSummary,
		OutputSummary: row.OutputSummary,
		Output:        row.Output,
		ArtifactURL:   row.ArtifactURL,
		DurationMS:    row.DurationMS,
		ErrorMessage:  row.ErrorMessage,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func toDomainList(rows []StepRecord) []pipeline.StepRecord {
	recs := make([]pipeline.StepRecord, 0, len(rows))
	for i := range rows {
		recs = append(recs, *toDomain(&rows[i]))
	}
	return recs
}
