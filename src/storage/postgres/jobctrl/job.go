package jobctrl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"packsight/src/core/pipeline"
)

type Job struct {
	ID          int64           `gorm:"primaryKey" json:"id"`
	Kind        string          `gorm:"not null;index" json:"kind"`
	State       string          `gorm:"not null;index" json:"state"`
	Progress    int             `gorm:"not null;default:0" json:"progress"`
	CurrentStep int             `gorm:"not null;default:0;column:current_step" json:"current_step"`
	StepName    string          `gorm:"column:step_name" json:"step_name"`
	TotalSteps  int             `gorm:"not null;column:total_steps" json:"total_steps"`
	StepRange   string          `gorm:"not null;column:step_range" json:"step_range"`
	RunID       string          `gorm:"not null;index;column:run_id" json:"run_id"`
	Params      json.RawMessage `json:"params"`
	Result      json.RawMessage `json:"result"`
	Error       *string         `json:"error"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type JobService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewJobService(db *gorm.DB) (*JobService, error) {
	// Initialize snowflake node
	node, err := snowflake.NewNode(1) // Node number 1 for jobs
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &JobService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *JobService) Create(ctx context.Context, job *pipeline.Job) error {
	row := fromDomain(job)
	if row.ID == 0 {
		row.ID = s.snowflake.Generate().Int64()
	}

	result := s.db.WithContext(ctx).Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to create job: %v", result.Error)
	}

	job.ID = row.ID
	job.CreatedAt = row.CreatedAt
	job.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *JobService) Get(ctx context.Context, id int64) (*pipeline.Job, error) {
	var row Job
	result := s.db.WithContext(ctx).First(&row, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %v", result.Error)
	}
	return toDomain(&row), nil
}

// Update writes the fields the executor mutates while a job runs.
// Kind, params and run binding never change after creation.
func (s *JobService) Update(ctx context.Context, job *pipeline.Job) error {
	result := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"state":        string(job.State),
		"progress":     job.Progress,
		"current_step": job.CurrentStep,
		"step_name":    job.StepName,
		"result":       []byte(job.Result),
		"error":        job.Error,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update job: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job %d: %w", job.ID, pipeline.ErrNotFound)
	}
	return nil
}

// Transition moves a job between states only if it still is in the
// expected one. Losing the race means another worker owns the job.
func (s *JobService) Transition(ctx context.Context, id int64, from, to pipeline.State) error {
	result := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND state = ?", id, string(from)).
		Update("state", string(to))
	if result.Error != nil {
		return fmt.Errorf("failed to transition job: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job %d is not %s: %w", id, from, pipeline.ErrStateConflict)
	}
	return nil
}

func (s *JobService) ListByIDs(ctx context.Context, ids []int64) ([]pipeline.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []Job
	result := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list jobs: %v", result.Error)
	}

	jobs := make([]pipeline.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, *toDomain(&rows[i]))
	}
	return jobs, nil
}

func fromDomain(job *pipeline.Job) *Job {
	return &Job{
		ID:          job.ID,
		Kind:        job.Kind,
		State:       string(job.State),
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		StepName:    job.StepName,
		TotalSteps:  job.TotalSteps,
		StepRange:   job.StepRange,
		RunID:       job.RunID,
		Params:      job.Params,
		Result:      job.Result,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}

func toDomain(row *Job) *pipeline.Job {
	return &pipeline.Job{
		ID:          row.ID,
		Kind:        row.Kind,
		State:       pipeline.State(row.State),
		Progress:    row.Progress,
		CurrentStep: row.CurrentStep,
		StepName:    row.StepName,
		TotalSteps:  row.TotalSteps,
		StepRange:   row.StepRange,
		RunID:       row.RunID,
		Params:      row.Params,
		Result:      row.Result,
		Error:       row.Error,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}
