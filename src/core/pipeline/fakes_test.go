package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"packsight/src/core/pipeline"
)

// In-memory stores shared by the executor and service tests. They honor
// the store contracts: Get returns (nil, nil) on a miss and Transition
// fails with ErrStateConflict when the record left the expected state.

type memJobStore struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]pipeline.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[int64]pipeline.Job)}
}

func (s *memJobStore) Create(ctx context.Context, job *pipeline.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	job.ID = s.nextID
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStore) Get(ctx context.Context, id int64) (*pipeline.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := job
	return &cp, nil
}

func (s *memJobStore) Update(ctx context.Context, job *pipeline.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("job %d: %w", job.ID, pipeline.ErrNotFound)
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStore) Transition(ctx context.Context, id int64, from, to pipeline.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.State != from {
		return fmt.Errorf("job %d is not %s: %w", id, from, pipeline.ErrStateConflict)
	}
	job.State = to
	s.jobs[id] = job
	return nil
}

func (s *memJobStore) ListByIDs(ctx context.Context, ids []int64) ([]pipeline.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []pipeline.Job
	for _, id := range ids {
		if job, ok := s.jobs[id]; ok {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (s *memJobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type memStepStore struct {
	mu     sync.Mutex
	nextID int64
	recs   []pipeline.StepRecord
}

func newMemStepStore() *memStepStore {
	return &memStepStore{}
}

func (s *memStepStore) Append(ctx context.Context, rec *pipeline.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.recs = append(s.recs, *rec)
	return nil
}

func (s *memStepStore) Update(ctx context.Context, rec *pipeline.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.recs {
		if s.recs[i].ID == rec.ID {
			s.recs[i] = *rec
			return nil
		}
	}
	return fmt.Errorf("step record %d: %w", rec.ID, pipeline.ErrNotFound)
}

func (s *memStepStore) ListByRun(ctx context.Context, runID string) ([]pipeline.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []pipeline.StepRecord
	for _, rec := range s.recs {
		if rec.RunID == runID {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (s *memStepStore) ListByJob(ctx context.Context, jobID int64) ([]pipeline.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []pipeline.StepRecord
	for _, rec := range s.recs {
		if rec.JobID == jobID {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

type memRunStore struct {
	mu   sync.Mutex
	runs map[string]pipeline.RunRecord
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[string]pipeline.RunRecord)}
}

func (s *memRunStore) Create(ctx context.Context, rec *pipeline.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.RunID] = *rec
	return nil
}

func (s *memRunStore) Get(ctx context.Context, runID string) (*pipeline.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

// fakeQueue records enqueued job ids. Setting failWith simulates a
// broker outage.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []int64
	failWith error
}

func (q *fakeQueue) Enqueue(ctx context.Context, job *pipeline.Job) error {
	if q.failWith != nil {
		return q.failWith
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, job.ID)
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

type stubValidator struct {
	err  error
	seen string
}

func (v *stubValidator) Validate(ctx context.Context, credential string) error {
	v.seen = credential
	return v.err
}

// stubStep counts invocations and returns a canned output, or defers to
// fn when set.
type stubStep struct {
	name  string
	calls int
	fn    func(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error)
}

func (s *stubStep) Name() string { return s.name }

func (s *stubStep) Execute(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(ctx, sc)
	}
	return &pipeline.StepResult{
		InputSummary:  "in:" + s.name,
		OutputSummary: "out:" + s.name,
		Output:        json.RawMessage(fmt.Sprintf(`{"step":%q}`, s.name)),
	}, nil
}

// testRegistry keeps orchestration tests independent of the shipped
// pipeline definitions.
func testRegistry() *pipeline.Registry {
	return pipeline.NewRegistry(
		pipeline.Definition{Kind: "triple", Steps: []string{"alpha", "beta", "gamma"}},
		pipeline.Definition{Kind: "gated-triple", Steps: []string{"alpha", "beta", "gamma"}, Gated: true},
	)
}
