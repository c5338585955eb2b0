package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"packsight/src/core/pipeline"
)

type serviceFixture struct {
	jobs      *memJobStore
	steps     *memStepStore
	runs      *memRunStore
	queue     *fakeQueue
	validator *stubValidator
	svc       *pipeline.Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		jobs:      newMemJobStore(),
		steps:     newMemStepStore(),
		runs:      newMemRunStore(),
		queue:     &fakeQueue{},
		validator: &stubValidator{},
	}
	f.svc = pipeline.NewService(f.jobs, f.steps, f.runs, testRegistry(), f.queue, f.validator)
	return f
}

func TestInitCreatesDraftJob(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()

	job, err := f.svc.Init(ctx, "gated-triple", json.RawMessage(`{"category":"espresso"}`))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if job.State != pipeline.StateDraft {
		t.Errorf("State = %s, want DRAFT", job.State)
	}
	if job.Kind != "gated-triple" || job.TotalSteps != 3 || job.StepRange != "1-3" {
		t.Errorf("job = %s/%d/%s, want gated-triple/3/1-3", job.Kind, job.TotalSteps, job.StepRange)
	}
	if job.RunID == "" {
		t.Error("RunID is empty, want generated id")
	}
	if f.queue.count() != 0 {
		t.Errorf("enqueued = %d, want 0 before start", f.queue.count())
	}

	run, _ := f.runs.Get(ctx, job.RunID)
	if run == nil {
		t.Fatal("run record not created")
	}
	if run.Kind != "gated-triple" || run.ContextKey != "espresso" {
		t.Errorf("run = %s/%q, want gated-triple/espresso", run.Kind, run.ContextKey)
	}
}

func TestInitRejectsKind(t *testing.T) {
	tests := []struct {
		name string
		kind string
	}{
		{name: "unknown kind", kind: "espresso"},
		{name: "ungated kind", kind: "triple"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()
			_, err := f.svc.Init(context.Background(), tt.kind, nil)
			if !errors.Is(err, pipeline.ErrValidation) {
				t.Errorf("Init(%q) error = %v, want ErrValidation", tt.kind, err)
			}
			if f.jobs.count() != 0 {
				t.Errorf("jobs created = %d, want 0", f.jobs.count())
			}
		})
	}
}

func TestRunCreatesPendingJobAndEnqueues(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()

	job, err := f.svc.Run(ctx, "triple", json.RawMessage(`{"image_url":"https://cdn.example.com/shot.png"}`))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if job.State != pipeline.StatePending {
		t.Errorf("State = %s, want PENDING", job.State)
	}
	if len(f.queue.enqueued) != 1 || f.queue.enqueued[0] != job.ID {
		t.Errorf("enqueued = %v, want [%d]", f.queue.enqueued, job.ID)
	}

	run, _ := f.runs.Get(ctx, job.RunID)
	if run == nil {
		t.Fatal("run record not created")
	}
	if run.ContextKey != "https://cdn.example.com/shot.png" {
		t.Errorf("ContextKey = %q, want image url fallback", run.ContextKey)
	}
}

func TestRunRejectsKind(t *testing.T) {
	tests := []struct {
		name string
		kind string
	}{
		{name: "unknown kind", kind: "espresso"},
		{name: "gated kind", kind: "gated-triple"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()
			_, err := f.svc.Run(context.Background(), tt.kind, nil)
			if !errors.Is(err, pipeline.ErrValidation) {
				t.Errorf("Run(%q) error = %v, want ErrValidation", tt.kind, err)
			}
			if f.queue.count() != 0 {
				t.Errorf("enqueued = %d, want 0", f.queue.count())
			}
		})
	}
}

func TestStartReleasesDraftJob(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()

	job, err := f.svc.Init(ctx, "gated-triple", nil)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if err := f.svc.Start(ctx, job.ID, "dean@acme.com"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if f.validator.seen != "dean@acme.com" {
		t.Errorf("validator saw %q, want dean@acme.com", f.validator.seen)
	}
	got, _ := f.jobs.Get(ctx, job.ID)
	if got.State != pipeline.StatePending {
		t.Errorf("State = %s, want PENDING", got.State)
	}
	if len(f.queue.enqueued) != 1 || f.queue.enqueued[0] != job.ID {
		t.Errorf("enqueued = %v, want [%d]", f.queue.enqueued, job.ID)
	}
}

func TestStartValidationFailureLeavesDraft(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	f.validator.err = errors.New("address rejected")

	job, err := f.svc.Init(ctx, "gated-triple", nil)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	err = f.svc.Start(ctx, job.ID, "nobody")
	if !errors.Is(err, pipeline.ErrValidation) {
		t.Fatalf("Start() error = %v, want ErrValidation", err)
	}

	got, _ := f.jobs.Get(ctx, job.ID)
	if got.State != pipeline.StateDraft {
		t.Errorf("State = %s, want DRAFT untouched", got.State)
	}
	if f.queue.count() != 0 {
		t.Errorf("enqueued = %d, want 0", f.queue.count())
	}
}

func TestStartConflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown job", func(t *testing.T) {
		f := newServiceFixture()
		err := f.svc.Start(ctx, 4242, "dean@acme.com")
		if !errors.Is(err, pipeline.ErrNotFound) {
			t.Errorf("Start() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("not a draft", func(t *testing.T) {
		f := newServiceFixture()
		job := &pipeline.Job{Kind: "gated-triple", State: pipeline.StatePending, RunID: "run-1", TotalSteps: 3, StepRange: "1-3"}
		f.jobs.Create(ctx, job)

		err := f.svc.Start(ctx, job.ID, "dean@acme.com")
		if !errors.Is(err, pipeline.ErrStateConflict) {
			t.Errorf("Start() error = %v, want ErrStateConflict", err)
		}
		if f.validator.seen != "" {
			t.Errorf("validator saw %q, want no call", f.validator.seen)
		}
	})
}

func TestGetStatusIsStable(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()

	job, err := f.svc.Run(ctx, "triple", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	first, err := f.svc.GetStatus(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	second, err := f.svc.GetStatus(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Errorf("two reads differ:\n%s\n%s", a, b)
	}

	if first.JobID == "" || first.Status != "queued" {
		t.Errorf("status = %q/%q, want job id and queued", first.JobID, first.Status)
	}
}

func TestGetStatusUnknownJob(t *testing.T) {
	f := newServiceFixture()
	_, err := f.svc.GetStatus(context.Background(), 4242)
	if !errors.Is(err, pipeline.ErrNotFound) {
		t.Errorf("GetStatus() error = %v, want ErrNotFound", err)
	}
}

func TestStatusOf(t *testing.T) {
	failure := "step 2 (beta): boom"

	tests := []struct {
		name       string
		job        *pipeline.Job
		wantStatus string
		wantResult string
		wantError  string
	}{
		{
			name:       "draft",
			job:        &pipeline.Job{ID: 1, State: pipeline.StateDraft},
			wantStatus: "awaiting start",
		},
		{
			name:       "pending",
			job:        &pipeline.Job{ID: 2, State: pipeline.StatePending},
			wantStatus: "queued",
		},
		{
			name:       "started",
			job:        &pipeline.Job{ID: 3, State: pipeline.StateStarted},
			wantStatus: "starting",
		},
		{
			name:       "progress",
			job:        &pipeline.Job{ID: 4, State: pipeline.StateProgress, CurrentStep: 3, TotalSteps: 7, StepName: "render"},
			wantStatus: "running step 3 of 7: render",
		},
		{
			name:       "success",
			job:        &pipeline.Job{ID: 5, State: pipeline.StateSuccess, Result: json.RawMessage(`{"ok":true}`)},
			wantStatus: "completed",
			wantResult: `{"ok":true}`,
		},
		{
			name:       "failure",
			job:        &pipeline.Job{ID: 6, State: pipeline.StateFailure, Error: &failure},
			wantStatus: "failed",
			wantError:  failure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := pipeline.StatusOf(tt.job)
			if st.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", st.Status, tt.wantStatus)
			}
			if string(st.Result) != tt.wantResult {
				t.Errorf("Result = %s, want %s", st.Result, tt.wantResult)
			}
			gotErr := ""
			if st.Error != nil {
				gotErr = *st.Error
			}
			if gotErr != tt.wantError {
				t.Errorf("Error = %q, want %q", gotErr, tt.wantError)
			}
		})
	}

	if got := pipeline.StatusOf(&pipeline.Job{ID: 42, State: pipeline.StatePending}).JobID; got != "42" {
		t.Errorf("JobID = %q, want 42", got)
	}
}

func TestResultByState(t *testing.T) {
	ctx := context.Background()
	failure := "step 2 (beta): boom"

	tests := []struct {
		name    string
		job     *pipeline.Job
		want    string
		wantErr error
	}{
		{
			name: "success returns payload",
			job:  &pipeline.Job{Kind: "triple", State: pipeline.StateSuccess, Result: json.RawMessage(`{"verdict":"done"}`)},
			want: `{"verdict":"done"}`,
		},
		{
			name: "failure returns error payload",
			job:  &pipeline.Job{Kind: "triple", State: pipeline.StateFailure, Error: &failure},
			want: `{"error":"step 2 (beta): boom"}`,
		},
		{
			name:    "pending is not ready",
			job:     &pipeline.Job{Kind: "triple", State: pipeline.StatePending},
			wantErr: pipeline.ErrNotReady,
		},
		{
			name:    "progress is not ready",
			job:     &pipeline.Job{Kind: "triple", State: pipeline.StateProgress},
			wantErr: pipeline.ErrNotReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()
			f.jobs.Create(ctx, tt.job)

			got, err := f.svc.Result(ctx, tt.job.ID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Result() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Result() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Result() = %s, want %s", got, tt.want)
			}
		})
	}

	t.Run("unknown job", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.svc.Result(ctx, 4242)
		if !errors.Is(err, pipeline.ErrNotFound) {
			t.Errorf("Result() error = %v, want ErrNotFound", err)
		}
	})
}

func seedRun(t *testing.T, f *serviceFixture, runID string, completed ...int) {
	t.Helper()
	ctx := context.Background()
	err := f.runs.Create(ctx, &pipeline.RunRecord{
		RunID:  runID,
		Kind:   "triple",
		Params: json.RawMessage(`{"category":"espresso"}`),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	names := []string{"alpha", "beta", "gamma"}
	for _, ord := range completed {
		f.steps.Append(ctx, &pipeline.StepRecord{
			JobID:   99,
			RunID:   runID,
			Ordinal: ord,
			Name:    names[ord-1],
			Status:  pipeline.StepStatusComplete,
			Output:  json.RawMessage(`{}`),
		})
	}
}

func TestResumeCreatesRangedJob(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	seedRun(t, f, "run-9", 1, 2)

	job, err := f.svc.Resume(ctx, "run-9", "3-3")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	if job.State != pipeline.StatePending {
		t.Errorf("State = %s, want PENDING", job.State)
	}
	if job.Kind != "triple" || job.RunID != "run-9" || job.StepRange != "3-3" {
		t.Errorf("job = %s/%s/%s, want triple/run-9/3-3", job.Kind, job.RunID, job.StepRange)
	}
	if string(job.Params) != `{"category":"espresso"}` {
		t.Errorf("Params = %s, want inherited run params", job.Params)
	}
	if len(f.queue.enqueued) != 1 || f.queue.enqueued[0] != job.ID {
		t.Errorf("enqueued = %v, want [%d]", f.queue.enqueued, job.ID)
	}
}

func TestResumeMissingPrerequisite(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	// Step 2 never completed; its record is an error.
	seedRun(t, f, "run-9", 1)
	f.steps.Append(ctx, &pipeline.StepRecord{
		JobID: 99, RunID: "run-9", Ordinal: 2, Name: "beta", Status: pipeline.StepStatusError, ErrorMessage: "boom",
	})

	_, err := f.svc.Resume(ctx, "run-9", "3-3")
	if !errors.Is(err, pipeline.ErrMissingPrerequisite) {
		t.Fatalf("Resume() error = %v, want ErrMissingPrerequisite", err)
	}
	if f.jobs.count() != 0 {
		t.Errorf("jobs created = %d, want 0", f.jobs.count())
	}
	if f.queue.count() != 0 {
		t.Errorf("enqueued = %d, want 0", f.queue.count())
	}
}

func TestResumeErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown run", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.svc.Resume(ctx, "run-404", "1-3")
		if !errors.Is(err, pipeline.ErrNotFound) {
			t.Errorf("Resume() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("bad range", func(t *testing.T) {
		f := newServiceFixture()
		seedRun(t, f, "run-9", 1, 2)
		_, err := f.svc.Resume(ctx, "run-9", "0-4")
		if !errors.Is(err, pipeline.ErrValidation) {
			t.Errorf("Resume() error = %v, want ErrValidation", err)
		}
	})
}

func TestEnqueueFailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	f.queue.failWith = errors.New("amqp down")

	_, err := f.svc.Run(ctx, "triple", nil)
	if err == nil {
		t.Fatal("Run() error = nil, want enqueue failure")
	}

	got, _ := f.jobs.Get(ctx, 1)
	if got == nil {
		t.Fatal("job record missing")
	}
	if got.State != pipeline.StateFailure {
		t.Errorf("State = %s, want FAILURE", got.State)
	}
	if got.Error == nil || *got.Error != "infrastructure: enqueue failed: amqp down" {
		t.Errorf("Error = %v, want infrastructure: enqueue failed: amqp down", got.Error)
	}
}
