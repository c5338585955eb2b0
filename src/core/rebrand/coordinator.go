package rebrand

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"packsight/src/core/pipeline"
	"packsight/src/log"
)

// PipelineRunner is the slice of the job lifecycle the coordinator
// drives: one fire-and-forget job per target product.
type PipelineRunner interface {
	Run(ctx context.Context, kind string, params json.RawMessage) (*pipeline.Job, error)
}

// JobReader reads member job snapshots for status derivation.
type JobReader interface {
	ListByIDs(ctx context.Context, ids []int64) ([]pipeline.Job, error)
}

// Coordinator fans one rebrand request out into independent jobs, one
// per eligible target product, and aggregates their states into a
// single session status. Members never affect each other: one failure
// cancels nothing and triggers no rollback.
type Coordinator struct {
	sessions SessionStore
	products ProductSource
	runner   PipelineRunner
	jobs     JobReader
}

func NewCoordinator(sessions SessionStore, products ProductSource, runner PipelineRunner, jobs JobReader) *Coordinator {
	return &Coordinator{
		sessions: sessions,
		products: products,
		runner:   runner,
		jobs:     jobs,
	}
}

// ItemParams is the params payload of one rebrand-session-item job.
// Every member shares the source asset, brand identity and category;
// only the target differs.
type ItemParams struct {
	AnalysisID    int64   `json:"analysis_id"`
	SourceAsset   string  `json:"source_asset"`
	BrandIdentity string  `json:"brand_identity"`
	Category      string  `json:"category"`
	Target        Product `json:"target"`
}

// Start creates one rebrand job per eligible target and a session
// record referencing them all. It returns as soon as the records exist;
// member jobs proceed in the worker pool at their own pace.
func (c *Coordinator) Start(ctx context.Context, analysisID int64, sourceAsset, brandIdentity, category string) (*Session, error) {
	prior, err := c.sessions.LatestByAnalysis(ctx, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up prior session: %w", err)
	}
	if prior != nil {
		status, err := c.deriveSession(ctx, prior)
		if err != nil {
			return nil, err
		}
		if status.Status == StatusPending {
			return nil, fmt.Errorf("analysis %d has session %s in flight: %w", analysisID, prior.ID, ErrSessionRunning)
		}
	}

	targets, err := c.products.EligibleTargets(ctx, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("analysis %d has no targets with a usable image: %w", analysisID, pipeline.ErrValidation)
	}

	sess := &Session{
		ID:            uuid.NewString(),
		AnalysisID:    analysisID,
		SourceAsset:   sourceAsset,
		BrandIdentity: brandIdentity,
		Category:      category,
		Members:       make([]Member, 0, len(targets)),
		CreatedAt:     time.Now().UTC(),
	}

	for _, target := range targets {
		params, merr := json.Marshal(ItemParams{
			AnalysisID:    analysisID,
			SourceAsset:   sourceAsset,
			BrandIdentity: brandIdentity,
			Category:      category,
			Target:        target,
		})
		if merr != nil {
			return nil, fmt.Errorf("failed to encode item params: %w", merr)
		}

		job, rerr := c.runner.Run(ctx, pipeline.KindRebrandItem, params)
		if rerr != nil {
			return nil, fmt.Errorf("failed to spawn rebrand job for %q: %w", target.Name, rerr)
		}
		sess.Members = append(sess.Members, Member{JobID: job.ID, Product: target})
	}

	if err := c.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info("rebrand session started", "sessionID", sess.ID, "analysisID", analysisID, "targets", len(targets))
	return sess, nil
}

// SessionStatus is the aggregate snapshot returned to pollers.
type SessionStatus struct {
	SessionID  string         `json:"session_id"`
	AnalysisID string         `json:"analysis_id"`
	Status     string         `json:"status"`
	Rebrands   []MemberStatus `json:"rebrands"`
	Progress   Progress       `json:"progress"`
}

// MemberStatus is the per-member summary inside a session snapshot.
type MemberStatus struct {
	JobID    string          `json:"job_id"`
	Product  string          `json:"product"`
	ImageURL string          `json:"image_url,omitempty"`
	State    pipeline.State  `json:"state"`
	Progress int             `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *string         `json:"error,omitempty"`
}

// Progress counts member outcomes. CurrentProduct names the first
// member still in flight, in fan-out order.
type Progress struct {
	Total          int    `json:"total"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
	CurrentProduct string `json:"current_product,omitempty"`
}

// GetStatus reads every member job and derives the aggregate. Nothing
// is written; the derivation runs fresh on every call.
func (c *Coordinator) GetStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, pipeline.ErrNotFound)
	}
	return c.deriveSession(ctx, sess)
}

func (c *Coordinator) deriveSession(ctx context.Context, sess *Session) (*SessionStatus, error) {
	ids := make([]int64, 0, len(sess.Members))
	for _, m := range sess.Members {
		ids = append(ids, m.JobID)
	}

	jobs, err := c.jobs.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load member jobs: %w", err)
	}
	byID := make(map[int64]pipeline.Job, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
	}

	st := &SessionStatus{
		SessionID:  sess.ID,
		AnalysisID: strconv.FormatInt(sess.AnalysisID, 10),
		Rebrands:   make([]MemberStatus, 0, len(sess.Members)),
		Progress:   Progress{Total: len(sess.Members)},
	}

	states := make([]pipeline.State, 0, len(sess.Members))
	for _, m := range sess.Members {
		job, ok := byID[m.JobID]
		if !ok {
			// A member row that disappeared counts as failed so the
			// session can still reach a terminal status.
			job = pipeline.Job{ID: m.JobID, State: pipeline.StateFailure}
		}
		states = append(states, job.State)

		ms := MemberStatus{
			JobID:    strconv.FormatInt(m.JobID, 10),
			Product:  m.Product.Name,
			ImageURL: m.Product.ImageURL,
			State:    job.State,
			Progress: job.Progress,
		}
		switch job.State {
		case pipeline.StateSuccess:
			ms.Result = job.Result
		case pipeline.StateFailure:
			ms.Error = job.Error
		default:
			if st.Progress.CurrentProduct == "" {
				st.Progress.CurrentProduct = m.Product.Name
			}
		}
		st.Rebrands = append(st.Rebrands, ms)
	}

	st.Status, st.Progress.Completed, st.Progress.Failed = DeriveStatus(states)
	return st, nil
}

// DeriveStatus computes the aggregate status from member job states.
// Pure function of the state vector:
//
//	any member non-terminal        → pending
//	all terminal, none failed      → completed
//	all terminal, none succeeded   → failed
//	otherwise                      → partial
func DeriveStatus(states []pipeline.State) (status string, completed, failed int) {
	inflight := false
	for _, st := range states {
		switch st {
		case pipeline.StateSuccess:
			completed++
		case pipeline.StateFailure:
			failed++
		default:
			inflight = true
		}
	}

	switch {
	case inflight:
		status = StatusPending
	case failed == 0:
		status = StatusCompleted
	case completed == 0:
		status = StatusFailed
	default:
		status = StatusPartial
	}
	return status, completed, failed
}
