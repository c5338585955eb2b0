package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"packsight/src/core/pipeline"
	"packsight/src/log"
)

// TopicJobs is the shared work queue every pipeline job goes through.
const TopicJobs = "pipeline.jobs"

// JobMessage is the wire envelope for one enqueued job. The job row is
// the source of truth; the message only carries enough to find it.
type JobMessage struct {
	JobID int64  `json:"job_id"`
	Kind  string `json:"kind"`
	RunID string `json:"run_id"`
}

// Publisher enqueues jobs onto the shared topic.
type Publisher struct {
	publisher message.Publisher
}

func NewPublisher(publisher message.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

func (p *Publisher) Enqueue(ctx context.Context, job *pipeline.Job) error {
	payload, err := json.Marshal(JobMessage{
		JobID: job.ID,
		Kind:  job.Kind,
		RunID: job.RunID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(TopicJobs, msg); err != nil {
		return fmt.Errorf("failed to publish job message: %w", err)
	}

	log.Debug("job message published", "jobID", job.ID, "kind", job.Kind)
	return nil
}

// JobExecutor runs one enqueued job to a terminal state.
type JobExecutor interface {
	Execute(ctx context.Context, jobID int64) error
}

// RegisterHandlers attaches concurrency competing consumers for the
// jobs topic. Each handler runs one job at a time, so concurrency
// bounds the jobs in flight per worker process; excess jobs wait in
// the queue.
func RegisterHandlers(router *message.Router, subscriber message.Subscriber, executor JobExecutor, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		router.AddNoPublisherHandler(
			fmt.Sprintf("pipeline_worker_%d", i),
			TopicJobs,
			subscriber,
			handleJobMessage(executor),
		)
	}
}

// TerminalFailure converts an error that survived the retry middleware
// into a terminal job FAILURE, so a job whose message is dropped never
// dangles in a non-terminal state. Add it outside the retry middleware.
func TerminalFailure(jobs pipeline.JobStore) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			msgs, err := h(msg)
			if err == nil {
				return msgs, nil
			}

			var jm JobMessage
			if jerr := json.Unmarshal(msg.Payload, &jm); jerr != nil {
				return msgs, err
			}
			if ferr := markFailed(msg.Context(), jobs, jm.JobID, err); ferr != nil {
				log.Error(ferr, "failed to record infrastructure failure", "jobID", jm.JobID)
				return msgs, err
			}

			log.Error(err, "job failed on infrastructure error", "jobID", jm.JobID)
			return nil, nil
		}
	}
}

// markFailed records the infrastructure failure on the job, leaving
// jobs that already reached a terminal state untouched.
func markFailed(ctx context.Context, jobs pipeline.JobStore, jobID int64, cause error) error {
	job, err := jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil || job.State.Terminal() {
		return nil
	}

	msg := fmt.Sprintf("infrastructure: %v", cause)
	job.State = pipeline.StateFailure
	job.Error = &msg
	return jobs.Update(ctx, job)
}

func handleJobMessage(executor JobExecutor) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var jm JobMessage
		if err := json.Unmarshal(msg.Payload, &jm); err != nil {
			log.Error(err, "failed to decode job message", "messageUUID", msg.UUID)
			return nil
		}

		err := executor.Execute(msg.Context(), jm.JobID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, pipeline.ErrStateConflict):
			// Duplicate delivery: another worker already claimed the job.
			log.Debug("job already claimed", "jobID", jm.JobID, "messageUUID", msg.UUID)
			return nil
		case errors.Is(err, pipeline.ErrNotFound):
			log.Error(err, "job message references unknown job", "jobID", jm.JobID)
			return nil
		default:
			// Store or broker trouble: nack and let the retry
			// middleware decide.
			return err
		}
	}
}
