package rebrand

import (
	"context"
	"errors"
	"time"
)

// ErrSessionRunning is returned when a rebrand session is requested
// for an analysis whose previous session has not reached a terminal
// status. Retrying a session means starting a fresh one once the prior
// session is terminal.
var ErrSessionRunning = errors.New("session already running")

// Session statuses derived from member job states.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Product is one target product eligible for rebranding.
type Product struct {
	Name      string `json:"name"`
	ImageURL  string `json:"image_url"`
	DetailURL string `json:"detail_url,omitempty"`
}

// Member binds one target product to the job rebranding it.
type Member struct {
	JobID   int64
	Product Product
}

// Session aggregates the fanned-out per-product jobs of one rebrand
// request. A session is never mutated after creation; its status is
// derived from the member jobs on every read.
type Session struct {
	ID            string
	AnalysisID    int64
	SourceAsset   string
	BrandIdentity string
	Category      string
	Members       []Member
	CreatedAt     time.Time
}

// SessionStore persists sessions. Get and LatestByAnalysis return
// (nil, nil) on a miss.
type SessionStore interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	LatestByAnalysis(ctx context.Context, analysisID int64) (*Session, error)
}

// ProductSource enumerates the target products of one analysis that
// have a usable reference image.
type ProductSource interface {
	EligibleTargets(ctx context.Context, analysisID int64) ([]Product, error)
}
