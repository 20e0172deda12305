package store

import (
	"context"
	"errors"
	"time"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"
)

// Sentinel errors. Callers match with errors.Is; every store method wraps
// them with context.
var (
	// ErrNotFound means the referenced record does not exist. Expired
	// records are observationally identical to absent ones.
	ErrNotFound = errors.New("not found")

	// ErrStaleRevision means a publish carried a revision older than the
	// stored one: another agent published in between. Re-read and retry.
	ErrStaleRevision = errors.New("stale revision")

	// ErrRetriesExhausted means a bounded read-modify-publish loop kept
	// losing races and gave up. Retryable, but the caller should back off
	// or abdicate rather than loop.
	ErrRetriesExhausted = errors.New("publish retries exhausted")

	// ErrNotHolder means the caller tried to release or refresh something
	// it does not own. Never partially applied.
	ErrNotHolder = errors.New("not the holder")
)

// ClaimResult is the outcome of an exclusive task claim. On conflict OK is
// false and ClaimedBy names the current claimant so the caller can decide
// to wait, bid elsewhere, or escalate.
type ClaimResult struct {
	OK        bool   `json:"ok"`
	ClaimedBy string `json:"claimed_by,omitempty"`
}

// Store is the shared persistence substrate all agents coordinate through.
// Documents are versioned records with compare-and-swap publish; events are
// an append-only totally-ordered log; tasks and identities get dedicated
// tables because claims and display-name uniqueness need real atomicity.
type Store interface {
	// Documents
	GetDoc(ctx context.Context, key string) (*models.Document, error)
	// PublishDoc writes value if the stored revision still equals
	// expectedRev (0 = create). Returns the new revision, or
	// ErrStaleRevision if the record advanced since the caller's read.
	PublishDoc(ctx context.Context, key string, value []byte, expectedRev int64) (int64, error)
	DeleteDoc(ctx context.Context, key string, expectedRev int64) error
	ListDocs(ctx context.Context, prefix string) ([]*models.Document, error)

	// Events
	AppendEvent(ctx context.Context, eventType string, payload map[string]any) (*models.SwarmEvent, error)
	// PollEvents returns events with ts strictly after since, matching any
	// of types (all types if empty), ascending by (ts, seq).
	PollEvents(ctx context.Context, since time.Time, types []string) ([]*models.SwarmEvent, error)

	// Tasks
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, status models.TaskStatus) ([]*models.Task, error)
	ClaimTask(ctx context.Context, id, agent string) (*ClaimResult, error)
	ReleaseTask(ctx context.Context, id, agent string) error
	// ReassignTask moves a claimed task from one assignee to another, or
	// back to open when to is empty.
	ReassignTask(ctx context.Context, id, from, to string) error

	// Identities
	PutIdentity(ctx context.Context, info *models.AgentInfo) error
	TouchIdentity(ctx context.Context, agentID string, seen time.Time) error
	GetIdentity(ctx context.Context, agentID string) (*models.AgentInfo, error)
	ListIdentities(ctx context.Context) ([]*models.AgentInfo, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
