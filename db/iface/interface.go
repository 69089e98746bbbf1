// Package iface defines the persistence contract the coordinator's
// subsystems are written against. Implementations must make
// ClaimNextQueuedJob and CreateReportWithItems atomic: no two callers may
// claim the same job, and a report is never visible without its line items.
package iface

import (
	"context"
	"io"
	"time"

	"github.com/spknetwork/storage-coordinator/types"
)

// NodeFilter narrows storage-node listings.
type NodeFilter struct {
	Status types.NodeStatus // empty matches all
}

// JobFilter narrows encoding-job listings.
type JobFilter struct {
	Owner  string
	Status types.JobStatus
}

// QueueStats are the orchestrator's queue counters.
type QueueStats struct {
	Queued       int `json:"queued"`
	Assigned     int `json:"assigned"`
	Processing   int `json:"processing"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	TotalPending int `json:"totalPending"`
}

// NodeStore persists storage nodes. Listings are ordered by reputation
// descending. UpdateNode applies fn inside the store's write transaction,
// so updates are serialized per node.
type NodeStore interface {
	SaveNode(ctx context.Context, n *types.StorageNode) error
	Node(ctx context.Context, id string) (*types.StorageNode, error)
	NodeByPeerID(ctx context.Context, peerID string) (*types.StorageNode, error)
	Nodes(ctx context.Context, f NodeFilter) ([]*types.StorageNode, error)
	UpdateNode(ctx context.Context, id string, fn func(*types.StorageNode) error) error
}

// FileStore persists tracked files. DeleteFile cascades to the file's
// assignments and any non-terminal encoding jobs referencing its CID;
// challenge history is retained.
type FileStore interface {
	SaveFile(ctx context.Context, f *types.File) error
	File(ctx context.Context, id string) (*types.File, error)
	FileByCID(ctx context.Context, cid string) (*types.File, error)
	Files(ctx context.Context, status types.FileStatus) ([]*types.File, error)
	UpdateFile(ctx context.Context, id string, fn func(*types.File) error) error
	DeleteFile(ctx context.Context, id string) error
}

// ValidatorStore persists coordinator operators, keyed by username.
type ValidatorStore interface {
	SaveValidator(ctx context.Context, v *types.Validator) error
	ValidatorByUsername(ctx context.Context, username string) (*types.Validator, error)
	Validators(ctx context.Context) ([]*types.Validator, error)
}

// ChallengeStore persists PoA challenges. ResolveChallenge writes the
// terminal result exactly once and returns ErrConflict on a second call.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c *types.PoAChallenge) error
	Challenge(ctx context.Context, id string) (*types.PoAChallenge, error)
	ResolveChallenge(ctx context.Context, id string, result types.ChallengeResult, reason, response string, latencyMs int64) error
	RecentChallenges(ctx context.Context, limit int) ([]*types.PoAChallenge, error)
	ChallengesInRange(ctx context.Context, from, to time.Time) ([]*types.PoAChallenge, error)
	PendingChallengeCount(ctx context.Context) (int, error)
}

// AssignmentStore persists (file, node) assignments with monotone
// counters.
type AssignmentStore interface {
	UpsertAssignment(ctx context.Context, a *types.StorageAssignment) error
	Assignment(ctx context.Context, fileID, nodeID string) (*types.StorageAssignment, error)
	RecordAssignmentProof(ctx context.Context, fileID, nodeID string, success bool, at time.Time) error
	AssignmentsByNode(ctx context.Context, nodeID string) ([]*types.StorageAssignment, error)
}

// JobStore persists encoding jobs. CreateJob returns ErrConflict for a
// duplicate (owner, permlink). ClaimNextQueuedJob atomically selects the
// highest-priority claimable job (shorts first, then oldest), marks it
// assigned with the given lease, increments attempts, and returns it;
// it returns nil without error when nothing is claimable.
type JobStore interface {
	CreateJob(ctx context.Context, j *types.EncodingJob) error
	Job(ctx context.Context, id string) (*types.EncodingJob, error)
	JobByOwnerPermlink(ctx context.Context, owner, permlink string) (*types.EncodingJob, error)
	Jobs(ctx context.Context, f JobFilter) ([]*types.EncodingJob, error)
	ClaimNextQueuedJob(ctx context.Context, encoderID string, encoderType types.EncoderType, leaseExpiresAt, now time.Time) (*types.EncodingJob, error)
	UpdateJob(ctx context.Context, id string, fn func(*types.EncodingJob) error) error
	JobsWithExpiredLeases(ctx context.Context, now time.Time) ([]*types.EncodingJob, error)
	QueueStats(ctx context.Context) (*QueueStats, error)
}

// EncoderStore persists registered encoder workers.
type EncoderStore interface {
	SaveEncoder(ctx context.Context, e *types.EncoderNode) error
	Encoder(ctx context.Context, id string) (*types.EncoderNode, error)
	Encoders(ctx context.Context) ([]*types.EncoderNode, error)
	UpdateEncoder(ctx context.Context, id string, fn func(*types.EncoderNode) error) error
}

// ReportStore persists payout reports. CreateReportWithItems writes the
// report and all its line items in one atomic unit.
type ReportStore interface {
	CreateReportWithItems(ctx context.Context, r *types.PayoutReport, items []*types.PayoutLineItem) error
	Report(ctx context.Context, id string) (*types.PayoutReport, error)
	ReportItems(ctx context.Context, reportID string) ([]*types.PayoutLineItem, error)
	Reports(ctx context.Context) ([]*types.PayoutReport, error)
	UpdateReport(ctx context.Context, id string, fn func(*types.PayoutReport) error) error
}

// EventStore is the append-only settlement ledger.
type EventStore interface {
	AppendEvent(ctx context.Context, e *types.SettlementEvent) error
	RecentEvents(ctx context.Context, limit int) ([]*types.SettlementEvent, error)
}

// Repository is the full persistence surface of the coordinator.
type Repository interface {
	NodeStore
	FileStore
	ValidatorStore
	ChallengeStore
	AssignmentStore
	JobStore
	EncoderStore
	ReportStore
	EventStore
	io.Closer
	DatabasePath() string
	ClearDB() error
}
