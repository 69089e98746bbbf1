// Package types holds the entities shared between the coordinator's
// subsystems: storage nodes, content-addressed files, proof-of-access
// challenges, encoding jobs, payout reports, and the settlement event log.
package types

import "time"

// NodeStatus describes the standing of a storage node in the network.
type NodeStatus string

const (
	NodeActive    NodeStatus = "active"
	NodeProbation NodeStatus = "probation"
	NodeBanned    NodeStatus = "banned"
)

// StorageNode is an untrusted operator holding pinned content. Reputation
// stays within [0, 100]; a banned node always has zero reputation or at
// least three consecutive failed proofs on record.
type StorageNode struct {
	ID               string     `json:"id"`
	PeerID           string     `json:"peerId"`
	OperatorName     string     `json:"operatorName"`
	Reputation       int        `json:"reputation"`
	Status           NodeStatus `json:"status"`
	ConsecutiveFails int        `json:"consecutiveFails"`
	TotalProofs      int        `json:"totalProofs"`
	FailedProofs     int        `json:"failedProofs"`
	TotalEarned      string     `json:"totalEarned"`
	LastSeen         time.Time  `json:"lastSeen"`
}

// FileStatus tracks where a file sits in its pin lifecycle.
type FileStatus string

const (
	FileSyncing  FileStatus = "syncing"
	FilePinned   FileStatus = "pinned"
	FileUnpinned FileStatus = "unpinned"
)

// File is a content-addressed object tracked for proof-of-access.
type File struct {
	ID               string     `json:"id"`
	CID              string     `json:"cid"`
	Name             string     `json:"name"`
	Size             int64      `json:"size"`
	Uploader         string     `json:"uploader"`
	Status           FileStatus `json:"status"`
	ReplicationCount int        `json:"replicationCount"`
	Confidence       int        `json:"confidence"`
	PoAEnabled       bool       `json:"poaEnabled"`
	Earned           string     `json:"earned"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// ValidatorStatus describes an operator's liveness.
type ValidatorStatus string

const (
	ValidatorOnline  ValidatorStatus = "online"
	ValidatorOffline ValidatorStatus = "offline"
)

// Validator is a coordinator operator, identified by a Hive username and
// eligible only while inside the top witness ranks.
type Validator struct {
	ID          string          `json:"id"`
	Username    string          `json:"username"`
	WitnessRank int             `json:"witnessRank"`
	Status      ValidatorStatus `json:"status"`
	Performance int             `json:"performance"`
	Version     string          `json:"version"`
}

// ChallengeResult is the terminal outcome of a PoA challenge. The empty
// string means the challenge is still pending.
type ChallengeResult string

const (
	ChallengePending ChallengeResult = ""
	ChallengeSuccess ChallengeResult = "success"
	ChallengeFail    ChallengeResult = "fail"
	ChallengeTimeout ChallengeResult = "timeout"
)

// ChallengeData is the opaque payload sent to the storage node.
type ChallengeData struct {
	Salt   string `json:"salt"`
	CID    string `json:"cid"`
	Method string `json:"method"`
}

// PoAChallenge is one issued challenge. Rows are inserted before the
// outbound request and resolved exactly once; they are never deleted.
type PoAChallenge struct {
	ID            string          `json:"id"`
	ValidatorID   string          `json:"validatorId"`
	NodeID        string          `json:"nodeId"`
	FileID        string          `json:"fileId"`
	Salt          string          `json:"salt"`
	ChallengeData ChallengeData   `json:"challengeData"`
	Response      string          `json:"response,omitempty"`
	Result        ChallengeResult `json:"result,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	LatencyMs     int64           `json:"latencyMs,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	ResolvedAt    time.Time       `json:"resolvedAt,omitempty"`
}

// StorageAssignment records one (file, node) pairing with monotone
// proof counters.
type StorageAssignment struct {
	FileID      string    `json:"fileId"`
	NodeID      string    `json:"nodeId"`
	ProofCount  int       `json:"proofCount"`
	FailCount   int       `json:"failCount"`
	LastProofAt time.Time `json:"lastProofAt"`
}

// JobStatus is an encoding job's lifecycle state.
type JobStatus string

const (
	JobQueued      JobStatus = "queued"
	JobAssigned    JobStatus = "assigned"
	JobDownloading JobStatus = "downloading"
	JobEncoding    JobStatus = "encoding"
	JobUploading   JobStatus = "uploading"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
	JobCancelled   JobStatus = "cancelled"
)

// ActiveJobStatuses are the states during which a job holds a lease.
var ActiveJobStatuses = []JobStatus{JobAssigned, JobDownloading, JobEncoding, JobUploading}

// IsActive reports whether the status requires a live lease.
func (s JobStatus) IsActive() bool {
	switch s {
	case JobAssigned, JobDownloading, JobEncoding, JobUploading:
		return true
	}
	return false
}

// IsTerminal reports whether the status can no longer change. A failed
// job is terminal; retries re-enter the queue before the status lands
// here.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// EncoderType identifies the class of worker an encoding job ran on.
type EncoderType string

const (
	EncoderDesktop   EncoderType = "desktop"
	EncoderBrowser   EncoderType = "browser"
	EncoderCommunity EncoderType = "community"
)

// EncodingJob is one transcoding work item, identified to humans by
// (owner, permlink).
type EncodingJob struct {
	ID                string      `json:"id"`
	Owner             string      `json:"owner"`
	Permlink          string      `json:"permlink"`
	InputCID          string      `json:"inputCid"`
	OutputCID         string      `json:"outputCid,omitempty"`
	Status            JobStatus   `json:"status"`
	Progress          int         `json:"progress"`
	Stage             string      `json:"stage,omitempty"`
	IsShort           bool        `json:"isShort"`
	EncoderType       EncoderType `json:"encoderType,omitempty"`
	AssignedEncoderID string      `json:"assignedEncoderId,omitempty"`
	LeaseExpiresAt    time.Time   `json:"leaseExpiresAt,omitempty"`
	NotBefore         time.Time   `json:"notBefore,omitempty"`
	Attempts          int         `json:"attempts"`
	MaxAttempts       int         `json:"maxAttempts"`
	ErrorMessage      string      `json:"errorMessage,omitempty"`
	QualitiesEncoded  []string    `json:"qualitiesEncoded,omitempty"`
	ProcessingTimeSec int         `json:"processingTimeSec,omitempty"`
	OutputSizeBytes   int64       `json:"outputSizeBytes,omitempty"`
	WebhookDelivered  bool        `json:"webhookDelivered,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
	CompletedAt       time.Time   `json:"completedAt,omitempty"`
}

// EncoderAvailability describes whether an encoder can take work.
type EncoderAvailability string

const (
	EncoderAvailable EncoderAvailability = "available"
	EncoderBusy      EncoderAvailability = "busy"
	EncoderOffline   EncoderAvailability = "offline"
)

// EncoderNode is a registered transcoding worker.
type EncoderNode struct {
	ID              string              `json:"id"`
	PeerID          string              `json:"peerId"`
	OperatorName    string              `json:"operatorName"`
	Endpoint        string              `json:"endpoint,omitempty"`
	EncoderType     EncoderType         `json:"encoderType"`
	Availability    EncoderAvailability `json:"availability"`
	JobsInProgress  int                 `json:"jobsInProgress"`
	JobsCompleted   int                 `json:"jobsCompleted"`
	ReputationScore int                 `json:"reputationScore"`
	SuccessRate     float64             `json:"successRate"`
	LastHeartbeat   time.Time           `json:"lastHeartbeat"`
}

// ReportStatus is a payout report's approval state.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportApproved ReportStatus = "approved"
	ReportExecuted ReportStatus = "executed"
)

// PayoutReport is an immutable settlement document over a time window.
type PayoutReport struct {
	ID             string       `json:"id"`
	GeneratedBy    string       `json:"generatedBy"`
	PeriodStart    time.Time    `json:"periodStart"`
	PeriodEnd      time.Time    `json:"periodEnd"`
	TotalHbd       string       `json:"totalHbd"`
	RecipientCount int          `json:"recipientCount"`
	Status         ReportStatus `json:"status"`
	ExecutedTxHash string       `json:"executedTxHash,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	ExecutedAt     time.Time    `json:"executedAt,omitempty"`
}

// PayoutLineItem is one recipient's share of a report. Line items are
// created atomically with their report.
type PayoutLineItem struct {
	ReportID    string  `json:"reportId"`
	Recipient   string  `json:"recipient"`
	HbdAmount   string  `json:"hbdAmount"`
	ProofCount  int     `json:"proofCount"`
	SuccessRate float64 `json:"successRate"`
	Paid        bool    `json:"paid"`
	TxHash      string  `json:"txHash,omitempty"`
}

// SettlementEventType distinguishes reward transfers from slashes.
type SettlementEventType string

const (
	EventTransfer SettlementEventType = "transfer"
	EventSlash    SettlementEventType = "slash"
)

// SettlementEvent is one append-only ledger entry emitted per resolved
// challenge. BlockNum is monotone; Seq breaks ties within a block.
type SettlementEvent struct {
	BlockNum    int64               `json:"blockNum"`
	Seq         uint64              `json:"seq"`
	Type        SettlementEventType `json:"type"`
	Recipient   string              `json:"recipient"`
	Amount      string              `json:"amount,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	ChallengeID string              `json:"challengeId"`
	CreatedAt   time.Time           `json:"createdAt"`
}
