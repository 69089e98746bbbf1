package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spknetwork/storage-coordinator/hbd"
	"github.com/spknetwork/storage-coordinator/ipfs"
)

const challengeStepTimeout = 2 * time.Second

// ChallengeRequest is a validator's proof-of-access probe.
type ChallengeRequest struct {
	CID         string `json:"cid"`
	BlockIndex  int    `json:"blockIndex"`
	Salt        string `json:"salt"`
	ValidatorID string `json:"validatorId"`
}

// ChallengeResponse is the computed proof returned to the validator.
type ChallengeResponse struct {
	Success      bool   `json:"success"`
	Proof        string `json:"proof,omitempty"`
	BlockCID     string `json:"blockCid,omitempty"`
	ResponseTime int64  `json:"responseTime"`
	Error        string `json:"error,omitempty"`
}

// Responder answers proof-of-access challenges against the local
// daemon and tracks outcomes in the earnings file.
type Responder struct {
	daemon   *ipfs.Client
	earnings *EarningsStore
	now      func() time.Time
}

// NewResponder wires the responder to the local daemon and earnings
// store.
func NewResponder(daemon *ipfs.Client, earnings *EarningsStore) *Responder {
	return &Responder{daemon: daemon, earnings: earnings, now: time.Now}
}

// Respond fetches the challenged block and proves possession by hashing
// the salt with the block bytes. Each daemon call gets its own short
// deadline; any failure records a failed challenge.
func (r *Responder) Respond(ctx context.Context, req *ChallengeRequest) (*ChallengeResponse, error) {
	started := r.now()

	refsCtx, cancelRefs := context.WithTimeout(ctx, challengeStepTimeout)
	defer cancelRefs()
	refs, err := r.daemon.Refs(refsCtx, req.CID)
	if err != nil {
		return r.fail(started, errors.Wrap(err, "could not list block refs"))
	}

	blockCid := req.CID
	if len(refs) > 0 {
		if req.BlockIndex < 0 || req.BlockIndex >= len(refs) {
			return r.fail(started, errors.Errorf("block index %d out of range, object has %d blocks", req.BlockIndex, len(refs)))
		}
		blockCid = refs[req.BlockIndex]
	}

	blockCtx, cancelBlock := context.WithTimeout(ctx, challengeStepTimeout)
	defer cancelBlock()
	block, err := r.daemon.Block(blockCtx, blockCid)
	if err != nil {
		return r.fail(started, errors.Wrapf(err, "could not fetch block %s", blockCid))
	}

	digest := sha256.Sum256(append([]byte(req.Salt), block...))
	elapsed := r.now().Sub(started).Milliseconds()
	if err := r.earnings.RecordSuccess(hbd.BaseReward, r.now()); err != nil {
		log.WithError(err).Warn("Could not record earnings")
	}
	log.WithFields(logrus.Fields{
		"validator": req.ValidatorID,
		"cid":       req.CID,
		"elapsedMs": elapsed,
	}).Info("Answered challenge")
	return &ChallengeResponse{
		Success:      true,
		Proof:        hex.EncodeToString(digest[:]),
		BlockCID:     blockCid,
		ResponseTime: elapsed,
	}, nil
}

func (r *Responder) fail(started time.Time, err error) (*ChallengeResponse, error) {
	if recErr := r.earnings.RecordFailure(r.now()); recErr != nil {
		log.WithError(recErr).Warn("Could not record failed challenge")
	}
	return &ChallengeResponse{
		Success:      false,
		ResponseTime: r.now().Sub(started).Milliseconds(),
		Error:        err.Error(),
	}, err
}
