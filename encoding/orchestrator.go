package encoding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spknetwork/storage-coordinator/config/params"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/types"
)

var log = logrus.WithField("prefix", "encoding")

// ErrLeaseInvalid rejects agent calls whose lease signature does not
// match the job's current lease, or whose job holds no lease at all.
var ErrLeaseInvalid = errors.New("lease invalid")

// ReasonLeaseExpired marks jobs recycled by the reaper.
const ReasonLeaseExpired = "LEASE_EXPIRED"

// Orchestrator is the agent-facing claim/progress/complete/fail surface.
// All authorization flows through the lease signature; nothing relies on
// in-process state about who claimed a job.
type Orchestrator struct {
	repo     iface.Repository
	secret   []byte
	webhooks *WebhookNotifier // nil disables notifications
	now      func() time.Time
}

// NewOrchestrator builds an orchestrator around the repository and the
// shared HMAC secret.
func NewOrchestrator(repo iface.Repository, secret []byte, webhooks *WebhookNotifier) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		secret:   secret,
		webhooks: webhooks,
		now:      time.Now,
	}
}

// Enqueue creates a queued job for (owner, permlink). Duplicates are a
// conflict.
func (o *Orchestrator) Enqueue(ctx context.Context, owner, permlink, inputCid string, isShort bool) (*types.EncodingJob, error) {
	job := &types.EncodingJob{
		ID:          uuid.New().String(),
		Owner:       owner,
		Permlink:    permlink,
		InputCID:    inputCid,
		Status:      types.JobQueued,
		IsShort:     isShort,
		MaxAttempts: params.CoordinatorConfig().MaxAttempts,
		CreatedAt:   o.now().UTC(),
	}
	if err := o.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"job":   job.ID,
		"owner": owner,
		"short": isShort,
	}).Info("Enqueued encoding job")
	return job, nil
}

// Claim leases the highest-priority queued job to the calling agent and
// returns it along with the lease signature. Returns (nil, "") when the
// queue has nothing claimable.
func (o *Orchestrator) Claim(ctx context.Context, encoderID string, encoderType types.EncoderType, operator string) (*types.EncodingJob, string, error) {
	now := o.now().UTC()
	leaseExpiry := now.Add(params.CoordinatorConfig().LeaseDuration)
	job, err := o.repo.ClaimNextQueuedJob(ctx, encoderID, encoderType, leaseExpiry, now)
	if err != nil {
		return nil, "", errors.Wrap(err, "could not claim job")
	}
	if job == nil {
		return nil, "", nil
	}
	jobsClaimed.Inc()
	if err := o.repo.UpdateEncoder(ctx, encoderID, func(e *types.EncoderNode) error {
		if operator != "" {
			e.OperatorName = operator
		}
		e.EncoderType = encoderType
		e.Availability = types.EncoderBusy
		e.JobsInProgress++
		e.LastHeartbeat = now
		return nil
	}); err != nil {
		log.WithError(err).WithField("encoder", encoderID).Warn("Could not update encoder registry")
	}
	sig := SignLease(o.secret, job.ID, encoderID, job.LeaseExpiresAt)
	log.WithFields(logrus.Fields{
		"job":     job.ID,
		"encoder": encoderID,
		"attempt": job.Attempts,
	}).Info("Leased encoding job")
	return job, sig, nil
}

// authorize loads the job and checks the presented signature against its
// current lease.
func (o *Orchestrator) authorize(ctx context.Context, jobID, signature string) (*types.EncodingJob, error) {
	job, err := o.repo.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.IsActive() || job.AssignedEncoderID == "" {
		return nil, errors.Wrapf(ErrLeaseInvalid, "job %s holds no lease", jobID)
	}
	if !VerifyLease(o.secret, job.ID, job.AssignedEncoderID, job.LeaseExpiresAt, signature) {
		return nil, errors.Wrapf(ErrLeaseInvalid, "job %s", jobID)
	}
	return job, nil
}

// Progress records a stage/percentage update from the leased agent.
func (o *Orchestrator) Progress(ctx context.Context, jobID, stage string, progress int, signature string) error {
	if _, err := o.authorize(ctx, jobID, signature); err != nil {
		return err
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return o.repo.UpdateJob(ctx, jobID, func(j *types.EncodingJob) error {
		j.Stage = stage
		j.Progress = progress
		switch stage {
		case "downloading":
			j.Status = types.JobDownloading
		case "encoding":
			j.Status = types.JobEncoding
		case "uploading":
			j.Status = types.JobUploading
		}
		return nil
	})
}

// RenewLease extends the lease by one full lease duration and returns
// the job with its new signature. Agents renew at roughly half of lease
// age.
func (o *Orchestrator) RenewLease(ctx context.Context, jobID, signature string) (*types.EncodingJob, string, error) {
	job, err := o.authorize(ctx, jobID, signature)
	if err != nil {
		return nil, "", err
	}
	newExpiry := o.now().UTC().Add(params.CoordinatorConfig().LeaseDuration)
	if err := o.repo.UpdateJob(ctx, jobID, func(j *types.EncodingJob) error {
		// The reaper may recycle the job between authorize and this
		// write; a queued job must not come back holding a lease.
		if !j.Status.IsActive() {
			return errors.Wrapf(iface.ErrConflict, "job %s is not active", jobID)
		}
		j.LeaseExpiresAt = newExpiry
		return nil
	}); err != nil {
		return nil, "", err
	}
	job.LeaseExpiresAt = newExpiry
	return job, SignLease(o.secret, job.ID, job.AssignedEncoderID, newExpiry), nil
}

// Complete transitions the job to completed with its output and fires
// the webhook.
func (o *Orchestrator) Complete(ctx context.Context, jobID, outputCid string, qualities []string, processingTimeSec int, outputSizeBytes int64, signature string) error {
	if _, err := o.authorize(ctx, jobID, signature); err != nil {
		return err
	}
	var done *types.EncodingJob
	err := o.repo.UpdateJob(ctx, jobID, func(j *types.EncodingJob) error {
		j.Status = types.JobCompleted
		j.OutputCID = outputCid
		j.Progress = 100
		j.Stage = "done"
		j.QualitiesEncoded = qualities
		j.ProcessingTimeSec = processingTimeSec
		j.OutputSizeBytes = outputSizeBytes
		j.CompletedAt = o.now().UTC()
		j.LeaseExpiresAt = time.Time{}
		done = j
		return nil
	})
	if err != nil {
		return err
	}
	jobsCompleted.Inc()
	if err := o.repo.UpdateEncoder(ctx, done.AssignedEncoderID, func(e *types.EncoderNode) error {
		if e.JobsInProgress > 0 {
			e.JobsInProgress--
		}
		e.JobsCompleted++
		if e.JobsInProgress == 0 {
			e.Availability = types.EncoderAvailable
		}
		e.LastHeartbeat = o.now().UTC()
		return nil
	}); err != nil {
		log.WithError(err).Warn("Could not update encoder registry")
	}
	log.WithFields(logrus.Fields{
		"job":    jobID,
		"output": outputCid,
	}).Info("Encoding job completed")
	o.notify(done)
	return nil
}

// Fail records an agent-reported failure. Retryable failures with
// attempts remaining return the job to the queue behind an exponential
// backoff; everything else is terminal.
func (o *Orchestrator) Fail(ctx context.Context, jobID, errMsg string, retryable bool, signature string) error {
	if _, err := o.authorize(ctx, jobID, signature); err != nil {
		return err
	}
	return o.failJob(ctx, jobID, errMsg, retryable)
}

// ExpireLease is the reaper entry point: an expired lease is a retryable
// failure attributed to the lease, not the agent.
func (o *Orchestrator) ExpireLease(ctx context.Context, jobID string) error {
	leasesExpired.Inc()
	return o.failJob(ctx, jobID, ReasonLeaseExpired, true)
}

func (o *Orchestrator) failJob(ctx context.Context, jobID, errMsg string, retryable bool) error {
	var terminal *types.EncodingJob
	err := o.repo.UpdateJob(ctx, jobID, func(j *types.EncodingJob) error {
		if !j.Status.IsActive() {
			return errors.Wrapf(iface.ErrConflict, "job %s is not active", jobID)
		}
		if retryable && j.Attempts < j.MaxAttempts {
			j.Status = types.JobQueued
			j.AssignedEncoderID = ""
			j.LeaseExpiresAt = time.Time{}
			j.ErrorMessage = errMsg
			j.Stage = ""
			j.Progress = 0
			j.NotBefore = o.now().UTC().Add(Backoff(j.Attempts))
			return nil
		}
		j.Status = types.JobFailed
		j.ErrorMessage = errMsg
		j.CompletedAt = o.now().UTC()
		j.LeaseExpiresAt = time.Time{}
		terminal = j
		return nil
	})
	if err != nil {
		return err
	}
	if terminal != nil {
		jobsFailed.Inc()
		log.WithFields(logrus.Fields{
			"job":   jobID,
			"error": errMsg,
		}).Warn("Encoding job failed terminally")
		o.notify(terminal)
	} else {
		jobsRequeued.Inc()
		log.WithFields(logrus.Fields{
			"job":   jobID,
			"error": errMsg,
		}).Info("Encoding job returned to queue")
	}
	return nil
}

// Stats returns the queue counters.
func (o *Orchestrator) Stats(ctx context.Context) (*iface.QueueStats, error) {
	return o.repo.QueueStats(ctx)
}

func (o *Orchestrator) notify(job *types.EncodingJob) {
	if o.webhooks == nil || job == nil {
		return
	}
	o.webhooks.Notify(job)
}

// Backoff computes the retry delay before a requeued job becomes
// claimable again: min(2^attempts * base, max).
func Backoff(attempts int) time.Duration {
	cfg := params.CoordinatorConfig()
	backoff := cfg.BaseBackoff
	for i := 0; i < attempts; i++ {
		backoff *= 2
		if backoff >= cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	return backoff
}
