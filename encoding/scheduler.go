package encoding

import (
	"context"
	"time"

	"github.com/spknetwork/storage-coordinator/async"
	"github.com/spknetwork/storage-coordinator/config/params"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/types"
)

// Scheduler owns the background lease reaper. It is the backpressure
// valve: when agents stall, leases lapse and jobs flow back into the
// queue instead of piling up in memory.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	repo   iface.Repository
	orch   *Orchestrator
	now    func() time.Time
}

// NewScheduler builds the scheduler service.
func NewScheduler(ctx context.Context, repo iface.Repository, orch *Orchestrator) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		repo:   repo,
		orch:   orch,
		now:    time.Now,
	}
}

// Start launches the reaper loop.
func (s *Scheduler) Start() {
	log.WithField("interval", params.CoordinatorConfig().ReaperInterval).Info("Starting lease reaper")
	async.RunEvery(s.ctx, params.CoordinatorConfig().ReaperInterval, func() {
		s.ReapExpiredLeases()
		s.AgeEncoderHeartbeats()
	})
}

// Stop cancels the reaper loop.
func (s *Scheduler) Stop() error {
	s.cancel()
	return nil
}

// Status always reports healthy; the reaper has no external dependency
// beyond the repository.
func (s *Scheduler) Status() error {
	return nil
}

// ReapExpiredLeases recycles every job whose lease has lapsed. Exported
// so tests can drive a sweep directly.
func (s *Scheduler) ReapExpiredLeases() {
	expired, err := s.repo.JobsWithExpiredLeases(s.ctx, s.now().UTC())
	if err != nil {
		log.WithError(err).Error("Could not scan for expired leases")
		return
	}
	for _, job := range expired {
		if err := s.orch.ExpireLease(s.ctx, job.ID); err != nil {
			log.WithError(err).WithField("job", job.ID).Error("Could not recycle expired lease")
		}
	}
}

// AgeEncoderHeartbeats marks encoders offline after three missed
// heartbeat intervals. Exported so tests can drive a sweep directly.
func (s *Scheduler) AgeEncoderHeartbeats() {
	cutoff := s.now().UTC().Add(-3 * params.CoordinatorConfig().HeartbeatInterval)
	encoders, err := s.repo.Encoders(s.ctx)
	if err != nil {
		log.WithError(err).Error("Could not scan encoder registry")
		return
	}
	for _, e := range encoders {
		if e.Availability == types.EncoderOffline || !e.LastHeartbeat.Before(cutoff) {
			continue
		}
		err := s.repo.UpdateEncoder(s.ctx, e.ID, func(enc *types.EncoderNode) error {
			if !enc.LastHeartbeat.Before(cutoff) {
				return nil
			}
			enc.Availability = types.EncoderOffline
			return nil
		})
		if err != nil {
			log.WithError(err).WithField("encoder", e.ID).Error("Could not age encoder heartbeat")
			continue
		}
		log.WithField("encoder", e.ID).Info("Encoder marked offline, heartbeats stopped")
	}
}
