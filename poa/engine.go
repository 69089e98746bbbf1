package poa

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spknetwork/storage-coordinator/async"
	"github.com/spknetwork/storage-coordinator/config/params"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/hbd"
	"github.com/spknetwork/storage-coordinator/types"
)

var log = logrus.WithField("prefix", "poa")

// Failure reasons recorded on challenge rows and slash events.
const (
	ReasonTimeout  = "TIMEOUT"
	ReasonMismatch = "PROOF_MISMATCH"
	// BanReason annotates the slash event emitted when a node crosses
	// the consecutive-failure threshold.
	BanReason = "BANNED: 3 consecutive PoA failures"
)

// DaemonClient is the slice of the storage daemon API the engine needs.
type DaemonClient interface {
	BlockFetcher
	IsOnline(ctx context.Context) bool
}

// Config wires the engine to its collaborators.
type Config struct {
	Validator         string // operator username issuing challenges
	Repo              iface.Repository
	Daemon            DaemonClient
	Channel           Channel                          // nil in simulation mode
	LastBlockHash     func(ctx context.Context) string // chain entropy, may be nil
	SimulatedFailRate float64                          // [0,1], simulation only
	Seed              int64                            // deterministic rng seed, 0 means time-seeded
}

// Service runs the periodic challenge loop. One challenge is attempted
// per tick; a verification failure never stops the loop.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config

	refs     *refsCache
	inFlight sync.WaitGroup

	rngMu sync.Mutex
	rng   *rand.Rand

	offlineTicks int64
}

// NewService builds the engine but does not start the loop.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.Repo == nil || cfg.Daemon == nil {
		return nil, errors.New("poa engine requires a repository and a daemon client")
	}
	if !params.CoordinatorConfig().SimulationMode && cfg.Channel == nil {
		return nil, errors.New("live mode requires a validator channel")
	}
	cache, err := newRefsCache(params.CoordinatorConfig().RefsCacheSize)
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		refs:   cache,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// Start launches the challenge tick loop.
func (s *Service) Start() {
	log.WithFields(logrus.Fields{
		"period":     params.CoordinatorConfig().ChallengePeriod,
		"simulation": params.CoordinatorConfig().SimulationMode,
	}).Info("Starting PoA challenge engine")
	async.RunEvery(s.ctx, params.CoordinatorConfig().ChallengePeriod, s.Tick)
}

// Stop cancels the loop and drains in-flight verifications, waiting at
// most the challenge timeout plus the shutdown grace.
func (s *Service) Stop() error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	cfg := params.CoordinatorConfig()
	select {
	case <-done:
		return nil
	case <-time.After(cfg.ChallengeTimeout + cfg.ShutdownGrace):
		return errors.New("timed out draining in-flight verifications")
	}
}

// Status is unhealthy once the daemon has been unreachable for the
// configured number of consecutive ticks.
func (s *Service) Status() error {
	if atomic.LoadInt64(&s.offlineTicks) >= int64(params.CoordinatorConfig().DegradedThreshold) {
		return errors.New("storage daemon unreachable")
	}
	return nil
}

// DaemonOnline reports the most recent daemon reachability observation.
func (s *Service) DaemonOnline() bool {
	return atomic.LoadInt64(&s.offlineTicks) == 0
}

// Tick attempts a single challenge. Safe to call directly from tests.
func (s *Service) Tick() {
	s.inFlight.Add(1)
	defer s.inFlight.Done()
	ctx, cancel := context.WithTimeout(s.ctx, params.CoordinatorConfig().ChallengePeriod)
	defer cancel()
	if err := s.runChallenge(ctx); err != nil {
		log.WithError(err).Error("Challenge attempt failed")
	}
}

func (s *Service) runChallenge(ctx context.Context) error {
	file, node, ok, err := s.pickTarget(ctx)
	if err != nil {
		return err
	}
	if !ok {
		log.Trace("No eligible file/node pair, skipping tick")
		return nil
	}

	refs, err := s.blockRefs(ctx, file.CID)
	if err != nil {
		atomic.AddInt64(&s.offlineTicks, 1)
		daemonOnline.Set(0)
		return errors.Wrap(err, "daemon unreachable")
	}
	atomic.StoreInt64(&s.offlineTicks, 0)
	daemonOnline.Set(1)

	var lastBlockHash string
	if s.cfg.LastBlockHash != nil {
		lastBlockHash = s.cfg.LastBlockHash(ctx)
	}
	salt, err := GenerateSalt(lastBlockHash)
	if err != nil {
		return err
	}

	challenge := &types.PoAChallenge{
		ID:          uuid.New().String(),
		ValidatorID: s.cfg.Validator,
		NodeID:      node.ID,
		FileID:      file.ID,
		Salt:        salt,
		ChallengeData: types.ChallengeData{
			Salt:   salt,
			CID:    file.CID,
			Method: "sampled-blocks",
		},
		CreatedAt: time.Now().UTC(),
	}
	// The row goes in before anything leaves the machine, so history
	// always has the issued challenge.
	if err := s.cfg.Repo.CreateChallenge(ctx, challenge); err != nil {
		return errors.Wrap(err, "could not persist challenge")
	}
	challengesIssued.Inc()

	expected, err := ComputeProof(ctx, s.cfg.Daemon, salt, file.CID, refs)
	if err != nil {
		return s.settle(ctx, challenge, file, node, false, err.Error(), "", 0)
	}

	response, latencyMs, reason := s.collectResponse(ctx, challenge, expected)
	success := reason == "" && response == expected
	if !success && reason == "" {
		reason = ReasonMismatch
	}
	return s.settle(ctx, challenge, file, node, success, reason, response, latencyMs)
}

// collectResponse obtains the node's proof, either over the validator
// channel or synthesized in simulation mode.
func (s *Service) collectResponse(ctx context.Context, c *types.PoAChallenge, expected string) (proof string, latencyMs int64, failReason string) {
	if params.CoordinatorConfig().SimulationMode {
		s.rngMu.Lock()
		latencyMs = int64(30 + s.rng.Intn(270))
		dishonest := s.cfg.SimulatedFailRate > 0 && s.rng.Float64() < s.cfg.SimulatedFailRate
		s.rngMu.Unlock()
		if dishonest {
			return "", latencyMs, ReasonTimeout
		}
		return expected, latencyMs, ""
	}

	reqCtx, cancel := context.WithTimeout(ctx, params.CoordinatorConfig().ChallengeTimeout)
	defer cancel()
	start := time.Now()
	resp, err := s.cfg.Channel.RequestProof(reqCtx, &ProofRequest{
		Type:   "RequestProof",
		Hash:   c.Salt,
		CID:    c.ChallengeData.CID,
		Status: "Pending",
		User:   s.cfg.Validator,
	})
	latencyMs = time.Since(start).Milliseconds()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return "", latencyMs, ReasonTimeout
		}
		return "", latencyMs, err.Error()
	}
	if resp.ElapsedMs > 0 {
		latencyMs = resp.ElapsedMs
	}
	return resp.ProofHash, latencyMs, ""
}

// settle records the outcome: the single result write for the challenge
// row, the reputation update, assignment counters, reward credit, and
// the settlement event.
func (s *Service) settle(ctx context.Context, c *types.PoAChallenge, file *types.File, node *types.StorageNode, success bool, reason, response string, latencyMs int64) error {
	now := time.Now().UTC()
	result := types.ChallengeFail
	if success {
		result = types.ChallengeSuccess
	}
	if err := s.cfg.Repo.ResolveChallenge(ctx, c.ID, result, reason, response, latencyMs); err != nil {
		return errors.Wrap(err, "could not resolve challenge")
	}

	// Rarity uses the replication count observed before this proof.
	replicationBefore := file.ReplicationCount
	var reward float64
	var change ReputationChange
	err := s.cfg.Repo.UpdateNode(ctx, node.ID, func(n *types.StorageNode) error {
		change = ApplyChallengeResult(n, success, now)
		if success {
			reward = Reward(params.CoordinatorConfig().BaseReward, replicationBefore)
			n.TotalEarned = addEarnings(n.TotalEarned, reward)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "could not update node reputation")
	}
	if err := s.cfg.Repo.RecordAssignmentProof(ctx, file.ID, node.ID, success, now); err != nil {
		return errors.Wrap(err, "could not update assignment counters")
	}
	if success {
		challengesSucceeded.Inc()
		if err := s.cfg.Repo.UpdateFile(ctx, file.ID, func(f *types.File) error {
			f.Earned = addEarnings(f.Earned, reward)
			return nil
		}); err != nil {
			return errors.Wrap(err, "could not credit file earnings")
		}
	} else {
		challengesFailed.WithLabelValues(truncReason(reason)).Inc()
	}
	if change.NewlyBanned {
		nodesBanned.Inc()
		log.WithFields(logrus.Fields{
			"node":   node.PeerID,
			"streak": node.ConsecutiveFails + 1,
		}).Warn("Storage node banned")
	}

	if !params.CoordinatorConfig().BroadcastResults {
		return nil
	}
	event := &types.SettlementEvent{
		BlockNum:    now.Unix(),
		Recipient:   node.OperatorName,
		ChallengeID: c.ID,
		CreatedAt:   now,
	}
	if success {
		event.Type = types.EventTransfer
		event.Amount = hbd.Amount4(reward)
	} else {
		event.Type = types.EventSlash
		event.Reason = reason
		if change.NewlyBanned && change.StreakBan {
			event.Reason = BanReason
		}
	}
	if err := s.cfg.Repo.AppendEvent(ctx, event); err != nil {
		return errors.Wrap(err, "could not append settlement event")
	}
	return nil
}

// pickTarget draws a uniformly random eligible (file, node) pair.
func (s *Service) pickTarget(ctx context.Context) (*types.File, *types.StorageNode, bool, error) {
	files, err := s.cfg.Repo.Files(ctx, types.FilePinned)
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "could not list files")
	}
	eligible := files[:0]
	for _, f := range files {
		if f.PoAEnabled {
			eligible = append(eligible, f)
		}
	}
	nodes, err := s.cfg.Repo.Nodes(ctx, iface.NodeFilter{Status: types.NodeActive})
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "could not list nodes")
	}
	if len(eligible) == 0 || len(nodes) == 0 {
		return nil, nil, false, nil
	}
	s.rngMu.Lock()
	file := eligible[s.rng.Intn(len(eligible))]
	node := nodes[s.rng.Intn(len(nodes))]
	s.rngMu.Unlock()
	return file, node, true, nil
}

// blockRefs resolves a cid's block children through the LRU cache.
func (s *Service) blockRefs(ctx context.Context, cid string) ([]string, error) {
	if refs, ok := s.refs.get(cid); ok {
		return refs, nil
	}
	refs, err := s.cfg.Daemon.Refs(ctx, cid)
	if err != nil {
		return nil, err
	}
	s.refs.put(cid, refs)
	return refs, nil
}

func addEarnings(current string, delta float64) string {
	total, err := hbd.Parse(current)
	if err != nil {
		total = 0
	}
	return hbd.Format4(total + delta)
}

func truncReason(reason string) string {
	switch reason {
	case ReasonTimeout, ReasonMismatch:
		return reason
	}
	return "ERROR"
}
