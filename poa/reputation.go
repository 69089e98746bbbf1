package poa

import (
	"math"
	"time"

	"github.com/spknetwork/storage-coordinator/types"
)

const (
	maxReputation    = 100
	banFailStreak    = 3
	banReputation    = 10
	probationCutoff  = 30
	maxPenalty       = 20
	basePenalty      = 5.0
	penaltyGrowth    = 1.5
)

// ReputationChange describes what one challenge result did to a node.
type ReputationChange struct {
	Penalty     int
	Banned      bool
	NewlyBanned bool
	StreakBan   bool
}

// ApplyChallengeResult mutates the node for one resolved challenge.
// Success bumps reputation by one and clears the failure streak. Failure
// grows the streak first, then subtracts a penalty that escalates with
// it, capped at 20. Status is re-derived afterwards: three consecutive
// failures or reputation under 10 ban the node and zero its reputation;
// under 30 puts the node on probation. Callers must
// run this inside the store's per-node write transaction so updates
// linearize.
func ApplyChallengeResult(n *types.StorageNode, success bool, at time.Time) ReputationChange {
	change := ReputationChange{}
	wasBanned := n.Status == types.NodeBanned

	n.TotalProofs++
	if success {
		if n.Reputation < maxReputation {
			n.Reputation++
		}
		n.ConsecutiveFails = 0
		n.LastSeen = at
	} else {
		n.FailedProofs++
		n.ConsecutiveFails++
		penalty := int(math.Floor(basePenalty * math.Pow(penaltyGrowth, float64(n.ConsecutiveFails))))
		if penalty > maxPenalty {
			penalty = maxPenalty
		}
		change.Penalty = penalty
		n.Reputation -= penalty
		if n.Reputation < 0 {
			n.Reputation = 0
		}
	}

	switch {
	case n.ConsecutiveFails >= banFailStreak:
		n.Status = types.NodeBanned
		n.Reputation = 0
		change.StreakBan = true
	case n.Reputation < banReputation:
		n.Status = types.NodeBanned
		n.Reputation = 0
	case n.Reputation < probationCutoff:
		n.Status = types.NodeProbation
	default:
		n.Status = types.NodeActive
	}

	change.Banned = n.Status == types.NodeBanned
	change.NewlyBanned = change.Banned && !wasBanned
	return change
}
