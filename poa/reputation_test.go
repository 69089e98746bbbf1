package poa

import (
	"testing"
	"time"

	"github.com/spknetwork/storage-coordinator/testing/assert"
	"github.com/spknetwork/storage-coordinator/types"
)

func TestApplyChallengeResult_SuccessBumpsAndClears(t *testing.T) {
	node := &types.StorageNode{
		ID:               "n1",
		Reputation:       80,
		ConsecutiveFails: 0,
		Status:           types.NodeActive,
	}
	change := ApplyChallengeResult(node, true, time.Now())

	assert.Equal(t, 81, node.Reputation)
	assert.Equal(t, 0, node.ConsecutiveFails)
	assert.Equal(t, types.NodeActive, node.Status)
	assert.Equal(t, 1, node.TotalProofs)
	assert.Equal(t, false, change.Banned)
}

func TestApplyChallengeResult_ReputationCapped(t *testing.T) {
	node := &types.StorageNode{Reputation: 100, Status: types.NodeActive}
	ApplyChallengeResult(node, true, time.Now())
	assert.Equal(t, 100, node.Reputation)
}

func TestApplyChallengeResult_SuccessResetsStreak(t *testing.T) {
	node := &types.StorageNode{Reputation: 50, ConsecutiveFails: 2, Status: types.NodeProbation}
	ApplyChallengeResult(node, true, time.Now())
	assert.Equal(t, 0, node.ConsecutiveFails)
	assert.Equal(t, types.NodeActive, node.Status)
}

func TestApplyChallengeResult_EscalatingPenalties(t *testing.T) {
	node := &types.StorageNode{Reputation: 100, Status: types.NodeActive}

	// floor(5*1.5^1)=7, floor(5*1.5^2)=11, then the streak ban fires.
	change := ApplyChallengeResult(node, false, time.Now())
	assert.Equal(t, 7, change.Penalty)
	assert.Equal(t, 93, node.Reputation)
	assert.Equal(t, 1, node.ConsecutiveFails)

	change = ApplyChallengeResult(node, false, time.Now())
	assert.Equal(t, 11, change.Penalty)
	assert.Equal(t, 82, node.Reputation)
	assert.Equal(t, 2, node.ConsecutiveFails)
}

func TestApplyChallengeResult_PenaltyCapped(t *testing.T) {
	node := &types.StorageNode{Reputation: 100, ConsecutiveFails: 5, Status: types.NodeActive}
	change := ApplyChallengeResult(node, false, time.Now())
	assert.Equal(t, 20, change.Penalty)
}

func TestApplyChallengeResult_InstantBanOnThirdFailure(t *testing.T) {
	node := &types.StorageNode{
		ID:               "n1",
		Reputation:       82,
		ConsecutiveFails: 2,
		Status:           types.NodeActive,
	}
	change := ApplyChallengeResult(node, false, time.Now())

	assert.Equal(t, 3, node.ConsecutiveFails)
	assert.Equal(t, 0, node.Reputation)
	assert.Equal(t, types.NodeBanned, node.Status)
	assert.Equal(t, true, change.Banned)
	assert.Equal(t, true, change.NewlyBanned)
}

func TestApplyChallengeResult_LowReputationBans(t *testing.T) {
	node := &types.StorageNode{Reputation: 12, Status: types.NodeProbation}
	change := ApplyChallengeResult(node, false, time.Now())
	// 12 - 7 = 5, under the ban floor; banning zeroes the score.
	assert.Equal(t, types.NodeBanned, node.Status)
	assert.Equal(t, 0, node.Reputation)
	assert.Equal(t, 1, node.ConsecutiveFails)
	assert.Equal(t, true, change.NewlyBanned)
	assert.Equal(t, false, change.StreakBan)
}

func TestApplyChallengeResult_ProbationBand(t *testing.T) {
	node := &types.StorageNode{Reputation: 35, Status: types.NodeActive}
	ApplyChallengeResult(node, false, time.Now())
	// 35 - 7 = 28, probation territory.
	assert.Equal(t, 28, node.Reputation)
	assert.Equal(t, types.NodeProbation, node.Status)
}

func TestApplyChallengeResult_BanInvariant(t *testing.T) {
	// status=banned implies reputation=0, whichever branch banned the
	// node: the streak at 40 and the reputation floor at 16.
	for _, start := range []int{40, 16} {
		node := &types.StorageNode{Reputation: start, Status: types.NodeActive}
		for i := 0; i < 10; i++ {
			ApplyChallengeResult(node, false, time.Now())
			if node.Status == types.NodeBanned && node.Reputation != 0 {
				t.Fatalf("banned node with reputation=%d and streak=%d", node.Reputation, node.ConsecutiveFails)
			}
		}
		assert.Equal(t, types.NodeBanned, node.Status)
		assert.Equal(t, 0, node.Reputation)
	}
}
