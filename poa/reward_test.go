package poa

import (
	"testing"

	"github.com/spknetwork/storage-coordinator/hbd"
	"github.com/spknetwork/storage-coordinator/testing/assert"
)

func TestRarityMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, RarityMultiplier(1))
	assert.Equal(t, 0.5, RarityMultiplier(2))
	assert.Equal(t, 0.25, RarityMultiplier(4))
	// Unreplicated content counts as one copy.
	assert.Equal(t, 1.0, RarityMultiplier(0))
	assert.Equal(t, 1.0, RarityMultiplier(-3))
}

func TestReward_QuarterAtFourReplicas(t *testing.T) {
	reward := Reward(hbd.BaseReward, 4)
	assert.Equal(t, "0.0003", hbd.Format4(reward))
}

func TestReward_FullAtSingleReplica(t *testing.T) {
	reward := Reward(hbd.BaseReward, 1)
	assert.Equal(t, "0.0010", hbd.Format4(reward))
	assert.Equal(t, "0.001 HBD", hbd.Amount4(reward))
}
