package poa

// RarityMultiplier scales rewards toward under-replicated content:
// 1 / max(1, replicationCount). A zero count is treated as one copy.
func RarityMultiplier(replicationCount int) float64 {
	if replicationCount < 1 {
		replicationCount = 1
	}
	return 1 / float64(replicationCount)
}

// Reward prices one successful proof. The replication count used is the
// one observed before this proof was recorded.
func Reward(baseReward float64, replicationCount int) float64 {
	return baseReward * RarityMultiplier(replicationCount)
}
