// Package params holds the coordinator's immutable configuration
// snapshot. The active config is read through CoordinatorConfig and
// swapped wholesale; nothing mutates it in place after startup.
package params

import "time"

// CoordinatorConfig contains every tunable of the coordinator engine and
// its collaborators.
type Config struct {
	// Proof-of-access engine.
	ChallengePeriod   time.Duration // interval between challenge attempts
	ChallengeTimeout  time.Duration // per-validation deadline
	ShutdownGrace     time.Duration // extra drain time on top of ChallengeTimeout
	SimulationMode    bool          // synthesize responses instead of using the validator channel
	BroadcastResults  bool          // emit settlement events to external observers
	BaseReward        float64       // HBD per successful proof before rarity scaling
	RefsCacheSize     int           // block-reference LRU capacity
	DegradedThreshold int           // consecutive daemon-offline ticks before status degrades

	// Encoding orchestrator.
	LeaseDuration     time.Duration
	MaxAttempts       int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	ReaperInterval    time.Duration
	HeartbeatInterval time.Duration // encoders age to offline after 3 missed beats
	WebhookTimeout    time.Duration
	WebhookURL        string

	// Daemon client deadlines.
	RefsTimeout  time.Duration
	BlockTimeout time.Duration

	// Sessions and identity.
	SessionTTL       time.Duration
	ChallengeMaxAge  time.Duration // login challenge freshness window
	LoginTimeout     time.Duration // identity verification deadline
	TopWitnessRank   int
	DemoMode         bool
	AgentProbeWindow time.Duration // desktop-agent status probe deadline
}

var coordinatorConfig = mainnetCoordinatorConfig()

func mainnetCoordinatorConfig() *Config {
	return &Config{
		ChallengePeriod:   5 * time.Second,
		ChallengeTimeout:  2 * time.Second,
		ShutdownGrace:     500 * time.Millisecond,
		SimulationMode:    false,
		BroadcastResults:  true,
		BaseReward:        0.001,
		RefsCacheSize:     10000,
		DegradedThreshold: 5,

		LeaseDuration:     120 * time.Second,
		MaxAttempts:       3,
		BaseBackoff:       5 * time.Second,
		MaxBackoff:        5 * time.Minute,
		ReaperInterval:    10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		WebhookTimeout:    10 * time.Second,

		RefsTimeout:  2 * time.Second,
		BlockTimeout: 2 * time.Second,

		SessionTTL:       24 * time.Hour,
		ChallengeMaxAge:  5 * time.Minute,
		LoginTimeout:     10 * time.Second,
		TopWitnessRank:   150,
		DemoMode:         false,
		AgentProbeWindow: 2 * time.Second,
	}
}

// Copy returns a copy of the configuration.
func (c *Config) Copy() *Config {
	config := *c
	return &config
}

// CoordinatorConfig returns the active configuration snapshot.
func CoordinatorConfig() *Config {
	return coordinatorConfig
}

// OverrideCoordinatorConfig replaces the active snapshot. Meant for
// startup wiring and tests only.
func OverrideCoordinatorConfig(c *Config) {
	coordinatorConfig = c
}

// UseTestConfig swaps in a configuration with short timers suitable for
// unit tests and returns a func restoring the previous snapshot.
func UseTestConfig() func() {
	prev := coordinatorConfig
	c := mainnetCoordinatorConfig()
	c.ChallengePeriod = 50 * time.Millisecond
	c.ChallengeTimeout = 200 * time.Millisecond
	c.SimulationMode = true
	c.LeaseDuration = 500 * time.Millisecond
	c.BaseBackoff = 10 * time.Millisecond
	c.ReaperInterval = 50 * time.Millisecond
	c.WebhookTimeout = time.Second
	coordinatorConfig = c
	return func() {
		coordinatorConfig = prev
	}
}
