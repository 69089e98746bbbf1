// Package flags defines the command line flags of the coordinator.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// DataDirFlag sets the directory the database lives in.
	DataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the coordinator database",
		Value: defaultDataDir(),
	}
	// HTTPHostFlag defines the operator API host.
	HTTPHostFlag = &cli.StringFlag{
		Name:  "http-host",
		Usage: "Host on which the operator API listens",
		Value: "127.0.0.1",
	}
	// HTTPPortFlag defines the operator API port.
	HTTPPortFlag = &cli.StringFlag{
		Name:  "http-port",
		Usage: "Port on which the operator API listens",
		Value: "4010",
	}
	// MonitoringPortFlag defines the metrics endpoint port.
	MonitoringPortFlag = &cli.Int64Flag{
		Name:  "monitoring-port",
		Usage: "Port used by prometheus for metrics scraping",
		Value: 8080,
	}
	// DisableMonitoringFlag disables the metrics endpoint.
	DisableMonitoringFlag = &cli.BoolFlag{
		Name:  "disable-monitoring",
		Usage: "Disable the prometheus metrics service",
	}
	// DaemonAPIURLFlag points at the storage daemon's HTTP API.
	DaemonAPIURLFlag = &cli.StringFlag{
		Name:    "daemon-api-url",
		Usage:   "HTTP API endpoint of the content-addressed storage daemon",
		Value:   "http://127.0.0.1:5001",
		EnvVars: []string{"STORAGE_DAEMON_API_URL"},
	}
	// ValidatorChannelURLFlag points at the node channel challenges are
	// delivered over.
	ValidatorChannelURLFlag = &cli.StringFlag{
		Name:    "validator-channel-url",
		Usage:   "Endpoint challenges are delivered to storage nodes over",
		EnvVars: []string{"VALIDATOR_CHANNEL_URL"},
	}
	// HMACSecretFlag holds the lease signing secret shared with agents.
	HMACSecretFlag = &cli.StringFlag{
		Name:    "hmac-secret",
		Usage:   "Secret used to sign encoding job leases",
		EnvVars: []string{"AGENT_HMAC_SECRET"},
	}
	// IdentityAPIURLFlag points at the identity chain API.
	IdentityAPIURLFlag = &cli.StringFlag{
		Name:  "identity-api-url",
		Usage: "JSON-RPC endpoint used for signature and witness checks",
		Value: "https://api.hive.blog",
	}
	// PostingKeyFlag is the validator operator's posting key.
	PostingKeyFlag = &cli.StringFlag{
		Name:    "posting-key",
		Usage:   "Posting key of the validator operator account",
		EnvVars: []string{"IDENTITY_POSTING_KEY"},
	}
	// ValidatorNameFlag is the operator account issuing challenges.
	ValidatorNameFlag = &cli.StringFlag{
		Name:  "validator-name",
		Usage: "Operator account this coordinator issues challenges as",
		Value: "coordinator",
	}
	// WebhookURLFlag receives encoding job completion notifications.
	WebhookURLFlag = &cli.StringFlag{
		Name:  "webhook-url",
		Usage: "URL notified when encoding jobs finish",
	}
	// SimulationFlag synthesizes challenge responses instead of using
	// the validator channel.
	SimulationFlag = &cli.BoolFlag{
		Name:  "simulation",
		Usage: "Run the challenge engine in simulation mode",
	}
	// DemoModeFlag admits the demo account without signature checks.
	DemoModeFlag = &cli.BoolFlag{
		Name:  "demo-mode",
		Usage: "Allow demo logins that bypass witness checks",
	}
	// ClearDBFlag wipes the database before starting.
	ClearDBFlag = &cli.BoolFlag{
		Name:  "clear-db",
		Usage: "Clears any previously stored data at the data directory",
	}
	// VerbosityFlag sets the logging level.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error, fatal, panic)",
		Value: "info",
	}
)
