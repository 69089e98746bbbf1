// Package main defines the storage coordinator service. The coordinator
// issues proof-of-access challenges to storage nodes, tracks their
// reputation, leases encoding jobs to agents, and builds payout reports
// for validator operators.
package main

import (
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spknetwork/storage-coordinator/coordinator/flags"
	"github.com/spknetwork/storage-coordinator/coordinator/node"
	"github.com/spknetwork/storage-coordinator/runtime/version"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = logrus.WithField("prefix", "main")

var appFlags = []cli.Flag{
	flags.DataDirFlag,
	flags.HTTPHostFlag,
	flags.HTTPPortFlag,
	flags.MonitoringPortFlag,
	flags.DisableMonitoringFlag,
	flags.DaemonAPIURLFlag,
	flags.ValidatorChannelURLFlag,
	flags.HMACSecretFlag,
	flags.IdentityAPIURLFlag,
	flags.PostingKeyFlag,
	flags.ValidatorNameFlag,
	flags.WebhookURLFlag,
	flags.SimulationFlag,
	flags.DemoModeFlag,
	flags.ClearDBFlag,
	flags.VerbosityFlag,
}

func startCoordinator(cliCtx *cli.Context) error {
	coordinator, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	coordinator.Start()
	return nil
}

func main() {
	app := cli.App{}
	app.Name = "coordinator"
	app.Usage = "launches a storage incentive coordinator that challenges, scores, and pays storage nodes"
	app.Version = version.Version()
	app.Flags = appFlags
	app.Action = startCoordinator
	app.Before = func(ctx *cli.Context) error {
		formatter := new(prefixed.TextFormatter)
		formatter.TimestampFormat = "2006-01-02 15:04:05"
		formatter.FullTimestamp = true
		logrus.SetFormatter(formatter)
		runtime.GOMAXPROCS(runtime.NumCPU())
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
