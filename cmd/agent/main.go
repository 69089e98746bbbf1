// Package main defines the desktop storage agent. The agent supervises
// a local content-addressed daemon, answers proof-of-access challenges
// from validators, and exposes a loopback API for the client UI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spknetwork/storage-coordinator/agent"
	"github.com/spknetwork/storage-coordinator/ipfs"
	"github.com/spknetwork/storage-coordinator/runtime/version"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = logrus.WithField("prefix", "main")

const (
	exitInitFailure    = 1
	exitBinaryNotFound = 2
)

var (
	configPathFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to the agent configuration file",
		Value: defaultConfigPath(),
	}
	daemonBinaryFlag = &cli.StringSliceFlag{
		Name:  "daemon-binary",
		Usage: "Candidate paths of the storage daemon binary, tried in order",
		Value: cli.NewStringSlice(defaultBinaryCandidates()...),
	}
	daemonAPIPortFlag = &cli.IntFlag{
		Name:  "daemon-api-port",
		Usage: "Port the daemon's HTTP API binds on localhost",
		Value: 5001,
	}
	daemonGatewayPortFlag = &cli.IntFlag{
		Name:  "daemon-gateway-port",
		Usage: "Port the daemon's gateway binds on localhost",
		Value: 8081,
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error, fatal, panic)",
		Value: "info",
	}
)

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".spk-agent", "config.json")
}

func defaultBinaryCandidates() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".spk-agent", "bin", "ipfs"),
		"/usr/local/bin/ipfs",
		"/usr/bin/ipfs",
	}
}

func startAgent(cliCtx *cli.Context) error {
	ctx, cancel := context.WithCancel(cliCtx.Context)
	defer cancel()

	configStore, err := agent.LoadConfigStore(cliCtx.String(configPathFlag.Name))
	if err != nil {
		return errors.Wrap(err, "could not load agent config")
	}
	if err := configStore.Watch(ctx); err != nil {
		return errors.Wrap(err, "could not watch agent config")
	}
	cfg := configStore.Config()

	earnings, err := agent.LoadEarningsStore(filepath.Join(filepath.Dir(cliCtx.String(configPathFlag.Name)), "earnings.json"))
	if err != nil {
		return errors.Wrap(err, "could not load earnings")
	}

	supervisor, err := agent.NewSupervisor(agent.SupervisorConfig{
		BinaryCandidates: cliCtx.StringSlice(daemonBinaryFlag.Name),
		RepoPath:         cfg.IpfsRepoPath,
		APIPort:          cliCtx.Int(daemonAPIPortFlag.Name),
		GatewayPort:      cliCtx.Int(daemonGatewayPortFlag.Name),
	})
	if err != nil {
		return err
	}
	if err := supervisor.Start(ctx); err != nil {
		return errors.Wrap(err, "could not start daemon")
	}
	defer func() {
		if err := supervisor.Stop(); err != nil {
			log.WithError(err).Error("Could not stop daemon")
		}
	}()

	daemon := ipfs.NewClient(fmt.Sprintf("http://127.0.0.1:%d", cliCtx.Int(daemonAPIPortFlag.Name)))
	responder := agent.NewResponder(daemon, earnings)
	api := agent.NewAPI(supervisor, daemon, responder, configStore, earnings)
	if err := api.Listen(cfg.APIPort); err != nil {
		return errors.Wrap(err, "could not start agent API")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Could not stop agent API")
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	<-sigc
	log.Info("Got interrupt, shutting down...")
	return nil
}

func main() {
	app := cli.App{}
	app.Name = "storage-agent"
	app.Usage = "runs a supervised storage daemon that earns rewards by proving it holds pinned content"
	app.Version = version.Version()
	app.Flags = []cli.Flag{
		configPathFlag,
		daemonBinaryFlag,
		daemonAPIPortFlag,
		daemonGatewayPortFlag,
		verbosityFlag,
	}
	app.Action = startAgent
	app.Before = func(ctx *cli.Context) error {
		level, err := logrus.ParseLevel(ctx.String(verbosityFlag.Name))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		formatter := new(prefixed.TextFormatter)
		formatter.TimestampFormat = "2006-01-02 15:04:05"
		formatter.FullTimestamp = true
		logrus.SetFormatter(formatter)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		if errors.Is(err, agent.ErrBinaryNotFound) {
			os.Exit(exitBinaryNotFound)
		}
		os.Exit(exitInitFailure)
	}
}
