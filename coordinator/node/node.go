// Package node defines the coordinator process: it assembles the
// database, challenge engine, encoding orchestrator, and HTTP surfaces
// into a registry of long-running services.
package node

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spknetwork/storage-coordinator/config/params"
	"github.com/spknetwork/storage-coordinator/coordinator/flags"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/db/kv"
	"github.com/spknetwork/storage-coordinator/encoding"
	"github.com/spknetwork/storage-coordinator/identity"
	"github.com/spknetwork/storage-coordinator/ipfs"
	"github.com/spknetwork/storage-coordinator/monitoring/prometheus"
	"github.com/spknetwork/storage-coordinator/payout"
	"github.com/spknetwork/storage-coordinator/poa"
	"github.com/spknetwork/storage-coordinator/rpc"
	"github.com/spknetwork/storage-coordinator/runtime"
	"github.com/spknetwork/storage-coordinator/session"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "node")

// Coordinator is the top level object of the service. It assembles all
// registered services and the database they share.
type Coordinator struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	services *runtime.ServiceRegistry
	db       iface.Repository
	lock     sync.RWMutex
	stop     chan struct{}
}

// New creates a coordinator, opens the database, and registers every
// service. Services do not start until Start is called.
func New(cliCtx *cli.Context) (*Coordinator, error) {
	if err := applyFlags(cliCtx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(cliCtx.Context)
	c := &Coordinator{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
	}

	if err := c.startDB(); err != nil {
		cancel()
		return nil, err
	}

	daemon := ipfs.NewClient(cliCtx.String(flags.DaemonAPIURLFlag.Name))
	secret, err := leaseSecret(cliCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	webhooks := encoding.NewWebhookNotifier(cliCtx.String(flags.WebhookURLFlag.Name), c.db)
	orchestrator := encoding.NewOrchestrator(c.db, secret, webhooks)
	payouts := payout.NewBuilder(c.db)

	var provider identity.Provider = identity.NewHiveProvider(cliCtx.String(flags.IdentityAPIURLFlag.Name))
	sessions := session.NewManager(provider)

	if err := c.registerChallengeEngine(daemon); err != nil {
		cancel()
		return nil, err
	}
	if err := c.services.RegisterService(encoding.NewScheduler(ctx, c.db, orchestrator)); err != nil {
		cancel()
		return nil, err
	}
	apiService := rpc.NewService(ctx, &rpc.Config{
		Host:     cliCtx.String(flags.HTTPHostFlag.Name),
		Port:     cliCtx.String(flags.HTTPPortFlag.Name),
		Repo:     c.db,
		Sessions: sessions,
		Encoder:  orchestrator,
		Payouts:  payouts,
	})
	if err := c.services.RegisterService(apiService); err != nil {
		cancel()
		return nil, err
	}
	if !cliCtx.Bool(flags.DisableMonitoringFlag.Name) {
		addr := fmt.Sprintf("%s:%d", cliCtx.String(flags.HTTPHostFlag.Name), cliCtx.Int64(flags.MonitoringPortFlag.Name))
		if err := c.services.RegisterService(prometheus.NewService(addr, c.services)); err != nil {
			cancel()
			return nil, err
		}
	}
	return c, nil
}

func applyFlags(cliCtx *cli.Context) error {
	level, err := logrus.ParseLevel(cliCtx.String(flags.VerbosityFlag.Name))
	if err != nil {
		return errors.Wrap(err, "invalid verbosity")
	}
	logrus.SetLevel(level)

	cfg := params.CoordinatorConfig().Copy()
	cfg.SimulationMode = cliCtx.Bool(flags.SimulationFlag.Name)
	cfg.DemoMode = cliCtx.Bool(flags.DemoModeFlag.Name)
	if url := cliCtx.String(flags.WebhookURLFlag.Name); url != "" {
		cfg.WebhookURL = url
	}
	params.OverrideCoordinatorConfig(cfg)
	return nil
}

func (c *Coordinator) startDB() error {
	dataDir := c.cliCtx.String(flags.DataDirFlag.Name)
	if dataDir == "" {
		return errors.New("datadir is required")
	}
	store, err := kv.NewKVStore(dataDir)
	if err != nil {
		return errors.Wrap(err, "could not open database")
	}
	if c.cliCtx.Bool(flags.ClearDBFlag.Name) {
		log.Warning("Clearing coordinator database")
		if err := store.ClearDB(); err != nil {
			return errors.Wrap(err, "could not clear database")
		}
		store, err = kv.NewKVStore(dataDir)
		if err != nil {
			return errors.Wrap(err, "could not reopen database")
		}
	}
	log.WithField("path", store.DatabasePath()).Info("Opened coordinator database")
	c.db = store
	return nil
}

func leaseSecret(cliCtx *cli.Context) ([]byte, error) {
	if secret := cliCtx.String(flags.HMACSecretFlag.Name); secret != "" {
		return []byte(secret), nil
	}
	log.Warning("No lease secret configured, generating an ephemeral one; agent leases will not survive restarts")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, errors.Wrap(err, "could not generate lease secret")
	}
	return secret, nil
}

func (c *Coordinator) registerChallengeEngine(daemon *ipfs.Client) error {
	cfg := &poa.Config{
		Validator: c.cliCtx.String(flags.ValidatorNameFlag.Name),
		Repo:      c.db,
		Daemon:    daemon,
	}
	if channelURL := c.cliCtx.String(flags.ValidatorChannelURLFlag.Name); channelURL != "" {
		cfg.Channel = poa.NewHTTPChannel(channelURL)
	}
	engine, err := poa.NewService(c.ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "could not create challenge engine")
	}
	return c.services.RegisterService(engine)
}

// Start launches every registered service and blocks until the process
// is told to shut down.
func (c *Coordinator) Start() {
	c.lock.Lock()
	log.Info("Starting coordinator")
	c.services.StartAll()
	stop := c.stop
	c.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go c.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the coordinator")
	}()

	<-stop
}

// Close stops every service in reverse registration order and closes
// the database.
func (c *Coordinator) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()

	log.Info("Stopping coordinator")
	c.services.StopAll()
	if err := c.db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}
	c.cancel()
	close(c.stop)
}
