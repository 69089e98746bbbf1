// Package rpc serves the coordinator's operator-facing HTTP API:
// validator login and dashboards, encoding job intake, the agent claim
// protocol, and payout report management.
package rpc

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/encoding"
	"github.com/spknetwork/storage-coordinator/payout"
	"github.com/spknetwork/storage-coordinator/session"
)

var log = logrus.WithField("prefix", "rpc")

// Config bundles the dependencies the API serves.
type Config struct {
	Host     string
	Port     string
	Repo     iface.Repository
	Sessions *session.Manager
	Encoder  *encoding.Orchestrator
	Payouts  *payout.Builder
}

// Service is the operator HTTP API as a registrable runtime service.
type Service struct {
	cfg      *Config
	ctx      context.Context
	cancel   context.CancelFunc
	server   *http.Server
	startErr error
}

// NewService constructs the API service and wires its routes.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{cfg: cfg, ctx: ctx, cancel: cancel}

	router := mux.NewRouter()
	router.HandleFunc("/validator/login", s.handleLogin).Methods(http.MethodPost)
	router.HandleFunc("/validator/validate-session", s.withToken(s.handleValidateSession)).Methods(http.MethodPost)
	router.HandleFunc("/validator/dashboard/{username}", s.withToken(s.handleDashboard)).Methods(http.MethodGet)
	router.HandleFunc("/validator/challenges", s.withToken(s.handleChallenges)).Methods(http.MethodGet)
	router.HandleFunc("/validator/operators", s.withToken(s.handleOperators)).Methods(http.MethodGet)
	router.HandleFunc("/validator/payout/generate", s.withToken(s.handlePayoutGenerate)).Methods(http.MethodPost)
	router.HandleFunc("/validator/payout/reports", s.withToken(s.handlePayoutReports)).Methods(http.MethodGet)
	router.HandleFunc("/validator/payout/reports/{id}/export", s.withToken(s.handlePayoutExport)).Methods(http.MethodGet)
	router.HandleFunc("/validator/payout/reports/{id}/approve", s.withToken(s.handlePayoutApprove)).Methods(http.MethodPost)
	router.HandleFunc("/validator/payout/reports/{id}/execute", s.withToken(s.handlePayoutExecute)).Methods(http.MethodPost)

	router.HandleFunc("/encoding/jobs", s.handleEnqueueJob).Methods(http.MethodPost)
	router.HandleFunc("/encoding/jobs", s.handleListJobs).Methods(http.MethodGet)
	router.HandleFunc("/encoding/queue/stats", s.handleQueueStats).Methods(http.MethodGet)
	router.HandleFunc("/encoding/encoders", s.handleListEncoders).Methods(http.MethodGet)
	router.HandleFunc("/encoding/encoders/{id}", s.handleGetEncoder).Methods(http.MethodGet)
	router.HandleFunc("/encoding/agent/claim", s.handleAgentClaim).Methods(http.MethodPost)
	router.HandleFunc("/encoding/agent/progress", s.handleAgentProgress).Methods(http.MethodPost)
	router.HandleFunc("/encoding/agent/complete", s.handleAgentComplete).Methods(http.MethodPost)
	router.HandleFunc("/encoding/agent/fail", s.handleAgentFail).Methods(http.MethodPost)
	router.HandleFunc("/encoding/agent/renew-lease", s.handleAgentRenewLease).Methods(http.MethodPost)

	s.server = &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,
	}
	return s
}

// Start begins serving in the background.
func (s *Service) Start() {
	log.WithField("address", s.server.Addr).Info("Starting operator API")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Operator API failed to serve")
			s.startErr = err
		}
	}()
}

// Stop shuts the listener down, letting in-flight requests finish.
func (s *Service) Stop() error {
	defer s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status reports a failed listener.
func (s *Service) Status() error {
	if s.startErr != nil {
		return errors.Wrap(s.startErr, "operator API not serving")
	}
	return nil
}

// Router exposes the handler for tests.
func (s *Service) Router() http.Handler {
	return s.server.Handler
}
