package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	pkgerrors "github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/ipfs"
	"github.com/spknetwork/storage-coordinator/runtime/version"
)

const maxPortAttempts = 20

// API is the loopback HTTP surface the client UI and remote validators
// talk to.
type API struct {
	supervisor *Supervisor
	daemon     *ipfs.Client
	responder  *Responder
	config     *ConfigStore
	earnings   *EarningsStore

	server *http.Server
	// Port is the port actually bound, after any fall-forward.
	Port int
}

// NewAPI builds the loopback API around the agent's components.
func NewAPI(supervisor *Supervisor, daemon *ipfs.Client, responder *Responder, config *ConfigStore, earnings *EarningsStore) *API {
	a := &API{
		supervisor: supervisor,
		daemon:     daemon,
		responder:  responder,
		config:     config,
		earnings:   earnings,
	}
	router := mux.NewRouter()
	router.HandleFunc("/api/status", a.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/config", a.handleGetConfig).Methods(http.MethodGet)
	router.HandleFunc("/api/config", a.handleSetConfig).Methods(http.MethodPost)
	router.HandleFunc("/api/pin", a.handlePin).Methods(http.MethodPost)
	router.HandleFunc("/api/unpin", a.handleUnpin).Methods(http.MethodPost)
	router.HandleFunc("/api/pins", a.handlePins).Methods(http.MethodGet)
	router.HandleFunc("/api/challenge", a.handleChallenge).Methods(http.MethodPost)
	a.server = &http.Server{Handler: router}
	return a
}

// Listen binds the loopback address, walking the port forward when the
// preferred one is taken, and serves until the server is shut down.
func (a *API) Listen(preferredPort int) error {
	listener, port, err := listenFallForward(preferredPort)
	if err != nil {
		return err
	}
	a.Port = port
	log.WithField("address", listener.Addr().String()).Info("Agent API listening")
	go func() {
		if err := a.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Agent API failed to serve")
		}
	}()
	return nil
}

func listenFallForward(preferredPort int) (net.Listener, int, error) {
	for port := preferredPort; port < preferredPort+maxPortAttempts; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return listener, port, nil
		}
		if errors.Is(err, syscall.EADDRINUSE) {
			continue
		}
		return nil, 0, pkgerrors.Wrap(err, "could not bind agent API")
	}
	return nil, 0, pkgerrors.Errorf("no free port in %d..%d", preferredPort, preferredPort+maxPortAttempts-1)
}

// Shutdown stops the HTTP server, letting in-flight requests finish.
func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (a *API) Router() http.Handler {
	return a.server.Handler
}

type statusResponse struct {
	Running      bool            `json:"running"`
	PeerID       string          `json:"peerId,omitempty"`
	Stats        *ipfs.RepoStat  `json:"stats,omitempty"`
	HiveUsername string          `json:"hiveUsername,omitempty"`
	Earnings     earningsSummary `json:"earnings"`
	Version      string          `json:"version"`
	Error        string          `json:"error,omitempty"`
}

type earningsSummary struct {
	TotalHbd          float64 `json:"totalHbd"`
	ChallengesPassed  int     `json:"challengesPassed"`
	ConsecutivePasses int     `json:"consecutivePasses"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	earnings := a.earnings.Earnings()
	resp := &statusResponse{
		Running:      a.supervisor.Running(),
		HiveUsername: a.config.Config().HiveUsername,
		Earnings: earningsSummary{
			TotalHbd:          earnings.TotalHbd,
			ChallengesPassed:  earnings.ChallengesPassed,
			ConsecutivePasses: earnings.ConsecutivePasses,
		},
		Version: version.Version(),
	}
	if err := a.supervisor.LastError(); err != nil {
		resp.Error = err.Error()
	}
	if resp.Running {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if peerID, err := a.daemon.PeerID(ctx); err == nil {
			resp.PeerID = peerID
		}
		if stats, err := a.daemon.Stat(ctx); err == nil {
			resp.Stats = stats
		}
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := a.config.Config()
	a.writeJSON(w, http.StatusOK, &cfg)
}

type configPatch struct {
	HiveUsername *string `json:"hiveUsername"`
	AutoStart    *bool   `json:"autoStart"`
}

func (a *API) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	patch := &configPatch{}
	if err := json.NewDecoder(r.Body).Decode(patch); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	err := a.config.Update(func(c *Config) {
		if patch.HiveUsername != nil {
			c.HiveUsername = *patch.HiveUsername
		}
		if patch.AutoStart != nil {
			c.AutoStart = *patch.AutoStart
		}
	})
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	cfg := a.config.Config()
	a.writeJSON(w, http.StatusOK, &cfg)
}

type pinRequest struct {
	CID string `json:"cid"`
}

func (a *API) handlePin(w http.ResponseWriter, r *http.Request) {
	req := &pinRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.CID == "" {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cid is required"})
		return
	}
	if err := a.daemon.PinAdd(r.Context(), req.CID); err != nil {
		a.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"pinned": true, "cid": req.CID})
}

func (a *API) handleUnpin(w http.ResponseWriter, r *http.Request) {
	req := &pinRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.CID == "" {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cid is required"})
		return
	}
	if err := a.daemon.PinRm(r.Context(), req.CID); err != nil {
		a.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"pinned": false, "cid": req.CID})
}

func (a *API) handlePins(w http.ResponseWriter, r *http.Request) {
	pins, err := a.daemon.Pins(r.Context())
	if err != nil {
		a.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"pins": pins})
}

func (a *API) handleChallenge(w http.ResponseWriter, r *http.Request) {
	req := &ChallengeRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.CID == "" || req.Salt == "" {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cid and salt are required"})
		return
	}
	resp, err := a.responder.Respond(r.Context(), req)
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not encode response")
	}
}
