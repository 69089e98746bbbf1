package rpc

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/hbd"
	"github.com/spknetwork/storage-coordinator/session"
	"github.com/spknetwork/storage-coordinator/types"
)

type loginRequest struct {
	Username  string `json:"username"`
	Signature string `json:"signature"`
	Challenge string `json:"challenge"`
}

type loginResponse struct {
	Token   string           `json:"token"`
	Session *session.Session `json:"session"`
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	req := &loginRequest{}
	if err := decodeJSON(r, req); err != nil {
		writeError(w, err)
		return
	}
	if req.Username == "" || req.Signature == "" || req.Challenge == "" {
		writeError(w, errors.Wrap(errBadRequest, "username, signature and challenge are required"))
		return
	}
	token, sess, err := s.cfg.Sessions.Login(r.Context(), req.Username, req.Challenge, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.recordValidator(r.Context(), sess); err != nil {
		log.WithError(err).WithField("username", sess.Username).Warn("Could not record validator login")
	}
	writeJSON(w, http.StatusOK, &loginResponse{Token: token, Session: sess})
}

// recordValidator upserts the operator's registry row on login.
func (s *Service) recordValidator(ctx context.Context, sess *session.Session) error {
	v, err := s.cfg.Repo.ValidatorByUsername(ctx, sess.Username)
	if iface.IsNotFound(err) {
		v = &types.Validator{ID: uuid.New().String(), Username: sess.Username}
	} else if err != nil {
		return err
	}
	v.WitnessRank = sess.WitnessRank
	v.Status = types.ValidatorOnline
	return s.cfg.Repo.SaveValidator(ctx, v)
}

func (s *Service) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":   true,
		"session": sessionFrom(r),
	})
}

// dashboardResponse aggregates a validator operator's node fleet and
// the last day of challenge activity.
type dashboardResponse struct {
	Username        string    `json:"username"`
	NodeCount       int       `json:"nodeCount"`
	ActiveNodes     int       `json:"activeNodes"`
	BannedNodes     int       `json:"bannedNodes"`
	TotalEarned     string    `json:"totalEarned"`
	TotalChallenges int       `json:"totalChallenges"`
	PassedCount     int       `json:"passedCount"`
	FailedCount     int       `json:"failedCount"`
	SuccessRate     float64   `json:"successRate"`
	LatencyP50      int64     `json:"latencyP50"`
	LatencyP95      int64     `json:"latencyP95"`
	LatencyP99      int64     `json:"latencyP99"`
	HourlyActivity  [24]int   `json:"hourlyActivity"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

func (s *Service) handleDashboard(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	sess := sessionFrom(r)
	if sess == nil || sess.Username != username {
		writeError(w, errors.Wrap(session.ErrUnauthorized, "dashboard is restricted to its owner"))
		return
	}

	nodes, err := s.cfg.Repo.Nodes(r.Context(), iface.NodeFilter{})
	if err != nil {
		writeError(w, err)
		return
	}
	resp := &dashboardResponse{Username: username, GeneratedAt: time.Now().UTC()}
	owned := map[string]bool{}
	var earned float64
	for _, n := range nodes {
		if n.OperatorName != username {
			continue
		}
		owned[n.ID] = true
		resp.NodeCount++
		switch n.Status {
		case types.NodeActive:
			resp.ActiveNodes++
		case types.NodeBanned:
			resp.BannedNodes++
		}
		earned = hbd.Add3(earned, n.TotalEarned)
	}
	resp.TotalEarned = hbd.Format3(earned)

	now := time.Now().UTC()
	challenges, err := s.cfg.Repo.ChallengesInRange(r.Context(), now.Add(-24*time.Hour), now)
	if err != nil {
		writeError(w, err)
		return
	}
	var latencies []int64
	for _, c := range challenges {
		if !owned[c.NodeID] || c.Result == types.ChallengePending {
			continue
		}
		resp.TotalChallenges++
		resp.HourlyActivity[c.CreatedAt.UTC().Hour()]++
		if c.Result == types.ChallengeSuccess {
			resp.PassedCount++
			latencies = append(latencies, c.LatencyMs)
		} else {
			resp.FailedCount++
		}
	}
	if resp.TotalChallenges > 0 {
		resp.SuccessRate = 100 * float64(resp.PassedCount) / float64(resp.TotalChallenges)
	}
	resp.LatencyP50 = percentile(latencies, 50)
	resp.LatencyP95 = percentile(latencies, 95)
	resp.LatencyP99 = percentile(latencies, 99)
	writeJSON(w, http.StatusOK, resp)
}

// percentile returns the pth percentile by nearest-rank. Zero when
// there are no samples.
func percentile(samples []int64, p int) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func (s *Service) handleOperators(w http.ResponseWriter, r *http.Request) {
	validators, err := s.cfg.Repo.Validators(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"operators": validators})
}

func (s *Service) handleChallenges(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, errors.Wrap(errBadRequest, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	challenges, err := s.cfg.Repo.RecentChallenges(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"challenges": challenges})
}

type payoutGenerateRequest struct {
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

func (s *Service) handlePayoutGenerate(w http.ResponseWriter, r *http.Request) {
	req := &payoutGenerateRequest{}
	if err := decodeJSON(r, req); err != nil {
		writeError(w, err)
		return
	}
	if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() || !req.PeriodEnd.After(req.PeriodStart) {
		writeError(w, errors.Wrap(errBadRequest, "periodStart must precede periodEnd"))
		return
	}
	result, err := s.cfg.Payouts.Generate(r.Context(), sessionFrom(r).Username, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Service) handlePayoutReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.cfg.Repo.Reports(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}

func (s *Service) handlePayoutExport(w http.ResponseWriter, r *http.Request) {
	export, err := s.cfg.Payouts.BuildExport(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Service) handlePayoutApprove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.cfg.Payouts.Approve(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(types.ReportApproved)})
}

type payoutExecuteRequest struct {
	TxHash string `json:"txHash"`
}

func (s *Service) handlePayoutExecute(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req := &payoutExecuteRequest{}
	if err := decodeJSON(r, req); err != nil {
		writeError(w, err)
		return
	}
	if req.TxHash == "" {
		writeError(w, errors.Wrap(errBadRequest, "txHash is required"))
		return
	}
	if err := s.cfg.Payouts.Execute(r.Context(), id, req.TxHash); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(types.ReportExecuted)})
}
