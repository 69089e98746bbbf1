package rpc

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/types"
)

type enqueueJobRequest struct {
	Owner    string `json:"owner"`
	Permlink string `json:"permlink"`
	InputCID string `json:"inputCid"`
	IsShort  bool   `json:"isShort"`
}

func (s *Service) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	req := &enqueueJobRequest{}
	if err := decodeJSON(r, req); err != nil {
		writeError(w, err)
		return
	}
	if req.Owner == "" || req.Permlink == "" || req.InputCID == "" {
		writeError(w, errors.Wrap(errBadRequest, "owner, permlink and inputCid are required"))
		return
	}
	job, err := s.cfg.Encoder.Enqueue(r.Context(), req.Owner, req.Permlink, req.InputCID, req.IsShort)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Service) handleListJobs(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	jobs, err := s.cfg.Repo.Jobs(r.Context(), iface.JobFilter{Owner: owner})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (s *Service) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cfg.Encoder.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Service) handleListEncoders(w http.ResponseWriter, r *http.Request) {
	encoders, err := s.cfg.Repo.Encoders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"encoders": encoders})
}

func (s *Service) handleGetEncoder(w http.ResponseWriter, r *http.Request) {
	encoder, err := s.cfg.Repo.Encoder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, encoder)
}

type claimRequest struct {
	EncoderID   string `json:"encoderId"`
	EncoderType string `json:"encoderType"`
	Operator    string `json:"operator,omitempty"`
}

type claimResponse struct {
	Job       *types.EncodingJob `json:"job"`
	Signature string             `json:"signature,omitempty"`
}

func (s *Service) handleAgentClaim(w http.ResponseWriter, r *http.Request) {
	req := &claimRequest{}
	if err := decodeJSON(r, req); err != nil {
		writeError(w, err)
		return
	}
	if req.EncoderID == "" {
		writeError(w, errors.Wrap(errBadRequest, "encoderId is required"))
		return
	}
	job, sig, err := s.cfg.Encoder.Claim(r.Context(), req.EncoderID, types.EncoderType(req.EncoderType), req.Operator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &claimResponse{Job: job, Signature: sig})
}

type progressRequest struct {
	JobID     string `json:"jobId"`
	Stage     string `json:"stage"`
	Progress  int    `json:"progress"`
	Signature string `json:"signature"`
}

func (s *Service) handleAgentProgress(w http.ResponseWriter, r *http.Request) {
	req := &progressRequest{}
	if err := decodeJSON(r, req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Encoder.Progress(r.Context(), req.JobID, req.Stage, req.Progress, req.Signature); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type completeRequest struct {
	JobID             string   `json:"jobId"`
	OutputCID         string   `json:"outputCid"`
	QualitiesEncoded  []string `json:"qualitiesEncoded"`
	ProcessingTimeSec int      `json:"processingTimeSec"`
	OutputSizeBytes   int64    `json:"outputSizeBytes,omitempty"`
	Signature         string   `json:"signature"`
}

func (s *Service) handleAgentComplete(w http.ResponseWriter, r *http.Request) {
	req := &completeRequest{}
	if err := decodeJSON(r, req); err != nil {
		writeError(w, err)
		return
	}
	if req.OutputCID == "" {
		writeError(w, errors.Wrap(errBadRequest, "outputCid is required"))
		return
	}
	err := s.cfg.Encoder.Complete(r.Context(), req.JobID, req.OutputCID, req.QualitiesEncoded, req.ProcessingTimeSec, req.OutputSizeBytes, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type failRequest struct {
	JobID     string `json:"jobId"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
	Signature string `json:"signature"`
}

func (s *Service) handleAgentFail(w http.ResponseWriter, r *http.Request) {
	req := &failRequest{}
	if err := decodeJSON(r, req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.cfg.Encoder.Fail(r.Context(), req.JobID, req.Error, req.Retryable, req.Signature); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type renewLeaseRequest struct {
	JobID     string `json:"jobId"`
	Signature string `json:"signature"`
}

func (s *Service) handleAgentRenewLease(w http.ResponseWriter, r *http.Request) {
	req := &renewLeaseRequest{}
	if err := decodeJSON(r, req); err != nil {
		writeError(w, err)
		return
	}
	job, sig, err := s.cfg.Encoder.RenewLease(r.Context(), req.JobID, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &claimResponse{Job: job, Signature: sig})
}
