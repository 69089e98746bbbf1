package encoding

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/spknetwork/storage-coordinator/config/params"
	"github.com/spknetwork/storage-coordinator/db/iface"
	"github.com/spknetwork/storage-coordinator/types"
)

// WebhookNotifier posts terminal job transitions to a configured URL.
// Delivery is best-effort and one-shot: a failure is recorded on the
// job and not retried.
type WebhookNotifier struct {
	url    string
	repo   iface.Repository
	client *http.Client
}

// NewWebhookNotifier builds a notifier, or nil when no URL is set.
func NewWebhookNotifier(url string, repo iface.Repository) *WebhookNotifier {
	if url == "" {
		return nil
	}
	return &WebhookNotifier{url: url, repo: repo, client: &http.Client{}}
}

type webhookPayload struct {
	JobID        string          `json:"jobId"`
	Owner        string          `json:"owner"`
	Permlink     string          `json:"permlink"`
	Status       types.JobStatus `json:"status"`
	OutputCID    string          `json:"outputCid,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// Notify delivers the transition asynchronously.
func (w *WebhookNotifier) Notify(job *types.EncodingJob) {
	payload := webhookPayload{
		JobID:        job.ID,
		Owner:        job.Owner,
		Permlink:     job.Permlink,
		Status:       job.Status,
		OutputCID:    job.OutputCID,
		ErrorMessage: job.ErrorMessage,
	}
	go w.deliver(job.ID, payload)
}

func (w *WebhookNotifier) deliver(jobID string, payload webhookPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), params.CoordinatorConfig().WebhookTimeout)
	defer cancel()
	body, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("Could not encode webhook payload")
		return
	}
	delivered := false
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err == nil {
		req.Header.Set("Content-Type", "application/json")
		resp, doErr := w.client.Do(req)
		if doErr == nil {
			_ = resp.Body.Close()
			delivered = resp.StatusCode >= 200 && resp.StatusCode < 300
		}
	}
	if !delivered {
		webhookFailures.Inc()
		log.WithField("job", jobID).Warn("Webhook delivery failed")
	}
	updateCtx, updateCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer updateCancel()
	if err := w.repo.UpdateJob(updateCtx, jobID, func(j *types.EncodingJob) error {
		j.WebhookDelivered = delivered
		return nil
	}); err != nil {
		log.WithError(err).WithField("job", jobID).Debug("Could not record webhook delivery state")
	}
}
