package poa

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// ProofRequest is the message sent to a storage node over the validator
// channel when a proof is demanded.
type ProofRequest struct {
	Type   string `json:"type"`
	Hash   string `json:"Hash"`
	CID    string `json:"CID"`
	Status string `json:"Status"`
	User   string `json:"User"`
}

// ProofResponse is the node's answer.
type ProofResponse struct {
	ProofHash string `json:"proofHash"`
	BlockCID  string `json:"blockCid,omitempty"`
	ElapsedMs int64  `json:"elapsedMs,omitempty"`
}

// Channel delivers proof requests to storage nodes and returns their
// responses. Implementations must respect the context deadline.
type Channel interface {
	RequestProof(ctx context.Context, req *ProofRequest) (*ProofResponse, error)
}

// HTTPChannel posts proof requests to a relay endpoint as JSON.
type HTTPChannel struct {
	endpoint string
	client   *http.Client
}

// NewHTTPChannel builds a channel speaking to the given relay URL.
func NewHTTPChannel(endpoint string) *HTTPChannel {
	return &HTTPChannel{endpoint: endpoint, client: &http.Client{}}
}

// RequestProof sends the request and decodes the node's response.
func (c *HTTPChannel) RequestProof(ctx context.Context, req *ProofRequest) (*ProofResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode proof request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not build proof request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "proof request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "could not read proof response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("proof request rejected with status %d", resp.StatusCode)
	}
	out := &ProofResponse{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, errors.Wrap(err, "could not decode proof response")
	}
	return out, nil
}
