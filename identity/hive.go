package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/pkg/errors"
)

// HiveProvider resolves identity questions against a Hive API node over
// JSON-RPC.
type HiveProvider struct {
	endpoint string
	client   *http.Client
	reqID    uint64
}

// NewHiveProvider builds a provider for the given API endpoint, e.g.
// "https://api.hive.blog".
func NewHiveProvider(endpoint string) *HiveProvider {
	return &HiveProvider{endpoint: endpoint, client: &http.Client{}}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *HiveProvider) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      atomic.AddUint64(&p.reqID, 1),
	})
	if err != nil {
		return errors.Wrap(err, "could not encode rpc request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "could not build rpc request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "rpc call %s failed", method)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "could not read rpc response")
	}
	rpcResp := &rpcResponse{}
	if err := json.Unmarshal(data, rpcResp); err != nil {
		return errors.Wrapf(err, "could not decode rpc response for %s", method)
	}
	if rpcResp.Error != nil {
		return errors.Errorf("rpc call %s rejected: %s", method, rpcResp.Error.Message)
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// VerifySignature asks the chain to check the signature against the
// account's posting authority.
func (p *HiveProvider) VerifySignature(ctx context.Context, username, challenge, signature string) (bool, error) {
	var result struct {
		Valid bool `json:"valid"`
	}
	err := p.call(ctx, "database_api.verify_signatures", []interface{}{map[string]interface{}{
		"hash":             challenge,
		"signatures":       []string{signature},
		"required_posting": []string{username},
		"required_owner":   []string{},
		"required_active":  []string{},
		"required_other":   []string{},
	}}, &result)
	if err != nil {
		return false, err
	}
	return result.Valid, nil
}

// WitnessRank walks the top witness list looking for the account. An
// account outside the listed set holds no rank.
func (p *HiveProvider) WitnessRank(ctx context.Context, username string) (int, bool, error) {
	var witnesses []struct {
		Owner string `json:"owner"`
	}
	err := p.call(ctx, "condenser_api.get_witnesses_by_vote", []interface{}{"", 250}, &witnesses)
	if err != nil {
		return 0, false, err
	}
	for i, w := range witnesses {
		if w.Owner == username {
			return i + 1, true, nil
		}
	}
	return 0, false, nil
}
