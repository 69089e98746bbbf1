package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spknetwork/storage-coordinator/config/params"
	"github.com/spknetwork/storage-coordinator/db/kv"
	"github.com/spknetwork/storage-coordinator/encoding"
	"github.com/spknetwork/storage-coordinator/identity"
	"github.com/spknetwork/storage-coordinator/payout"
	"github.com/spknetwork/storage-coordinator/session"
	"github.com/spknetwork/storage-coordinator/testing/assert"
	"github.com/spknetwork/storage-coordinator/testing/require"
	"github.com/spknetwork/storage-coordinator/types"
)

type apiFixture struct {
	service  *Service
	store    *kv.Store
	provider *identity.StaticProvider
}

func setupService(t *testing.T) *apiFixture {
	t.Cleanup(params.UseTestConfig())
	store, err := kv.NewKVStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	provider := &identity.StaticProvider{
		Ranks:           map[string]int{"alice": 12},
		ValidSignatures: map[string]bool{"alice|sig1": true},
	}
	svc := NewService(context.Background(), &Config{
		Host:     "127.0.0.1",
		Port:     "0",
		Repo:     store,
		Sessions: session.NewManager(provider),
		Encoder:  encoding.NewOrchestrator(store, []byte("test-secret"), nil),
		Payouts:  payout.NewBuilder(store),
	})
	return &apiFixture{service: svc, store: store, provider: provider}
}

func (f *apiFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.service.Router().ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T) string {
	challenge := fmt.Sprintf("%s%d", identity.LoginChallengePrefix, time.Now().UnixMilli())
	rec := f.do(http.MethodPost, "/validator/login", "", map[string]string{
		"username": "alice", "signature": "sig1", "challenge": challenge,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEqual(t, "", resp.Token)
	return resp.Token
}

func TestLogin_BadSignature(t *testing.T) {
	f := setupService(t)
	challenge := fmt.Sprintf("%s%d", identity.LoginChallengePrefix, time.Now().UnixMilli())
	rec := f.do(http.MethodPost, "/validator/login", "", map[string]string{
		"username": "alice", "signature": "forged", "challenge": challenge,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_MissingFields(t *testing.T) {
	f := setupService(t)
	rec := f.do(http.MethodPost, "/validator/login", "", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateSession(t *testing.T) {
	f := setupService(t)
	token := f.login(t)

	rec := f.do(http.MethodPost, "/validator/validate-session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.StringContains(t, `"valid":true`, rec.Body.String())

	rec = f.do(http.MethodPost, "/validator/validate-session", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/validator/validate-session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboard_OwnerOnly(t *testing.T) {
	f := setupService(t)
	token := f.login(t)

	rec := f.do(http.MethodGet, "/validator/dashboard/alice", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/validator/dashboard/bob", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboard_Aggregates(t *testing.T) {
	f := setupService(t)
	token := f.login(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, f.store.SaveNode(ctx, &types.StorageNode{
		ID: "n1", OperatorName: "alice", Status: types.NodeActive, TotalEarned: "0.010",
	}))
	require.NoError(t, f.store.SaveNode(ctx, &types.StorageNode{
		ID: "n2", OperatorName: "alice", Status: types.NodeBanned, TotalEarned: "0.002",
	}))
	require.NoError(t, f.store.SaveNode(ctx, &types.StorageNode{
		ID: "other", OperatorName: "bob", Status: types.NodeActive, TotalEarned: "9.999",
	}))
	for i, latency := range []int64{100, 200, 300} {
		c := &types.PoAChallenge{
			ID: uuid.New().String(), NodeID: "n1", FileID: "f1",
			CreatedAt: now.Add(time.Duration(-i) * time.Minute),
		}
		require.NoError(t, f.store.CreateChallenge(ctx, c))
		require.NoError(t, f.store.ResolveChallenge(ctx, c.ID, types.ChallengeSuccess, "", "p", latency))
	}

	rec := f.do(http.MethodGet, "/validator/dashboard/alice", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dashboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.NodeCount)
	assert.Equal(t, 1, resp.ActiveNodes)
	assert.Equal(t, 1, resp.BannedNodes)
	assert.Equal(t, "0.012", resp.TotalEarned)
	assert.Equal(t, 3, resp.TotalChallenges)
	assert.Equal(t, 3, resp.PassedCount)
	assert.Equal(t, 100.0, resp.SuccessRate)
	assert.Equal(t, int64(200), resp.LatencyP50)
	assert.Equal(t, int64(300), resp.LatencyP99)
}

func TestChallenges_LimitValidation(t *testing.T) {
	f := setupService(t)
	token := f.login(t)

	rec := f.do(http.MethodGet, "/validator/challenges?limit=0", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/validator/challenges?limit=5", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEnqueueJob(t *testing.T) {
	f := setupService(t)

	body := map[string]interface{}{
		"owner": "alice", "permlink": "my-video", "inputCid": "Qm1", "isShort": false,
	}
	rec := f.do(http.MethodPost, "/encoding/jobs", "", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Same owner and permlink again is a conflict.
	rec = f.do(http.MethodPost, "/encoding/jobs", "", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/encoding/jobs", "", map[string]string{"owner": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobs_ByOwner(t *testing.T) {
	f := setupService(t)
	for _, owner := range []string{"alice", "alice", "bob"} {
		rec := f.do(http.MethodPost, "/encoding/jobs", "", map[string]interface{}{
			"owner": owner, "permlink": uuid.New().String(), "inputCid": "Qm1",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(http.MethodGet, "/encoding/jobs?owner=alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Jobs []*types.EncodingJob `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, len(resp.Jobs))
}

func TestAgentClaimFlow(t *testing.T) {
	f := setupService(t)

	rec := f.do(http.MethodPost, "/encoding/jobs", "", map[string]interface{}{
		"owner": "alice", "permlink": "my-video", "inputCid": "Qm1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/encoding/agent/claim", "", map[string]string{
		"encoderId": "agent-1", "encoderType": string(types.EncoderDesktop),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var claim claimResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claim))
	require.NotNil(t, claim.Job)
	require.NotEqual(t, "", claim.Signature)

	rec = f.do(http.MethodPost, "/encoding/agent/progress", "", map[string]interface{}{
		"jobId": claim.Job.ID, "stage": "encoding", "progress": 40, "signature": claim.Signature,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/encoding/agent/complete", "", map[string]interface{}{
		"jobId": claim.Job.ID, "outputCid": "QmOut",
		"qualitiesEncoded": []string{"1080p", "480p"}, "processingTimeSec": 12,
		"signature": claim.Signature,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// An empty queue claims a null job.
	rec = f.do(http.MethodPost, "/encoding/agent/claim", "", map[string]string{
		"encoderId": "agent-2", "encoderType": string(types.EncoderDesktop),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.StringContains(t, `"job":null`, rec.Body.String())
}

func TestLogin_RecordsValidator(t *testing.T) {
	f := setupService(t)
	f.login(t)

	v, err := f.store.ValidatorByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 12, v.WitnessRank)
	assert.Equal(t, types.ValidatorOnline, v.Status)

	// A second login keeps the same row.
	token := f.login(t)
	again, err := f.store.ValidatorByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, v.ID, again.ID)

	rec := f.do(http.MethodGet, "/validator/operators", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.StringContains(t, `"username":"alice"`, rec.Body.String())
}

func TestEncoderRegistry(t *testing.T) {
	f := setupService(t)

	rec := f.do(http.MethodPost, "/encoding/jobs", "", map[string]interface{}{
		"owner": "alice", "permlink": "my-video", "inputCid": "Qm1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(http.MethodPost, "/encoding/agent/claim", "", map[string]string{
		"encoderId": "agent-1", "encoderType": string(types.EncoderDesktop),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/encoding/encoders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.StringContains(t, `"id":"agent-1"`, rec.Body.String())

	rec = f.do(http.MethodGet, "/encoding/encoders/agent-1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/encoding/encoders/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentProgress_ForgedSignature(t *testing.T) {
	f := setupService(t)

	rec := f.do(http.MethodPost, "/encoding/jobs", "", map[string]interface{}{
		"owner": "alice", "permlink": "my-video", "inputCid": "Qm1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(http.MethodPost, "/encoding/agent/claim", "", map[string]string{
		"encoderId": "agent-1", "encoderType": string(types.EncoderDesktop),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var claim claimResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claim))

	rec = f.do(http.MethodPost, "/encoding/agent/progress", "", map[string]interface{}{
		"jobId": claim.Job.ID, "stage": "encoding", "progress": 40, "signature": "forged",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayoutLifecycleOverHTTP(t *testing.T) {
	f := setupService(t)
	token := f.login(t)
	now := time.Now().UTC()

	rec := f.do(http.MethodPost, "/validator/payout/generate", token, map[string]interface{}{
		"periodStart": now.Add(-time.Hour), "periodEnd": now,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var result payout.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	id := result.Report.ID

	// Reversed window is rejected up front.
	rec = f.do(http.MethodPost, "/validator/payout/generate", token, map[string]interface{}{
		"periodStart": now, "periodEnd": now.Add(-time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/validator/payout/reports/"+id+"/execute", token, map[string]string{"txHash": "tx1"})
	assert.Equal(t, http.StatusConflict, rec.Code, "execute before approve")

	rec = f.do(http.MethodPost, "/validator/payout/reports/"+id+"/approve", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/validator/payout/reports/"+id+"/execute", token, map[string]string{"txHash": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/validator/payout/reports/"+id+"/execute", token, map[string]string{"txHash": "tx1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/validator/payout/reports/"+id+"/export", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/validator/payout/reports/missing/export", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionRevocationOverHTTP(t *testing.T) {
	f := setupService(t)
	token := f.login(t)

	rec := f.do(http.MethodGet, "/validator/dashboard/alice", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Alice loses her witness slot; the very next call is rejected.
	delete(f.provider.Ranks, "alice")
	rec = f.do(http.MethodGet, "/validator/dashboard/alice", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}