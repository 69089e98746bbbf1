package agent

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spknetwork/storage-coordinator/config/params"
	"github.com/spknetwork/storage-coordinator/ipfs"
	"github.com/spknetwork/storage-coordinator/testing/assert"
	"github.com/spknetwork/storage-coordinator/testing/require"
)

func setupAPI(t *testing.T) *API {
	t.Cleanup(params.UseTestConfig())
	srv := fakeDaemon(t)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	config, err := LoadConfigStore(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	earnings, err := LoadEarningsStore(filepath.Join(dir, "earnings.json"))
	require.NoError(t, err)
	daemon := ipfs.NewClient(srv.URL)
	return NewAPI(&Supervisor{}, daemon, NewResponder(daemon, earnings), config, earnings)
}

func TestListenFallForward(t *testing.T) {
	// Occupy a port, then ask for it.
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() {
		_ = taken.Close()
	}()
	port := taken.Addr().(*net.TCPAddr).Port

	listener, bound, err := listenFallForward(port)
	require.NoError(t, err)
	defer func() {
		_ = listener.Close()
	}()
	assert.Equal(t, true, bound > port && bound < port+maxPortAttempts)
}

func TestHandleStatus_DaemonStopped(t *testing.T) {
	api := setupAPI(t)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.StringContains(t, `"running":false`, rec.Body.String())
}

func TestHandleConfig_Patch(t *testing.T) {
	api := setupAPI(t)

	body := strings.NewReader(`{"hiveUsername":"alice"}`)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/config", body))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.StringContains(t, `"hiveUsername":"alice"`, rec.Body.String())
	// Fields absent from the patch keep their values.
	assert.StringContains(t, fmt.Sprintf(`"apiPort":%d`, 5111), rec.Body.String())
}

func TestHandlePin_RequiresCID(t *testing.T) {
	api := setupAPI(t)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pin", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChallenge(t *testing.T) {
	api := setupAPI(t)

	body := strings.NewReader(`{"cid":"QmRoot","blockIndex":0,"salt":"ff","validatorId":"v1"}`)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/challenge", body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.StringContains(t, `"success":true`, rec.Body.String())

	// A missing block surfaces as a server error with the failure body.
	body = strings.NewReader(`{"cid":"QmMissing","blockIndex":0,"salt":"ff","validatorId":"v1"}`)
	rec = httptest.NewRecorder()
	api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/challenge", body))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.StringContains(t, `"success":false`, rec.Body.String())
}