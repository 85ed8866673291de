package gateway

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"edugrants/core/state"
	"edugrants/native/grants"
)

func newTestGateway(t *testing.T) (*httptest.Server, *grants.Engine) {
	t.Helper()
	ledger := state.NewLedger(nil)
	var maker, validator [20]byte
	maker[19] = 0x01
	validator[19] = 0x02
	require.NoError(t, ledger.Credit(maker, big.NewInt(1_000)))

	engine := grants.NewEngine()
	engine.SetState(ledger)
	engine.SetNowFunc(func() int64 { return 1_000 })
	_, err := engine.Create(maker, "open call", big.NewInt(500), 2_000, 3_000, validator, big.NewInt(500))
	require.NoError(t, err)

	server := httptest.NewServer(New(engine, nil))
	t.Cleanup(server.Close)
	return server, engine
}

func TestGetProgramSnapshot(t *testing.T) {
	server, _ := newTestGateway(t)
	resp, err := http.Get(server.URL + "/v1/grants/programs/0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var program programResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&program))
	require.Equal(t, uint64(0), program.ID)
	require.Equal(t, "open call", program.Name)
	require.Equal(t, "500", program.Price)
	require.False(t, program.Approved)
	require.Nil(t, program.Builder)
}

func TestGetProgramNotFound(t *testing.T) {
	server, _ := newTestGateway(t)
	resp, err := http.Get(server.URL + "/v1/grants/programs/42")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetProgramInvalidID(t *testing.T) {
	server, _ := newTestGateway(t)
	resp, err := http.Get(server.URL + "/v1/grants/programs/abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetFee(t *testing.T) {
	server, _ := newTestGateway(t)
	resp, err := http.Get(server.URL + "/v1/grants/fee")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fee feeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fee))
	require.Equal(t, uint32(0), fee.FeeBps)
}

func TestHealthz(t *testing.T) {
	server, _ := newTestGateway(t)
	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
