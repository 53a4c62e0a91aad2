package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServer(t *testing.T) {
	f := newFixture(t)
	keeper := f.keeper()
	handler := NewServer(keeper, ":0", zap.NewNop()).Handler()

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	status := StatusInfo{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Nil(t, status.Last)
	assert.Equal(t, f.mint.String(), status.Mint)

	w = get("/api/scan")
	require.Equal(t, http.StatusOK, w.Code)
	scan := ScanInfo{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scan))
	assert.Equal(t, 1, scan.HarvestableCount)
	assert.Equal(t, "1", scan.HarvestableSum)
	require.Len(t, scan.Top, 1)
	assert.Equal(t, f.source.String(), scan.Top[0].Address)

	keeper.RunCycle(context.Background())
	w = get("/api/status")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.NotNil(t, status.Last)
	assert.Equal(t, OutcomeSuccess, status.Last.Outcome)
	assert.Equal(t, uint64(1_000_000), status.Last.Harvested)
	assert.Equal(t, 2, status.Last.Paid)

	w = get("/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "token_fee_harvester_cycles_total")
}
