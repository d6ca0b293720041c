package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oddyssey-cycle/engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMatches() [10]domain.CycleMatch {
	var matches [10]domain.CycleMatch
	for i := range matches {
		matches[i] = domain.CycleMatch{
			DisplayOrder:  i + 1,
			FixtureID:     string(rune('a' + i)),
			KickoffUnix:   1000 + int64(i),
			OddsHomeX1000: 2000,
			OddsDrawX1000: 3000,
			OddsAwayX1000: 2500,
		}
	}
	return matches
}

func TestSubmitDailyCycle_ReturnsTxHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "startDailyCycle", req.Method)
		json.NewEncoder(w).Encode(rpcResponse{Result: mustJSON(t, "0xabc")})
	}))
	defer srv.Close()

	gw := NewRPCGateway(srv.URL, "", nil, 2*time.Second, 3)
	hash, err := gw.SubmitDailyCycle(context.Background(), 1, sampleMatches())
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)
}

func TestSubmitDailyCycle_IdempotentByNaturalKey(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(rpcResponse{Result: mustJSON(t, "0xonce")})
	}))
	defer srv.Close()

	gw := NewRPCGateway(srv.URL, "", nil, 2*time.Second, 3)
	matches := sampleMatches()

	h1, err := gw.SubmitDailyCycle(context.Background(), 7, matches)
	require.NoError(t, err)
	h2, err := gw.SubmitDailyCycle(context.Background(), 7, matches)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCall_RetriesOnTransientServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(rpcResponse{Result: mustJSON(t, int64(42))})
	}))
	defer srv.Close()

	gw := NewRPCGateway(srv.URL, "", nil, 2*time.Second, 3)
	gw.retryPolicy.BaseBackoff = time.Millisecond
	id, err := gw.GetCurrentCycleID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCall_NonTransientErrorDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(rpcResponse{Error: &rpcError{Code: 400, Message: "reverted"}})
	}))
	defer srv.Close()

	gw := NewRPCGateway(srv.URL, "", nil, 2*time.Second, 3)
	_, err := gw.GetCurrentCycleID(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPlaceSlip_IdempotentByContentDigest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(rpcResponse{Result: mustJSON(t, "0xslip")})
	}))
	defer srv.Close()

	gw := NewRPCGateway(srv.URL, "", nil, 2*time.Second, 3)
	var predictions [10]domain.Prediction
	for i := range predictions {
		predictions[i] = domain.Prediction{FixtureID: string(rune('a' + i)), Selection: domain.SelHome(), SelectedOddX1000: 2000}
	}

	h1, err := gw.PlaceSlip(context.Background(), "0xplayer", predictions)
	require.NoError(t, err)
	h2, err := gw.PlaceSlip(context.Background(), "0xplayer", predictions)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
