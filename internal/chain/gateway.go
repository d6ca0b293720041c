// Package chain abstracts the on-chain Oddyssey contract: submitting daily
// cycles and results, reading back cycle state, placing slips, and
// claiming prizes, all with retries, rate limiting, and caller-visible
// idempotency. Real ABI encoding against a live node is an external
// collaborator, out of scope here; this gateway speaks a JSON-RPC-shaped
// transport that a production deployment would swap for go-ethereum's
// bound contract client.
package chain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/oddyssey-cycle/engine/internal/apperr"
	"github.com/oddyssey-cycle/engine/internal/domain"
	"github.com/oddyssey-cycle/engine/internal/retry"
	"github.com/oddyssey-cycle/engine/internal/telemetry"
	"golang.org/x/time/rate"
)

// Gateway is the chain surface the core depends on.
type Gateway interface {
	SubmitDailyCycle(ctx context.Context, cycleID int64, matches [10]domain.CycleMatch) (txHash string, err error)
	SubmitCycleResults(ctx context.Context, cycleID int64, matches [10]domain.CycleMatch) (txHash string, err error)
	GetCurrentCycleID(ctx context.Context) (int64, error)
	GetCycleMatches(ctx context.Context, cycleID int64) ([10]domain.CycleMatch, error)
	PlaceSlip(ctx context.Context, player string, predictions [10]domain.Prediction) (txHash string, err error)
	ClaimOddysseyPrize(ctx context.Context, cycleID, slipID int64, player string) (txHash string, err error)
}

// RPCGateway is the concrete Gateway, talking JSON-RPC-shaped requests to a
// primary endpoint with an optional fallback.
type RPCGateway struct {
	httpClient  *http.Client
	primaryURL  string
	fallbackURL string
	signer      *Signer
	limiter     *rate.Limiter
	retryPolicy retry.Policy

	mu     sync.Mutex
	effects map[string]string // natural key -> observed tx hash, for idempotency
}

// NewRPCGateway constructs a gateway. rpcTimeout bounds a single HTTP call;
// maxRetries feeds the retry policy for transient failures.
func NewRPCGateway(primaryURL, fallbackURL string, signer *Signer, rpcTimeout time.Duration, maxRetries int) *RPCGateway {
	return &RPCGateway{
		httpClient:  &http.Client{Timeout: rpcTimeout},
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		signer:      signer,
		limiter:     rate.NewLimiter(rate.Limit(5), 10),
		retryPolicy: retry.Policy{MaxAttempts: maxRetries, BaseBackoff: 200 * time.Millisecond, Cap: 5 * time.Second, Classify: apperr.Classify},
		effects:     make(map[string]string),
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
	Oracle string `json:"oracleSignature,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call issues a single rate-limited, retried JSON-RPC-shaped POST. oracleSigned
// requests carry an ECDSA signature over the marshaled params, authorizing
// oracle-only methods (startDailyCycle, resolveDailyCycle).
func (g *RPCGateway) call(ctx context.Context, method string, params any, oracleSigned bool) (json.RawMessage, error) {
	var result json.RawMessage
	err := g.retryPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return apperr.NewTransient("rate limiter wait", err)
		}

		req := rpcRequest{Method: method, Params: params}
		if oracleSigned && g.signer.Enabled() {
			payload, _ := json.Marshal(params)
			sig, err := g.signer.Sign(payload)
			if err != nil {
				return apperr.Wrap(apperr.CodeContractReverted, err)
			}
			req.Oracle = sig
		}

		url := g.primaryURL
		if attempt > 1 && g.fallbackURL != "" {
			url = g.fallbackURL
		}

		resp, err := g.post(ctx, url, req)
		if err != nil {
			return apperr.NewTransient("rpc post failed", err)
		}
		if resp.Error != nil {
			return classifyRPCError(resp.Error)
		}
		result = resp.Result
		return nil
	})
	return result, err
}

func (g *RPCGateway) post(ctx context.Context, url string, req rpcRequest) (*rpcResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("chain: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chain: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chain: http do: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chain: read response: %w", err)
	}

	telemetry.Metrics.RPCLatency.Record(time.Since(start))
	telemetry.Infof("chain: %s -> %d (%s)", req.Method, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("chain: %s: server error %d", req.Method, resp.StatusCode)
	}

	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("chain: decode response: %w", err)
	}
	return &out, nil
}

func classifyRPCError(e *rpcError) error {
	switch {
	case e.Code >= 500:
		return apperr.NewTransient(e.Message, fmt.Errorf("rpc error %d", e.Code))
	case e.Code == 409: // nonce conflict
		return apperr.New(apperr.CodeNonceAccountingFailure, e.Message)
	default:
		return apperr.New(apperr.CodeContractReverted, e.Message, "code", e.Code)
	}
}

// idempotent returns a cached tx hash for key if seen before, else calls fn
// and caches the result.
func (g *RPCGateway) idempotent(key string, fn func() (string, error)) (string, error) {
	g.mu.Lock()
	if hash, ok := g.effects[key]; ok {
		g.mu.Unlock()
		return hash, nil
	}
	g.mu.Unlock()

	hash, err := fn()
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.effects[key] = hash
	g.mu.Unlock()
	return hash, nil
}

type wireMatch struct {
	FixtureID string `json:"fixtureId"`
	StartTime int64  `json:"startTime"`
	OddsHome  uint32 `json:"oddsHome"`
	OddsDraw  uint32 `json:"oddsDraw"`
	OddsAway  uint32 `json:"oddsAway"`
	OddsOver  uint32 `json:"oddsOver"`
	OddsUnder uint32 `json:"oddsUnder"`
	Moneyline int    `json:"moneyline"`
	OverUnder int    `json:"overUnder"`
}

func toWireMatches(matches [10]domain.CycleMatch) [10]wireMatch {
	var out [10]wireMatch
	for i, m := range matches {
		out[i] = wireMatch{
			FixtureID: m.FixtureID,
			StartTime: m.KickoffUnix,
			OddsHome:  m.OddsHomeX1000,
			OddsDraw:  m.OddsDrawX1000,
			OddsAway:  m.OddsAwayX1000,
			OddsOver:  m.OddsOverX1000,
			OddsUnder: m.OddsUnderX1000,
			Moneyline: int(m.Moneyline),
			OverUnder: int(m.OverUnder),
		}
	}
	return out
}

func (g *RPCGateway) SubmitDailyCycle(ctx context.Context, cycleID int64, matches [10]domain.CycleMatch) (string, error) {
	key := fmt.Sprintf("create:%d", cycleID)
	return g.idempotent(key, func() (string, error) {
		params := map[string]any{"cycleId": cycleID, "matches": toWireMatches(matches)}
		result, err := g.call(ctx, "startDailyCycle", params, true)
		if err != nil {
			return "", err
		}
		return decodeTxHash(result)
	})
}

func (g *RPCGateway) SubmitCycleResults(ctx context.Context, cycleID int64, matches [10]domain.CycleMatch) (string, error) {
	key := fmt.Sprintf("resolve:%d", cycleID)
	return g.idempotent(key, func() (string, error) {
		params := map[string]any{"cycleId": cycleID, "matches": toWireMatches(matches)}
		result, err := g.call(ctx, "resolveDailyCycle", params, true)
		if err != nil {
			return "", err
		}
		return decodeTxHash(result)
	})
}

func (g *RPCGateway) GetCurrentCycleID(ctx context.Context) (int64, error) {
	result, err := g.call(ctx, "dailyCycleId", nil, false)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := json.Unmarshal(result, &id); err != nil {
		return 0, fmt.Errorf("chain: decode cycle id: %w", err)
	}
	return id, nil
}

func (g *RPCGateway) GetCycleMatches(ctx context.Context, cycleID int64) ([10]domain.CycleMatch, error) {
	var out [10]domain.CycleMatch
	result, err := g.call(ctx, "getCycleMatches", map[string]any{"cycleId": cycleID}, false)
	if err != nil {
		return out, err
	}
	var wire [10]wireMatch
	if err := json.Unmarshal(result, &wire); err != nil {
		return out, fmt.Errorf("chain: decode cycle matches: %w", err)
	}
	for i, w := range wire {
		out[i] = domain.CycleMatch{
			DisplayOrder:   i + 1,
			FixtureID:      w.FixtureID,
			KickoffUnix:    w.StartTime,
			OddsHomeX1000:  w.OddsHome,
			OddsDrawX1000:  w.OddsDraw,
			OddsAwayX1000:  w.OddsAway,
			OddsOverX1000:  w.OddsOver,
			OddsUnderX1000: w.OddsUnder,
			Moneyline:      domain.MoneylineResult(w.Moneyline),
			OverUnder:      domain.OverUnderResult(w.OverUnder),
		}
	}
	return out, nil
}

type wirePrediction struct {
	FixtureID        string `json:"fixtureId"`
	BetType          int    `json:"betType"`
	SelectionHash    string `json:"selection"`
	SelectedOddX1000 uint32 `json:"selectedOdd"`
}

func (g *RPCGateway) PlaceSlip(ctx context.Context, player string, predictions [10]domain.Prediction) (string, error) {
	key := "slip:" + predictionsDigest(player, predictions)
	return g.idempotent(key, func() (string, error) {
		wire := make([]wirePrediction, len(predictions))
		for i, p := range predictions {
			wire[i] = wirePrediction{
				FixtureID:        p.FixtureID,
				BetType:          int(p.BetType),
				SelectionHash:    p.Selection.KeccakHex(),
				SelectedOddX1000: p.SelectedOddX1000,
			}
		}
		params := map[string]any{"player": player, "predictions": wire}
		result, err := g.call(ctx, "placeSlip", params, false)
		if err != nil {
			return "", err
		}
		return decodeTxHash(result)
	})
}

func (g *RPCGateway) ClaimOddysseyPrize(ctx context.Context, cycleID, slipID int64, player string) (string, error) {
	key := fmt.Sprintf("claim:%d:%d:%s", cycleID, slipID, player)
	return g.idempotent(key, func() (string, error) {
		params := map[string]any{"cycleId": cycleID, "slipId": slipID, "player": player}
		result, err := g.call(ctx, "claimPrize", params, false)
		if err != nil {
			return "", err
		}
		return decodeTxHash(result)
	})
}

func decodeTxHash(raw json.RawMessage) (string, error) {
	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", fmt.Errorf("chain: decode tx hash: %w", err)
	}
	return hash, nil
}

func predictionsDigest(player string, predictions [10]domain.Prediction) string {
	h := sha256.New()
	h.Write([]byte(player))
	for _, p := range predictions {
		h.Write([]byte(p.FixtureID))
		h.Write([]byte(p.Selection.Canonical()))
	}
	return hex.EncodeToString(h.Sum(nil))
}
