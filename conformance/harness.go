// conformance/harness.go
// Package conformance provides a test harness that runs the full service
// stack (repository, schema validation, media store, HTTP mux) over an
// in-memory chain, and verifies the HTTP surface end to end.
package conformance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wishplanet/wishplanet-go/internal/chain"
	"github.com/wishplanet/wishplanet-go/internal/event"
	"github.com/wishplanet/wishplanet-go/internal/media"
	"github.com/wishplanet/wishplanet-go/internal/model"
	"github.com/wishplanet/wishplanet-go/internal/repository"
	"github.com/wishplanet/wishplanet-go/internal/schema"
	"github.com/wishplanet/wishplanet-go/internal/server"
)

// harnessAccount is the fixed account the fake chain signs as.
var harnessAccount = common.HexToAddress("0xABC0000000000000000000000000000000000abc")

// fakeChain is an in-memory implementation of repository.Chain. Submitted
// payloads become readable records immediately, so the HTTP surface can be
// exercised end to end without a node.
type fakeChain struct {
	mu      sync.Mutex
	records []model.MethodCallRecord
	byTx    map[common.Hash]model.MethodCallRecord
	likes   map[common.Address]int64
	rewards map[common.Address]*big.Int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		byTx:    make(map[common.Hash]model.MethodCallRecord),
		likes:   make(map[common.Address]int64),
		rewards: make(map[common.Address]*big.Int),
	}
}

func (f *fakeChain) Account() (common.Address, error) {
	return harnessAccount, nil
}

func (f *fakeChain) Submit(ctx context.Context, payload []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record := model.MethodCallRecord{
		Caller:     harnessAccount.Hex(),
		MethodName: "storeData",
		Data:       payload,
		Timestamp:  time.Now().UTC(),
	}
	txHash := common.BigToHash(big.NewInt(int64(len(f.records) + 1)))
	f.records = append(f.records, record)
	f.byTx[txHash] = record
	return txHash.Hex(), nil
}

func (f *fakeChain) ReadAllRecords(ctx context.Context) ([]model.MethodCallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.MethodCallRecord(nil), f.records...), nil
}

func (f *fakeChain) ReadRecordByIndex(ctx context.Context, index uint64) (model.MethodCallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index >= uint64(len(f.records)) {
		return model.MethodCallRecord{}, chain.ErrNotFound
	}
	return f.records[index], nil
}

func (f *fakeChain) ReadRecordByTx(ctx context.Context, txHash common.Hash) (model.MethodCallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.byTx[txHash]
	if !ok {
		return model.MethodCallRecord{}, chain.ErrNotFound
	}
	return record, nil
}

func (f *fakeChain) ReadEventLogsLegacy(ctx context.Context, account common.Address) ([]model.MethodCallRecord, error) {
	return f.ReadAllRecords(ctx)
}

func (f *fakeChain) Likes(ctx context.Context, wisher common.Address) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.likes[wisher], nil
}

func (f *fakeChain) TotalRewards(ctx context.Context, wisher common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rewards[wisher]; ok {
		return new(big.Int).Set(r), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) Like(ctx context.Context, wisher common.Address, multiplier int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.likes[wisher] += multiplier
	return common.BigToHash(big.NewInt(int64(len(f.records) + 1000))).Hex(), nil
}

func (f *fakeChain) Reward(ctx context.Context, wisher common.Address, amountWei *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total, ok := f.rewards[wisher]
	if !ok {
		total = big.NewInt(0)
		f.rewards[wisher] = total
	}
	total.Add(total, amountWei)
	return common.BigToHash(big.NewInt(int64(len(f.records) + 2000))).Hex(), nil
}

// Harness runs the assembled service over httptest.
type Harness struct {
	server *httptest.Server
	chain  *fakeChain
	pub    event.Publisher
}

// NewHarness assembles the full stack with in-memory backends.
func NewHarness() (*Harness, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema validator: %w", err)
	}

	fc := newFakeChain()
	pub := event.NewNoopPublisher()
	repo := repository.New(fc, media.NewMemory(), validator, pub, nil, 100<<20, nil)
	mux := server.NewMux(repo, nil, nil, nil, 100<<20, nil)

	return &Harness{
		server: httptest.NewServer(mux),
		chain:  fc,
		pub:    pub,
	}, nil
}

// URL returns the base URL of the test server.
func (h *Harness) URL() string {
	return h.server.URL
}

// Close shuts down the test server and cleans up resources.
func (h *Harness) Close() {
	h.server.Close()
	h.pub.Close()
}

// RunConformanceTests runs all conformance tests against the service.
func (h *Harness) RunConformanceTests(t *testing.T) {
	t.Run("HealthEndpoints", h.testHealthEndpoints)
	t.Run("WishLifecycle", h.testWishLifecycle)
	t.Run("SchemaValidation", h.testSchemaValidation)
	t.Run("ErrorEnvelope", h.testErrorEnvelope)
}

// postJSON posts a JSON body and decodes the response envelope.
func (h *Harness) postJSON(t *testing.T, path string, body, out any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(h.URL()+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return resp
}

func (h *Harness) getJSON(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(h.URL() + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return resp
}

// testHealthEndpoints verifies the liveness and readiness endpoints.
func (h *Harness) testHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(h.URL() + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

// testWishLifecycle creates a wish over HTTP, lists it back, fetches it by
// id, likes it, and checks that counters are reflected in listings.
func (h *Harness) testWishLifecycle(t *testing.T) {
	var created model.CreateWishResponse
	resp := h.postJSON(t, "/v1/wishes", model.CreateWishRequest{Nickname: "Ann", Content: "peace"}, &created)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, want 200", resp.StatusCode)
	}
	if created.Data.Content != "peace" || created.Data.Creator != harnessAccount.Hex() {
		t.Fatalf("created wish = %+v, want content peace by %s", created.Data, harnessAccount.Hex())
	}

	var listed model.ListWishesResponse
	h.getJSON(t, "/v1/wishes", &listed)
	if len(listed.Data) != 1 {
		t.Fatalf("listed %d wishes, want 1", len(listed.Data))
	}

	var fetched model.GetWishResponse
	resp = h.getJSON(t, "/v1/wishes/"+listed.Data[0].ID, &fetched)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	if fetched.Data.Content != "peace" {
		t.Errorf("fetched content = %q, want peace", fetched.Data.Content)
	}

	var tx model.TxResponse
	resp = h.postJSON(t, "/v1/wishes/like", model.LikeWishRequest{Creator: harnessAccount.Hex(), Multiplier: 3}, &tx)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("like status = %d, want 200", resp.StatusCode)
	}
	if tx.Data.TxHash == "" {
		t.Error("like returned an empty transaction hash")
	}

	h.getJSON(t, "/v1/wishes", &listed)
	if listed.Data[0].Likes != 3 {
		t.Errorf("likes after like = %d, want 3", listed.Data[0].Likes)
	}
}

// testSchemaValidation verifies that envelope validation rejects bad input
// before anything reaches the chain.
func (h *Harness) testSchemaValidation(t *testing.T) {
	resp := h.postJSON(t, "/v1/wishes", model.CreateWishRequest{Nickname: "Ann"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("create with empty content status = %d, want 400", resp.StatusCode)
	}
}

// testErrorEnvelope verifies the error response shape.
func (h *Harness) testErrorEnvelope(t *testing.T) {
	var envelope struct {
		Error struct {
			Code          string `json:"code"`
			Message       string `json:"message"`
			CorrelationID string `json:"correlationId"`
		} `json:"error"`
	}
	resp := h.getJSON(t, "/v1/wishes/method_call_999", &envelope)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if envelope.Error.Code != "WISH_NOT_FOUND" {
		t.Errorf("error code = %q, want WISH_NOT_FOUND", envelope.Error.Code)
	}
	if envelope.Error.CorrelationID == "" {
		t.Error("error envelope missing correlationId")
	}
}
