// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/blinklabs-io/votechain/api"
	"github.com/blinklabs-io/votechain/auth"
	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/keystore"
	"github.com/blinklabs-io/votechain/ledger"
	"github.com/blinklabs-io/votechain/mempool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceToken = "alice-token"
	bobToken   = "bob-token"
)

type testEnv struct {
	api    *api.Api
	ledger *ledger.Ledger
	reg    *prometheus.Registry
	pub    string
	sign   func(payload string) string
}

func newTestEnv(t *testing.T, cfg api.ApiConfig, lcfg ledger.LedgerConfig) *testEnv {
	t.Helper()
	if lcfg.Difficulty == 0 {
		lcfg.Difficulty = 1
	}
	l, err := ledger.NewLedger(lcfg)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	reg := prometheus.NewRegistry()
	cfg.PromRegistry = reg
	if cfg.Authenticator == nil {
		cfg.Authenticator = auth.Chain{auth.NewStaticTokens(map[string]string{
			aliceToken: "alice",
			bobToken:   "bob",
		})}
	}
	priv, err := keystore.GenerateKeyPair()
	require.NoError(t, err)
	pub, err := keystore.EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return &testEnv{
		api:    api.New(cfg, l),
		ledger: l,
		reg:    reg,
		pub:    pub,
		sign: func(payload string) string {
			sig, err := keystore.Sign(priv, payload)
			require.NoError(t, err)
			return sig
		},
	}
}

func (e *testEnv) do(
	t *testing.T,
	method string,
	path string,
	token string,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.api.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) vote(voter string, candidate string) api.SubmitRequest {
	return api.SubmitRequest{
		CandidateId:     candidate,
		SenderPublicKey: e.pub,
		Signature:       e.sign(voter + candidate + e.pub),
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestBlockchainReturnsGenesis(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{})
	rec := env.do(t, http.MethodGet, "/api/v1/blockchain", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode[api.ChainResponse](t, rec)
	assert.Equal(t, 1, resp.Length)
	assert.True(t, resp.IsValid)
	require.Len(t, resp.Chain, 1)
	assert.Equal(t, chain.GenesisPreviousHash, resp.Chain[0].PreviousHash)
}

func TestSubmitMineFlow(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{})

	rec := env.do(t, http.MethodPost, "/api/v1/transactions/new", aliceToken, env.vote("alice", "C1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[api.MessageResponse](t, rec)
	assert.Equal(t, "Transaction will be added to Block 1 by voter: alice", msg.Message)

	rec = env.do(t, http.MethodGet, "/api/v1/transactions/pending", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[api.PendingResponse](t, rec)
	assert.Equal(t, 1, pending.Count)
	assert.Equal(t, "alice", pending.PendingTransactions[0].VoterId)

	rec = env.do(t, http.MethodPost, "/api/v1/mine", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mined := decode[map[string]json.RawMessage](t, rec)
	assert.JSONEq(t, `"New Block Forged!"`, string(mined["message"]))
	assert.JSONEq(t, `[]`, string(mined["pendingTransactionsAfterMine"]))
	var block chain.Block
	require.NoError(t, json.Unmarshal(mined["block"], &block))
	assert.Equal(t, uint64(1), block.Index)
	assert.True(t, chain.MeetsDifficulty(block.Hash, 1))

	rec = env.do(t, http.MethodGet, "/api/v1/mine", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	noop := decode[map[string]json.RawMessage](t, rec)
	assert.JSONEq(t, `"No pending transactions to mine."`, string(noop["message"]))
	assert.NotContains(t, noop, "block")
	assert.NotContains(t, noop, "pendingTransactionsAfterMine")

	rec = env.do(t, http.MethodGet, "/api/v1/chain/valid", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[api.ValidityResponse](t, rec).Valid)
	assert.Equal(t, 2, env.ledger.Len())
}

func TestSubmitRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{})
	for _, token := range []string{"", "wrong-token"} {
		rec := env.do(t, http.MethodPost, "/api/v1/transactions/new", token, env.vote("alice", "C1"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
		assert.Equal(t, api.ErrorKindUnauthenticated, decode[api.ErrorResponse](t, rec).Error)
	}
	assert.Empty(t, env.ledger.PendingTransactions())
}

func TestSubmitVoterIdComesFromIdentity(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{})
	// signed as alice but presented with bob's token
	rec := env.do(t, http.MethodPost, "/api/v1/transactions/new", bobToken, env.vote("alice", "C1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.ErrorKindSignatureVerificationFailed, decode[api.ErrorResponse](t, rec).Error)
}

func TestSubmitErrorKinds(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{})
	good := env.vote("alice", "C1")
	tests := []struct {
		name string
		body any
		kind string
	}{
		{
			name: "missing candidate",
			body: api.SubmitRequest{SenderPublicKey: good.SenderPublicKey, Signature: good.Signature},
			kind: api.ErrorKindInvalidTransaction,
		},
		{
			name: "garbage key",
			body: api.SubmitRequest{CandidateId: "C1", SenderPublicKey: "not-a-key", Signature: good.Signature},
			kind: api.ErrorKindMalformedKeyMaterial,
		},
		{
			name: "missing signature",
			body: api.SubmitRequest{CandidateId: "C1", SenderPublicKey: good.SenderPublicKey},
			kind: api.ErrorKindMalformedKeyMaterial,
		},
		{
			name: "wrong candidate",
			body: api.SubmitRequest{CandidateId: "C2", SenderPublicKey: good.SenderPublicKey, Signature: good.Signature},
			kind: api.ErrorKindSignatureVerificationFailed,
		},
		{
			name: "unknown field",
			body: map[string]string{"candidateId": "C1", "voterId": "mallory"},
			kind: api.ErrorKindBadRequest,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/transactions/new", aliceToken, test.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, test.kind, decode[api.ErrorResponse](t, rec).Error)
		})
	}
	assert.Empty(t, env.ledger.PendingTransactions())
}

func TestSubmitDuplicateVote(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{OneVotePerVoter: true})
	rec := env.do(t, http.MethodPost, "/api/v1/transactions/new", aliceToken, env.vote("alice", "C1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/v1/transactions/new", aliceToken, env.vote("alice", "C2"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, api.ErrorKindDuplicateVote, decode[api.ErrorResponse](t, rec).Error)
}

func TestSubmitWithAuthDisabled(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{AuthDisabled: true}, ledger.LedgerConfig{})
	body, err := json.Marshal(env.vote("carol", "C1"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/new", strings.NewReader(string(body)))
	req.Header.Set(api.VoterIdHeader, "carol")
	rec := httptest.NewRecorder()
	env.api.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/transactions/new", "", env.vote("carol", "C1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitRejectsOversizedBody(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{})
	body := `{"candidateId":"` + strings.Repeat("x", 128<<10) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/new", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	rec := httptest.NewRecorder()
	env.api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.ErrorKindBadRequest, decode[api.ErrorResponse](t, rec).Error)
}

func TestGenerateKeys(t *testing.T) {
	disabled := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{})
	rec := disabled.do(t, http.MethodGet, "/api/v1/generateKeys", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	enabled := newTestEnv(t, api.ApiConfig{EnableKeyGeneration: true}, ledger.LedgerConfig{})
	rec = enabled.do(t, http.MethodGet, "/api/v1/generateKeys", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pair := decode[api.KeyPairResponse](t, rec)
	priv, err := keystore.DecodePrivateKey(pair.PrivateKey)
	require.NoError(t, err)
	pub, err := keystore.DecodePublicKey(pair.PublicKey)
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(pub))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{})
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.HealthResponse](t, rec)
	assert.True(t, resp.IsHealthy)
	assert.Equal(t, 1, resp.ChainLength)
}

func TestHealthAnswersDuringMining(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{})
	// Mining holds the writer lock for the whole proof-of-work search
	env.ledger.Lock()
	defer env.ledger.Unlock()
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- env.do(t, http.MethodGet, "/health", "", nil) }()
	select {
	case rec := <-done:
		assert.Equal(t, http.StatusOK, rec.Code)
	case <-time.After(time.Second):
		t.Fatal("health check blocked behind the ledger lock")
	}
}

func TestGRPCHealth(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{})
	server := httptest.NewServer(env.api.Handler())
	defer server.Close()

	check := func(service string) *http.Response {
		t.Helper()
		resp, err := server.Client().Post(
			server.URL+"/"+grpchealth.HealthV1ServiceName+"/Check",
			"application/json",
			strings.NewReader(`{"service":"`+service+`"}`),
		)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := check(api.HealthServiceName)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "SERVING_STATUS_SERVING", body["status"])

	resp = check("other")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestMetrics(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{}, ledger.LedgerConfig{})
	env.do(t, http.MethodGet, "/api/v1/blockchain", "", nil)
	env.do(t, http.MethodGet, "/api/v1/blockchain", "", nil)
	env.do(t, http.MethodPost, "/api/v1/transactions/new", "", nil)
	count, err := testutil.GatherAndCount(env.reg, "votechain_api_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// stubLedger returns canned errors for the mapping tests
type stubLedger struct {
	submitErr error
	mineErr   error
}

func (s *stubLedger) Chain() []chain.Block                     { return nil }
func (s *stubLedger) Len() int                                 { return 0 }
func (s *stubLedger) ValidateChain() error                     { return ledger.ErrEmptyLedger }
func (s *stubLedger) PendingTransactions() []chain.Transaction { return nil }

func (s *stubLedger) SubmitTransaction(context.Context, chain.Transaction) error {
	return s.submitErr
}

func (s *stubLedger) MinePending(context.Context) (*chain.Block, error) {
	return nil, s.mineErr
}

func TestLedgerErrorMapping(t *testing.T) {
	stub := &stubLedger{
		submitErr: &mempool.MempoolFullError{CurrentCount: 1, Capacity: 1},
		mineErr:   errors.New("boom"),
	}
	a := api.New(api.ApiConfig{AuthDisabled: true, PromRegistry: prometheus.NewRegistry()}, stub)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/new", strings.NewReader(`{"candidateId":"C1"}`))
	req.Header.Set(api.VoterIdHeader, "alice")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, api.ErrorKindPoolFull, decode[api.ErrorResponse](t, rec).Error)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/mine", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chain/valid", nil))
	resp := decode[api.ValidityResponse](t, rec)
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Error)
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t, api.ApiConfig{
		Listener: api.ListenerConfig{ListenNetwork: "tcp", ListenAddress: "127.0.0.1:0"},
	}, ledger.LedgerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.api.Start(ctx))
	assert.Error(t, env.api.Start(ctx))

	resp, err := http.Get("http://" + env.api.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, env.api.Stop(context.Background()))
	require.NoError(t, env.api.Stop(context.Background()))
}
