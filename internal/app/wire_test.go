package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/auth"
	"github.com/stakehouse/platform/internal/guard"
	"github.com/stakehouse/platform/internal/infra"
	"github.com/stakehouse/platform/internal/projection"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stakehouse/platform/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	t        *testing.T
	srv      *httptest.Server
	jwt      *auth.JWTManager
	relay    *infra.OutboxRelay
	operator string
	viewer   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	runner := repository.NewTxRunner(store, repository.DefaultRetryPolicy(), logger)
	services := NewServices(runner, PolicyFromConfig(&infra.Config{
		MinStake: 1, MaxStake: 1_000_000, MaxRequestAmount: 10_000_000,
		ReferralEnabled: true, ReferralBonus: 100, ReferralMaxPerUser: 10,
	}), nil, logger)

	jwtMgr := auth.NewJWTManager("test-secret-that-is-long-enough-32", time.Hour, time.Hour)
	projections := projection.NewInMemoryStore()
	relay := infra.NewOutboxRelay(runner,
		[]infra.Sink{infra.NewProjectionSink(projection.NewProjector(projections))},
		guard.NewCircuitBreaker(3, time.Second), logger)

	router := NewRouter(RouterDeps{
		Store:       store,
		Services:    services,
		JWTMgr:      jwtMgr,
		Limiter:     guard.NewRateLimiter(1000, time.Minute),
		Dedup:       guard.NewIdempotencyGuard(time.Hour),
		Projections: projections,
		CORSOrigins: "*",
		Logger:      logger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	env := &testEnv{t: t, srv: srv, jwt: jwtMgr, relay: relay}
	env.operator = env.token(auth.RealmOperator, uuid.New(), auth.RoleSuperAdmin)
	env.viewer = env.token(auth.RealmOperator, uuid.New(), auth.RoleViewer)
	return env
}

func (e *testEnv) token(realm auth.Realm, id uuid.UUID, role string) string {
	tok, err := e.jwt.GenerateToken(realm, id, role)
	require.NoError(e.t, err)
	return tok
}

func (e *testEnv) do(method, path, token string, body any, headers ...string) (int, map[string]any) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(e.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	if len(raw) > 0 {
		require.NoError(e.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

// player creates, approves and funds an account, returning its id and token.
func (e *testEnv) player(name string, cash int64) (string, string) {
	e.t.Helper()
	status, acct := e.do(http.MethodPost, "/admin/accounts", e.operator, map[string]any{"display_name": name})
	require.Equal(e.t, http.StatusCreated, status, acct)
	id := acct["id"].(string)

	status, body := e.do(http.MethodPost, "/admin/accounts/"+id+"/approve", e.operator, nil)
	require.Equal(e.t, http.StatusOK, status, body)

	if cash > 0 {
		status, body = e.do(http.MethodPost, "/admin/accounts/"+id+"/adjustments", e.operator,
			map[string]any{"currency": "cash", "amount": cash, "note": "seed"})
		require.Equal(e.t, http.StatusCreated, status, body)
	}

	status, body = e.do(http.MethodPost, "/admin/accounts/"+id+"/token", e.operator, nil)
	require.Equal(e.t, http.StatusCreated, status, body)
	return id, body["token"].(string)
}

func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestRouter_AuthBoundaries(t *testing.T) {
	env := newTestEnv(t)
	_, playerTok := env.player("alice", 0)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"no token on player route", http.MethodGet, "/accounts/me", "", nil, http.StatusUnauthorized},
		{"operator token on player route", http.MethodGet, "/accounts/me", env.operator, nil, http.StatusUnauthorized},
		{"player token on admin route", http.MethodGet, "/admin/requests", playerTok, nil, http.StatusUnauthorized},
		{"viewer may read", http.MethodGet, "/admin/requests", env.viewer, nil, http.StatusOK},
		{"viewer may not write", http.MethodPost, "/admin/accounts", env.viewer, map[string]any{"display_name": "x"}, http.StatusForbidden},
		{"garbage token", http.MethodGet, "/accounts/me", "not-a-jwt", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := env.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestRouter_RoomMatch(t *testing.T) {
	env := newTestEnv(t)
	hostID, host := env.player("host", 500)
	guestID, guest := env.player("guest", 500)

	status, room := env.do(http.MethodPost, "/rooms", host, map[string]any{"stake": 100, "currency": "cash"})
	require.Equal(t, http.StatusCreated, status, room)
	roomID := room["id"].(string)
	assert.Equal(t, "waiting", room["state"])

	status, body := env.do(http.MethodPost, "/rooms/"+roomID+"/join", host, nil)
	assert.Equal(t, http.StatusBadRequest, status, "host cannot join own room: %v", body)

	status, body = env.do(http.MethodPost, "/rooms/"+roomID+"/join", guest, nil)
	require.Equal(t, http.StatusOK, status, body)

	status, body = env.do(http.MethodPost, "/rooms/"+roomID+"/choice", host, map[string]any{"choice": "rock"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Nil(t, body["settled"])

	status, body = env.do(http.MethodPost, "/rooms/"+roomID+"/choice", guest, map[string]any{"choice": "lizard"})
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, body = env.do(http.MethodPost, "/rooms/"+roomID+"/choice", guest, map[string]any{"choice": "scissors"})
	require.Equal(t, http.StatusOK, status, body)
	settled, ok := body["settled"].(map[string]any)
	require.True(t, ok, body)
	assert.Equal(t, "host", settled["result"])
	assert.Equal(t, float64(10), settled["fee"])
	deltas, ok := settled["deltas"].([]any)
	require.True(t, ok, settled)
	require.NotEmpty(t, deltas)
	payout := deltas[0].(map[string]any)
	assert.Equal(t, hostID, payout["account_id"])
	assert.Equal(t, "cash", payout["currency"])
	assert.NotContains(t, payout, "AccountID")

	status, body = env.do(http.MethodPost, "/rooms/"+roomID+"/end", guest, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "completed", body["state"])

	for _, id := range []string{hostID, guestID} {
		status, body = env.do(http.MethodGet, "/admin/accounts/"+id+"/verify", env.viewer, nil)
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, true, body["all_passed"], body)
	}

	_, me := env.do(http.MethodGet, "/accounts/me", host, nil)
	hostCash := me["cash_balance"].(float64)
	assert.Greater(t, hostCash, float64(500), "round winner gained")

	// Projections catch up once the outbox is relayed.
	status, _ = env.do(http.MethodGet, "/projections/balance", host, nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NoError(t, env.relay.Drain(context.Background()))

	status, proj := env.do(http.MethodGet, "/projections/balance", host, nil)
	require.Equal(t, http.StatusOK, status, proj)
	assert.Equal(t, hostCash, proj["cash"])

	status, proj = env.do(http.MethodGet, "/projections/rooms/"+roomID, host, nil)
	require.Equal(t, http.StatusOK, status, proj)
	assert.Equal(t, "completed", proj["state"])
}

func TestRouter_RequestLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.player("filer", 1000)

	body := map[string]any{"type": "withdrawal", "amount": 300}
	status, filed := env.do(http.MethodPost, "/requests", tok, body, "Idempotency-Key", "w-1")
	require.Equal(t, http.StatusCreated, status, filed)
	reqID := filed["id"].(string)

	status, dup := env.do(http.MethodPost, "/requests", tok, body, "Idempotency-Key", "w-1")
	assert.Equal(t, http.StatusConflict, status, dup)

	_, me := env.do(http.MethodGet, "/accounts/me", tok, nil)
	assert.Equal(t, float64(700), me["cash_balance"], "duplicate filing reserved nothing")

	status, queue := env.do(http.MethodGet, "/admin/requests", env.viewer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, queue["requests"], 1)

	status, body2 := env.do(http.MethodPost, "/admin/requests/"+reqID+"/decision", env.viewer, map[string]any{"approve": true})
	assert.Equal(t, http.StatusForbidden, status, body2)

	status, body2 = env.do(http.MethodPost, "/admin/requests/"+reqID+"/decision", env.operator, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status, "approve is required: %v", body2)

	status, body2 = env.do(http.MethodPost, "/admin/requests/"+reqID+"/decision", env.operator, map[string]any{"approve": false})
	require.Equal(t, http.StatusOK, status, body2)
	assert.Equal(t, "declined", body2["status"])

	status, body2 = env.do(http.MethodPost, "/admin/requests/"+reqID+"/decision", env.operator, map[string]any{"approve": true})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "REQUEST_ALREADY_PROCESSED", body2["code"])

	_, me = env.do(http.MethodGet, "/accounts/me", tok, nil)
	assert.Equal(t, float64(1000), me["cash_balance"])
}

func TestRouter_EventBetting(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.player("punter", 1000)

	status, ev := env.do(http.MethodPost, "/admin/events", env.operator, map[string]any{
		"title":           "Derby",
		"outcome_a":       "Reds",
		"outcome_b":       "Blues",
		"odds_a":          "2.0",
		"odds_b":          "1.5",
		"currency":        "cash",
		"end_time":        time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"initial_funding": 1000,
	})
	require.Equal(t, http.StatusCreated, status, ev)
	eventID := ev["id"].(string)

	status, bet := env.do(http.MethodPost, "/events/"+eventID+"/bets", tok, map[string]any{"outcome": "A", "stake": 100})
	require.Equal(t, http.StatusCreated, status, bet)

	status, body := env.do(http.MethodPost, "/admin/events/"+eventID+"/lock", env.operator, nil)
	require.Equal(t, http.StatusOK, status, body)

	status, body = env.do(http.MethodPost, "/events/"+eventID+"/bets", tok, map[string]any{"outcome": "A", "stake": 100})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "BETTING_CLOSED", body["code"])

	status, body = env.do(http.MethodPost, "/admin/events/"+eventID+"/resolve", env.operator, map[string]any{"winning_outcome": "A"})
	require.Equal(t, http.StatusOK, status, body)

	_, me := env.do(http.MethodGet, "/accounts/me", tok, nil)
	assert.Equal(t, float64(1100), me["cash_balance"], "stake 100 at 2.0 pays 200")

	status, bets := env.do(http.MethodGet, "/accounts/me/bets", tok, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, bets["bets"], 1)
}
