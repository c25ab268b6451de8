package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"casino-engine/internal/config"
	"casino-engine/internal/fair"
	"casino-engine/internal/handlers"
	"casino-engine/internal/models"
	"casino-engine/internal/services"
	"casino-engine/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiEnv struct {
	router *gin.Engine
	jwt    *services.JWTService
	ledger *services.Ledger
	crash  *services.CrashEngine
	hub    *handlers.Hub
}

type envOpts struct {
	allowTokenIssue bool
	cache           handlers.CrashStateReader
}

func newAPIEnv(t *testing.T, opts envOpts) *apiEnv {
	t.Helper()
	log := zap.NewNop()

	store, err := storage.Open(filepath.Join(t.TempDir(), "casino.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	jwtService := services.NewJWTService(&config.Config{JWTSecret: "handler-test-secret", JWTTTL: time.Hour})
	ledger := services.NewLedger(store, log, decimal.Zero)
	crash := services.NewCrashEngine(store, ledger, log, services.CrashTiming{Waiting: time.Second, Pause: time.Second})

	hub, err := handlers.NewHub(4, crash, log)
	require.NoError(t, err)
	t.Cleanup(hub.Close)
	crash.SetBroadcaster(hub)

	user := handlers.NewUserHandler(jwtService, ledger, opts.allowTokenIssue, log)
	user.AddHealthCheck("sqlite", store)

	router := handlers.NewRouter(handlers.RouterDeps{
		JWT:    jwtService,
		Log:    log,
		User:   user,
		Wallet: handlers.NewWalletHandler(ledger, opts.allowTokenIssue, log),
		Games: handlers.NewGameHandler(
			services.NewMinesEngine(store, ledger, log),
			services.NewPlinkoEngine(store, ledger, log),
			services.NewDiceEngine(store, ledger, log),
			services.NewSlotsEngine(store, ledger, log),
			log,
		),
		Crash: handlers.NewCrashHandler(crash, opts.cache, log),
		Hub:   hub,
	})

	return &apiEnv{router: router, jwt: jwtService, ledger: ledger, crash: crash, hub: hub}
}

func (e *apiEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	token, _, err := e.jwt.IssueToken(userID)
	require.NoError(t, err)
	return token
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decField(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "expected decimal string, got %T", v)
	return decimal.RequireFromString(s)
}

func TestHealthz(t *testing.T) {
	env := newAPIEnv(t, envOpts{})

	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ok", body["checks"].(map[string]any)["sqlite"])
}

func TestIssueTokenAndMe(t *testing.T) {
	env := newAPIEnv(t, envOpts{allowTokenIssue: true})

	w := env.do(t, http.MethodPost, "/auth/token", "", gin.H{"user_id": 7})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)

	w = env.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(7), body["user_id"])
	assert.NotEmpty(t, body["session_id"])
}

func TestIssueTokenDisabled(t *testing.T) {
	env := newAPIEnv(t, envOpts{})

	w := env.do(t, http.MethodPost, "/auth/token", "", gin.H{"user_id": 7})
	assert.Equal(t, http.StatusForbidden, w.Code)

	env = newAPIEnv(t, envOpts{allowTokenIssue: true})
	w = env.do(t, http.MethodPost, "/auth/token", "", gin.H{"user_id": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newAPIEnv(t, envOpts{})

	w := env.do(t, http.MethodGet, "/api/wallet/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/wallet/balance", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWalletDepositAndHistory(t *testing.T) {
	env := newAPIEnv(t, envOpts{})
	token := env.token(t, 1)

	w := env.do(t, http.MethodPost, "/api/wallet/deposit", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decField(t, decode(t, w)["balance"]).Equal(services.DemoDepositAmount))

	w = env.do(t, http.MethodPost, "/api/wallet/deposit", token, gin.H{"amount": "25.50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/wallet/deposit", token, gin.H{"amount": "-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/wallet/balance", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	bal := decode(t, w)["balance"].(map[string]any)
	assert.True(t, decField(t, bal["balance"]).Equal(services.DemoDepositAmount.Add(decimal.RequireFromString("25.50"))))

	w = env.do(t, http.MethodGet, "/api/wallet/history?kind=deposit&limit=1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])

	w = env.do(t, http.MethodGet, "/api/wallet/history?kind=jackpot", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/wallet/summary", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode(t, w)["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["entry_count"])

	w = env.do(t, http.MethodPost, "/api/wallet/bonus", token, gin.H{"amount": "5"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWalletBonus(t *testing.T) {
	env := newAPIEnv(t, envOpts{allowTokenIssue: true})
	token := env.token(t, 3)

	w := env.do(t, http.MethodPost, "/api/wallet/bonus", token, gin.H{"amount": "12.50", "description": "Weekly reload"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	entry := body["entry"].(map[string]any)
	assert.Equal(t, string(models.EntryBonus), entry["kind"])
	assert.Equal(t, "Weekly reload", entry["description"])
	assert.True(t, decField(t, body["balance"]).Equal(decimal.RequireFromString("12.50")))

	w = env.do(t, http.MethodPost, "/api/wallet/bonus", token, gin.H{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	entryID := int64(entry["id"].(float64))
	w = env.do(t, http.MethodGet, "/api/wallet/history/"+itoa(entryID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/wallet/history/"+itoa(entryID), env.token(t, 4), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	env := newAPIEnv(t, envOpts{})
	token := env.token(t, 1)

	// Unfunded account.
	w := env.do(t, http.MethodPost, "/api/dice", token, gin.H{"bet_amount": "10", "selected_number": 3})
	assert.Equal(t, http.StatusPaymentRequired, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["details"])

	w = env.do(t, http.MethodPost, "/api/dice", token, gin.H{"bet_amount": "10", "selected_number": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/mines/999", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/dice/abc/verify", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/mines", token, "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request", decode(t, w)["error"])
}

func TestMinesOverHTTP(t *testing.T) {
	env := newAPIEnv(t, envOpts{})
	token := env.token(t, 1)
	env.do(t, http.MethodPost, "/api/wallet/deposit", token, nil)

	w := env.do(t, http.MethodPost, "/api/mines", token, gin.H{"bet_amount": "10", "mine_count": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	game := body["game"].(map[string]any)
	assert.Len(t, body["server_seed_hash"], 64)
	assert.NotContains(t, game, "mine_positions")
	id := int64(game["id"].(float64))

	path := "/api/mines/" + itoa(id)

	w = env.do(t, http.MethodGet, path+"/verify", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	verification := decode(t, w)["verification"].(map[string]any)
	assert.NotContains(t, verification, "server_seed")
	assert.NotContains(t, verification, "mine_positions")

	w = env.do(t, http.MethodPost, path+"/cashout", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, path+"/open", token, gin.H{"row": 5, "col": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, path+"/open", token, gin.H{"row": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, path, env.token(t, 2), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/mines", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])
}

func TestPlinkoOverHTTP(t *testing.T) {
	env := newAPIEnv(t, envOpts{})
	token := env.token(t, 1)
	env.do(t, http.MethodPost, "/api/wallet/deposit", token, nil)

	w := env.do(t, http.MethodPost, "/api/plinko", token, gin.H{"bet_amount": "1", "rows": 9, "risk": "low"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := int64(decode(t, w)["game"].(map[string]any)["id"].(float64))

	w = env.do(t, http.MethodPost, "/api/plinko/"+itoa(id)+"/drop", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)["result"].(map[string]any)
	assert.Len(t, result["game"].(map[string]any)["ball_path"], 9)
	assert.Len(t, result["seeds"].(map[string]any)["server_seed"], 64)

	w = env.do(t, http.MethodPost, "/api/plinko/"+itoa(id)+"/drop", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/plinko", token, gin.H{"bet_amount": "1", "rows": 5, "risk": "low", "client_seed": "my-seed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	seeded := int64(decode(t, w)["game"].(map[string]any)["id"].(float64))
	w = env.do(t, http.MethodPost, "/api/plinko/"+itoa(seeded)+"/drop", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "my-seed", decode(t, w)["result"].(map[string]any)["seeds"].(map[string]any)["client_seed"])

	w = env.do(t, http.MethodPost, "/api/plinko/auto", token, gin.H{"bet_amount": "1", "rows": 5, "risk": "high", "drop_count": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(3), decode(t, w)["count"])

	w = env.do(t, http.MethodGet, "/api/plinko/"+itoa(id)+"/verify", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["verification"].(map[string]any)["is_valid"])
}

func TestDiceAndSlotsOverHTTP(t *testing.T) {
	env := newAPIEnv(t, envOpts{})
	token := env.token(t, 1)
	env.do(t, http.MethodPost, "/api/wallet/deposit", token, nil)

	w := env.do(t, http.MethodPost, "/api/dice", token, gin.H{"bet_amount": "5", "selected_number": 4, "client_seed": "lucky"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dice := decode(t, w)["game"].(map[string]any)
	id := int64(dice["id"].(float64))

	w = env.do(t, http.MethodGet, "/api/dice/"+itoa(id)+"/verify", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["verification"].(map[string]any)["is_valid"])

	w = env.do(t, http.MethodPost, "/api/slots", token, gin.H{"bet_amount": "5", "reels_count": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	slots := decode(t, w)["game"].(map[string]any)
	assert.Len(t, slots["reels"], 3)

	w = env.do(t, http.MethodPost, "/api/slots", token, gin.H{"bet_amount": "5", "reels_count": 4})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/slots", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])
}

func TestFairVerifyEndpoint(t *testing.T) {
	env := newAPIEnv(t, envOpts{})

	seeds, err := fair.NewSeeds("player-seed", 4)
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/fair/verify", "", fair.Proof{Game: fair.GameDice, Seeds: seeds})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	replay := decode(t, w)["replay"].(map[string]any)
	assert.Equal(t, true, replay["hash_valid"])
	assert.Equal(t, float64(fair.DiceRoll(seeds)), replay["roll"])

	tampered := seeds
	tampered.ServerSeedHash = strings.Repeat("0", 64)
	w = env.do(t, http.MethodPost, "/api/fair/verify", "", fair.Proof{Game: fair.GameDice, Seeds: tampered})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["replay"].(map[string]any)["hash_valid"])

	w = env.do(t, http.MethodPost, "/api/fair/verify", "", fair.Proof{Game: "roulette", Seeds: seeds})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFairVerifyRejectsOversizedProofs(t *testing.T) {
	env := newAPIEnv(t, envOpts{})
	seeds, err := fair.NewSeeds("", 0)
	require.NoError(t, err)

	for name, proof := range map[string]gin.H{
		"huge board": {"game": "plinko", "seeds": seeds, "rows": int64(1) << 40},
		"huge reels": {"game": "slots", "seeds": seeds, "reels": 5_000_000},
		"odd board":  {"game": "plinko", "seeds": seeds, "rows": 7},
		"few mines":  {"game": "mines", "seeds": seeds, "mine_count": 2},
		"no reels":   {"game": "slots", "seeds": seeds},
		"many mines": {"game": "mines", "seeds": seeds, "mine_count": 24},
	} {
		w := env.do(t, http.MethodPost, "/api/fair/verify", "", proof)
		require.Equal(t, http.StatusBadRequest, w.Code, name)
		assert.Contains(t, decode(t, w)["details"], "invalid proof parameters", name)
	}
}

type staticState struct {
	state  *models.CrashState
	recent []models.RoundSummary
}

func (s staticState) GetCrashState(context.Context) (*models.CrashState, error) {
	return s.state, nil
}

func (s staticState) RecentCrashPoints(_ context.Context, limit int) ([]models.RoundSummary, error) {
	if limit < len(s.recent) {
		return s.recent[:limit], nil
	}
	return s.recent, nil
}

func TestCrashStateEndpoint(t *testing.T) {
	env := newAPIEnv(t, envOpts{})
	token := env.token(t, 1)

	w := env.do(t, http.MethodGet, "/api/crash/state", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["cached"])
	assert.True(t, decField(t, body["state"].(map[string]any)["multiplier"]).Equal(models.One))

	cached := &models.CrashState{RoundID: "round_cached", Status: models.RoundActive, Multiplier: decimal.RequireFromString("1.42")}
	env = newAPIEnv(t, envOpts{cache: staticState{state: cached}})
	w = env.do(t, http.MethodGet, "/api/crash/state", env.token(t, 1), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, "round_cached", body["state"].(map[string]any)["round_id"])
}

func TestCrashHistoryCache(t *testing.T) {
	recent := []models.RoundSummary{
		{RoundID: "round_b", CrashPoint: decimal.RequireFromString("2.10")},
		{RoundID: "round_a", CrashPoint: decimal.RequireFromString("1.00")},
	}
	env := newAPIEnv(t, envOpts{cache: staticState{recent: recent}})
	token := env.token(t, 1)

	w := env.do(t, http.MethodGet, "/api/crash/history?limit=2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, float64(2), body["count"])

	// A partial cache falls through to the store, which is empty here.
	w = env.do(t, http.MethodGet, "/api/crash/history?limit=5", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, float64(0), body["count"])
}

func TestCrashBetOverHTTP(t *testing.T) {
	env := newAPIEnv(t, envOpts{})
	token := env.token(t, 1)
	env.do(t, http.MethodPost, "/api/wallet/deposit", token, nil)

	w := env.do(t, http.MethodPost, "/api/crash/bet", token, gin.H{"amount": "10"})
	assert.Equal(t, http.StatusConflict, w.Code, "no round yet")

	_, err := env.crash.StartNewRound(context.Background())
	require.NoError(t, err)

	w = env.do(t, http.MethodPost, "/api/crash/bet", token, gin.H{"amount": "10", "auto_cashout_target": "2.00"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	betID := int64(decode(t, w)["bet"].(map[string]any)["id"].(float64))

	w = env.do(t, http.MethodGet, "/api/crash/bets", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	// Waiting rounds cannot be cashed out.
	w = env.do(t, http.MethodPost, "/api/crash/bets/"+itoa(betID)+"/cashout", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/crash/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["count"])
}

func TestWebSocketHub(t *testing.T) {
	env := newAPIEnv(t, envOpts{})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?token=" + env.token(t, 1)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg handlers.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, handlers.MsgCrashState, msg.Type)
	assert.Equal(t, 1, env.hub.ClientCount())

	require.NoError(t, conn.WriteJSON(handlers.Message{Type: handlers.MsgPing}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, handlers.MsgPong, msg.Type)

	env.hub.BroadcastRoundUpdate("round_x", decimal.RequireFromString("1.5"))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, handlers.MsgRoundUpdate, msg.Type)
	data := msg.Data.(map[string]any)
	assert.Equal(t, "round_x", data["round_id"])
	assert.Equal(t, "1.50", data["multiplier"])

	env.hub.BroadcastRoundCrash(models.RoundSummary{RoundID: "round_x", CrashPoint: decimal.RequireFromString("1.72")})
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, handlers.MsgRoundCrash, msg.Type)

	_ = conn.Close()
	assert.Eventually(t, func() bool { return env.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	env := newAPIEnv(t, envOpts{})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
