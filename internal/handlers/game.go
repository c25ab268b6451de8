package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"casino-engine/internal/fair"
	"casino-engine/internal/models"
	"casino-engine/internal/services"
)

type GameHandler struct {
	mines  *services.MinesEngine
	plinko *services.PlinkoEngine
	dice   *services.DiceEngine
	slots  *services.SlotsEngine
	log    *zap.Logger
}

func NewGameHandler(mines *services.MinesEngine, plinko *services.PlinkoEngine, dice *services.DiceEngine, slots *services.SlotsEngine, log *zap.Logger) *GameHandler {
	return &GameHandler{
		mines:  mines,
		plinko: plinko,
		dice:   dice,
		slots:  slots,
		log:    log.Named("games"),
	}
}

// Mines

func (h *GameHandler) CreateMines(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.MinesCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	game, err := h.mines.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.log, "Failed to start mines game", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"game":             game,
		"server_seed_hash": game.Seeds.ServerSeedHash,
		"client_seed":      game.Seeds.ClientSeed,
		"nonce":            game.Seeds.Nonce,
	})
}

func (h *GameHandler) OpenMinesCell(c *gin.Context) {
	userID := c.GetInt64("user_id")
	gameID, ok := idParam(c)
	if !ok {
		return
	}

	var req models.MinesOpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.mines.OpenCell(c.Request.Context(), userID, gameID, fair.Cell{Row: *req.Row, Col: *req.Col})
	if err != nil {
		respondError(c, h.log, "Failed to open cell", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

func (h *GameHandler) CashoutMines(c *gin.Context) {
	userID := c.GetInt64("user_id")
	gameID, ok := idParam(c)
	if !ok {
		return
	}

	game, err := h.mines.Cashout(c.Request.Context(), userID, gameID)
	if err != nil {
		respondError(c, h.log, "Failed to cashout", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"game":           game,
		"payout":         game.Payout,
		"mine_positions": game.MinePositions,
		"seeds":          game.Seeds,
	})
}

func (h *GameHandler) ListMines(c *gin.Context) {
	userID := c.GetInt64("user_id")

	games, err := h.mines.List(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		respondError(c, h.log, "Failed to fetch games", err)
		return
	}
	if games == nil {
		games = []*models.MinesGame{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"games":   games,
		"count":   len(games),
	})
}

func (h *GameHandler) GetMines(c *gin.Context) {
	userID := c.GetInt64("user_id")
	gameID, ok := idParam(c)
	if !ok {
		return
	}

	game, err := h.mines.Get(c.Request.Context(), userID, gameID)
	if err != nil {
		respondError(c, h.log, "Failed to get game", err)
		return
	}

	resp := gin.H{
		"success":          true,
		"game":             game,
		"server_seed_hash": game.Seeds.ServerSeedHash,
	}
	if game.IsEnded() {
		resp["mine_positions"] = game.MinePositions
		resp["seeds"] = game.Seeds
	}
	c.JSON(http.StatusOK, resp)
}

func (h *GameHandler) VerifyMines(c *gin.Context) {
	userID := c.GetInt64("user_id")
	gameID, ok := idParam(c)
	if !ok {
		return
	}

	data, err := h.mines.Verification(c.Request.Context(), userID, gameID)
	if err != nil {
		respondError(c, h.log, "Failed to get verification data", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"verification": data,
	})
}

// Plinko

func (h *GameHandler) CreatePlinko(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.PlinkoCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	game, err := h.plinko.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.log, "Failed to create plinko board", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"game":             game,
		"server_seed_hash": game.Seeds.ServerSeedHash,
	})
}

func (h *GameHandler) DropPlinko(c *gin.Context) {
	userID := c.GetInt64("user_id")
	gameID, ok := idParam(c)
	if !ok {
		return
	}

	result, err := h.plinko.Drop(c.Request.Context(), userID, gameID)
	if err != nil {
		respondError(c, h.log, "Failed to drop ball", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

func (h *GameHandler) AutoPlayPlinko(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.PlinkoAutoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	results, err := h.plinko.AutoPlay(c.Request.Context(), userID, req)
	if err != nil && len(results) == 0 {
		respondError(c, h.log, "Failed to auto play", err)
		return
	}
	if results == nil {
		results = []*models.PlinkoResult{}
	}

	resp := gin.H{
		"success":   true,
		"results":   results,
		"count":     len(results),
		"requested": req.DropCount,
	}
	if err != nil {
		h.log.Warn("auto play stopped early", zap.Int64("user_id", userID), zap.Int("completed", len(results)), zap.Error(err))
		resp["stopped"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *GameHandler) ListPlinko(c *gin.Context) {
	userID := c.GetInt64("user_id")

	games, err := h.plinko.List(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		respondError(c, h.log, "Failed to fetch games", err)
		return
	}
	if games == nil {
		games = []*models.PlinkoGame{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"games":   games,
		"count":   len(games),
	})
}

func (h *GameHandler) GetPlinko(c *gin.Context) {
	userID := c.GetInt64("user_id")
	gameID, ok := idParam(c)
	if !ok {
		return
	}

	result, err := h.plinko.Get(c.Request.Context(), userID, gameID)
	if err != nil {
		respondError(c, h.log, "Failed to get game", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  result,
	})
}

func (h *GameHandler) VerifyPlinko(c *gin.Context) {
	userID := c.GetInt64("user_id")
	gameID, ok := idParam(c)
	if !ok {
		return
	}

	data, err := h.plinko.Verify(c.Request.Context(), userID, gameID)
	if err != nil {
		respondError(c, h.log, "Failed to verify game", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"verification": data,
	})
}

// Dice

func (h *GameHandler) PlayDice(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.DicePlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	game, err := h.dice.Play(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.log, "Failed to play dice", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    game,
	})
}

func (h *GameHandler) ListDice(c *gin.Context) {
	userID := c.GetInt64("user_id")

	games, err := h.dice.List(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		respondError(c, h.log, "Failed to fetch games", err)
		return
	}
	if games == nil {
		games = []*models.DiceGame{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"games":   games,
		"count":   len(games),
	})
}

func (h *GameHandler) GetDice(c *gin.Context) {
	userID := c.GetInt64("user_id")
	gameID, ok := idParam(c)
	if !ok {
		return
	}

	game, err := h.dice.Get(c.Request.Context(), userID, gameID)
	if err != nil {
		respondError(c, h.log, "Failed to get game", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    game,
	})
}

func (h *GameHandler) VerifyDice(c *gin.Context) {
	userID := c.GetInt64("user_id")
	gameID, ok := idParam(c)
	if !ok {
		return
	}

	data, err := h.dice.Verify(c.Request.Context(), userID, gameID)
	if err != nil {
		respondError(c, h.log, "Failed to verify game", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"verification": data,
	})
}

// Slots

func (h *GameHandler) PlaySlots(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.SlotsPlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	game, err := h.slots.Play(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.log, "Failed to spin", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    game,
	})
}

func (h *GameHandler) ListSlots(c *gin.Context) {
	userID := c.GetInt64("user_id")

	games, err := h.slots.List(c.Request.Context(), userID, queryLimit(c))
	if err != nil {
		respondError(c, h.log, "Failed to fetch games", err)
		return
	}
	if games == nil {
		games = []*models.SlotsGame{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"games":   games,
		"count":   len(games),
	})
}

func (h *GameHandler) GetSlots(c *gin.Context) {
	userID := c.GetInt64("user_id")
	gameID, ok := idParam(c)
	if !ok {
		return
	}

	game, err := h.slots.Get(c.Request.Context(), userID, gameID)
	if err != nil {
		respondError(c, h.log, "Failed to get game", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    game,
	})
}

func (h *GameHandler) VerifySlots(c *gin.Context) {
	userID := c.GetInt64("user_id")
	gameID, ok := idParam(c)
	if !ok {
		return
	}

	data, err := h.slots.Verify(c.Request.Context(), userID, gameID)
	if err != nil {
		respondError(c, h.log, "Failed to verify game", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"verification": data,
	})
}

// VerifyProof replays any outcome from seeds supplied by the caller. It
// touches no stored state.
func (h *GameHandler) VerifyProof(c *gin.Context) {
	var proof fair.Proof
	if err := c.ShouldBindJSON(&proof); err != nil {
		badRequest(c, err)
		return
	}

	replay, err := proof.Replay()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Verification failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"replay":  replay,
	})
}
