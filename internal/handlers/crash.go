package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"casino-engine/internal/models"
	"casino-engine/internal/services"
)

// CrashStateReader serves what the scheduler caches after each tick: the
// round snapshot and the newest crashed rounds.
type CrashStateReader interface {
	GetCrashState(ctx context.Context) (*models.CrashState, error)
	RecentCrashPoints(ctx context.Context, limit int) ([]models.RoundSummary, error)
}

type CrashHandler struct {
	engine *services.CrashEngine
	cache  CrashStateReader
	log    *zap.Logger
}

// NewCrashHandler accepts a nil cache, in which case every state request
// reads the store.
func NewCrashHandler(engine *services.CrashEngine, cache CrashStateReader, log *zap.Logger) *CrashHandler {
	return &CrashHandler{
		engine: engine,
		cache:  cache,
		log:    log.Named("crash"),
	}
}

func (h *CrashHandler) GetState(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cache != nil {
		state, err := h.cache.GetCrashState(ctx)
		if err != nil {
			h.log.Warn("crash state cache read failed", zap.Error(err))
		}
		if state != nil {
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"state":   state,
				"cached":  true,
			})
			return
		}
	}

	state, err := h.engine.State(ctx)
	if err != nil {
		respondError(c, h.log, "Failed to get crash state", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   state,
		"cached":  false,
	})
}

func (h *CrashHandler) PlaceBet(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.CrashBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	bet, err := h.engine.PlaceBet(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, h.log, "Failed to place bet", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"bet":     bet,
	})
}

func (h *CrashHandler) Cashout(c *gin.Context) {
	userID := c.GetInt64("user_id")
	betID, ok := idParam(c)
	if !ok {
		return
	}

	bet, err := h.engine.Cashout(c.Request.Context(), userID, betID)
	if err != nil {
		respondError(c, h.log, "Failed to cashout", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"bet":        bet,
		"multiplier": bet.CashoutMultiplier,
		"win_amount": bet.WinAmount,
	})
}

// GetHistory answers from the cached list only when it holds the whole page;
// the list starts empty after a restart.
func (h *CrashHandler) GetHistory(c *gin.Context) {
	ctx := c.Request.Context()
	limit := models.ClampLimit(queryLimit(c), services.DefaultRoundHistory, services.MaxHistoryLimit)

	if h.cache != nil && limit <= services.CrashHistorySize {
		rounds, err := h.cache.RecentCrashPoints(ctx, limit)
		if err != nil {
			h.log.Warn("crash history cache read failed", zap.Error(err))
		}
		if len(rounds) == limit {
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"rounds":  rounds,
				"count":   len(rounds),
				"cached":  true,
			})
			return
		}
	}

	rounds, err := h.engine.History(ctx, limit)
	if err != nil {
		respondError(c, h.log, "Failed to fetch history", err)
		return
	}
	if rounds == nil {
		rounds = []models.RoundSummary{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rounds":  rounds,
		"count":   len(rounds),
		"cached":  false,
	})
}

// GetBets lists the caller's bets in ?round_id, or in the current round.
func (h *CrashHandler) GetBets(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var roundID int64
	if s := c.Query("round_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid round_id", "details": "round_id must be a positive integer"})
			return
		}
		roundID = id
	}

	bets, err := h.engine.UserBets(c.Request.Context(), userID, roundID)
	if err != nil {
		respondError(c, h.log, "Failed to fetch bets", err)
		return
	}
	if bets == nil {
		bets = []*models.CrashBet{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"bets":    bets,
		"count":   len(bets),
	})
}
