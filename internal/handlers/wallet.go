package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"casino-engine/internal/models"
	"casino-engine/internal/services"
)

type WalletHandler struct {
	ledger     *services.Ledger
	log        *zap.Logger
	allowBonus bool
}

// NewWalletHandler wires the wallet endpoints. allowBonus enables the demo
// bonus grant and must be off in production.
func NewWalletHandler(ledger *services.Ledger, allowBonus bool, log *zap.Logger) *WalletHandler {
	return &WalletHandler{
		ledger:     ledger,
		log:        log.Named("wallet"),
		allowBonus: allowBonus,
	}
}

func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID := c.GetInt64("user_id")

	acct, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, "Failed to get balance", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": models.BalanceResponse{
			Balance:      acct.Balance,
			TotalWagered: acct.TotalWagered,
			TotalWon:     acct.TotalWon,
		},
	})
}

func (h *WalletHandler) GetSummary(c *gin.Context) {
	userID := c.GetInt64("user_id")

	summary, err := h.ledger.Summary(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, "Failed to get summary", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"summary": summary,
	})
}

func (h *WalletHandler) GetHistory(c *gin.Context) {
	userID := c.GetInt64("user_id")

	kind, err := models.ParseEntryKind(c.Query("kind"))
	if err != nil {
		respondError(c, h.log, "Invalid filter", err)
		return
	}
	status, err := models.ParseEntryStatus(c.Query("status"))
	if err != nil {
		respondError(c, h.log, "Invalid filter", err)
		return
	}

	entries, err := h.ledger.History(c.Request.Context(), userID, models.HistoryFilter{
		Kind:   kind,
		Status: status,
		Limit:  queryLimit(c),
	})
	if err != nil {
		respondError(c, h.log, "Failed to fetch history", err)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *WalletHandler) GetEntry(c *gin.Context) {
	userID := c.GetInt64("user_id")
	entryID, ok := idParam(c)
	if !ok {
		return
	}

	entry, err := h.ledger.Entry(c.Request.Context(), userID, entryID)
	if err != nil {
		respondError(c, h.log, "Failed to get entry", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"entry":   entry,
	})
}

// Deposit credits demo funds. An empty body deposits the default amount.
func (h *WalletHandler) Deposit(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.DepositRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	entry, err := h.ledger.Deposit(c.Request.Context(), userID, req.Amount, "")
	if err != nil {
		respondError(c, h.log, "Failed to deposit", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"entry":   entry,
		"balance": entry.BalanceAfter,
	})
}

func (h *WalletHandler) AddBonus(c *gin.Context) {
	if !h.allowBonus {
		c.JSON(http.StatusForbidden, gin.H{"error": "Bonus grants are disabled"})
		return
	}
	userID := c.GetInt64("user_id")

	var req models.BonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	entry, err := h.ledger.AddBonus(c.Request.Context(), userID, req.Amount, req.Description)
	if err != nil {
		respondError(c, h.log, "Failed to add bonus", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"entry":   entry,
		"balance": entry.BalanceAfter,
	})
}
