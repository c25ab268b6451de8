package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"casino-engine/internal/services"
)

// Pinger is a dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type UserHandler struct {
	jwtService *services.JWTService
	ledger     *services.Ledger
	log        *zap.Logger

	allowTokenIssue bool
	deps            map[string]Pinger
}

type tokenRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
}

// NewUserHandler wires the account endpoints. allowTokenIssue enables the
// unauthenticated demo login and must be off in production.
func NewUserHandler(jwtService *services.JWTService, ledger *services.Ledger, allowTokenIssue bool, log *zap.Logger) *UserHandler {
	return &UserHandler{
		jwtService:      jwtService,
		ledger:          ledger,
		log:             log.Named("user"),
		allowTokenIssue: allowTokenIssue,
		deps:            make(map[string]Pinger),
	}
}

// AddHealthCheck registers a dependency reported by Health.
func (h *UserHandler) AddHealthCheck(name string, p Pinger) {
	h.deps[name] = p
}

func (h *UserHandler) IssueToken(c *gin.Context) {
	if !h.allowTokenIssue {
		c.JSON(http.StatusForbidden, gin.H{"error": "Token issue is disabled"})
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, claims, err := h.jwtService.IssueToken(req.UserID)
	if err != nil {
		respondError(c, h.log, "Failed to issue token", err)
		return
	}

	h.log.Info("token issued", zap.Int64("user_id", req.UserID), zap.String("session_id", claims.SessionID))

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"session_id": claims.SessionID,
		"expires_at": claims.ExpiresAt.Time,
	})
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	acct, err := h.ledger.GetBalance(c.Request.Context(), userID.(int64))
	if err != nil {
		respondError(c, h.log, "Failed to get account", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"user_id":    acct.UserID,
		"session_id": c.GetString("session_id"),
		"wallet": gin.H{
			"balance":       acct.Balance,
			"total_wagered": acct.TotalWagered,
			"total_won":     acct.TotalWon,
		},
		"created_at": acct.CreatedAt,
	})
}

// Health pings every registered dependency. Any failure answers 503.
func (h *UserHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	c.JSON(status, gin.H{
		"success": status == http.StatusOK,
		"checks":  checks,
		"time":    time.Now().UTC(),
	})
}
