package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"casino-engine/internal/middleware"
	"casino-engine/internal/services"
)

type RouterDeps struct {
	JWT     *services.JWTService
	Limiter middleware.Limiter
	Log     *zap.Logger

	User   *UserHandler
	Wallet *WalletHandler
	Games  *GameHandler
	Crash  *CrashHandler
	Hub    *Hub
}

func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(d.Log.Named("http")), middleware.Metrics(), middleware.CORS())

	limit := func(action string, n int) gin.HandlerFunc {
		return middleware.RateLimit(d.Limiter, action, n, time.Minute, d.Log.Named("ratelimit"))
	}
	betLimit := limit("bet", services.DefaultRateLimitBets)
	cashoutLimit := limit("cashout", services.DefaultRateLimitCashout)
	openLimit := limit("mines_open", services.DefaultRateLimitMinesOpens)

	router.GET("/healthz", d.User.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/auth/token", d.User.IssueToken)

	api := router.Group("/api")
	api.POST("/fair/verify", d.Games.VerifyProof)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(d.JWT))
	{
		protected.GET("/me", d.User.GetCurrentUser)
		protected.GET("/ws", d.Hub.HandleWebSocket)

		wallet := protected.Group("/wallet")
		{
			wallet.GET("/balance", d.Wallet.GetBalance)
			wallet.GET("/summary", d.Wallet.GetSummary)
			wallet.GET("/history", d.Wallet.GetHistory)
			wallet.GET("/history/:id", d.Wallet.GetEntry)
			wallet.POST("/deposit", d.Wallet.Deposit)
			wallet.POST("/bonus", d.Wallet.AddBonus)
		}

		mines := protected.Group("/mines")
		{
			mines.POST("", betLimit, d.Games.CreateMines)
			mines.GET("", d.Games.ListMines)
			mines.GET("/:id", d.Games.GetMines)
			mines.POST("/:id/open", openLimit, d.Games.OpenMinesCell)
			mines.POST("/:id/cashout", cashoutLimit, d.Games.CashoutMines)
			mines.GET("/:id/verify", d.Games.VerifyMines)
		}

		plinko := protected.Group("/plinko")
		{
			plinko.POST("", d.Games.CreatePlinko)
			plinko.GET("", d.Games.ListPlinko)
			plinko.POST("/auto", betLimit, d.Games.AutoPlayPlinko)
			plinko.GET("/:id", d.Games.GetPlinko)
			plinko.POST("/:id/drop", betLimit, d.Games.DropPlinko)
			plinko.GET("/:id/verify", d.Games.VerifyPlinko)
		}

		dice := protected.Group("/dice")
		{
			dice.POST("", betLimit, d.Games.PlayDice)
			dice.GET("", d.Games.ListDice)
			dice.GET("/:id", d.Games.GetDice)
			dice.GET("/:id/verify", d.Games.VerifyDice)
		}

		slots := protected.Group("/slots")
		{
			slots.POST("", betLimit, d.Games.PlaySlots)
			slots.GET("", d.Games.ListSlots)
			slots.GET("/:id", d.Games.GetSlots)
			slots.GET("/:id/verify", d.Games.VerifySlots)
		}

		crash := protected.Group("/crash")
		{
			crash.GET("/state", d.Crash.GetState)
			crash.GET("/history", d.Crash.GetHistory)
			crash.GET("/bets", d.Crash.GetBets)
			crash.POST("/bet", betLimit, d.Crash.PlaceBet)
			crash.POST("/bets/:id/cashout", cashoutLimit, d.Crash.Cashout)
		}
	}

	return router
}
