package services

import "time"

const (
	KeyRateLimit    = "ratelimit:%d:%s"
	KeyCrashState   = "crash:state"
	KeyCrashHistory = "crash:history"

	TTLCrashState    = 10 * time.Second
	CrashHistorySize = 50

	DefaultRateLimitBets       = 30  // per minute
	DefaultRateLimitCashout    = 60  // per minute
	DefaultRateLimitMinesOpens = 120 // per minute
)
