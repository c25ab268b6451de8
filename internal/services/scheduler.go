package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"casino-engine/internal/models"
)

// CrashStateCache receives the round snapshot after every tick.
type CrashStateCache interface {
	SaveCrashState(ctx context.Context, state *models.CrashState) error
	PushCrashPoint(ctx context.Context, summary models.RoundSummary) error
}

// Scheduler drives the crash engine on a fixed interval.
type Scheduler struct {
	engine   *CrashEngine
	cache    CrashStateCache
	interval time.Duration
	log      *zap.Logger

	lastCrashed string
}

func NewScheduler(engine *CrashEngine, cache CrashStateCache, interval time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		cache:    cache,
		interval: interval,
		log:      log.Named("scheduler"),
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("crash scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("closing crash scheduler")
			return nil
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("crash tick failed", zap.Error(err))
			}
		}
	}
}

// Tick advances the round once and refreshes the cache. A panic is logged
// and reported as an error so the loop keeps running.
func (s *Scheduler) Tick(ctx context.Context) (err error) {
	defer func() {
		if e := recover(); e != nil {
			s.log.Error("crash tick panicked", zap.Any("panic", e), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("crash tick panicked: %v", e)
		}
	}()

	if err := s.engine.Advance(ctx); err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}

	state, err := s.engine.State(ctx)
	if err != nil {
		return err
	}
	if err := s.cache.SaveCrashState(ctx, state); err != nil {
		s.log.Warn("cache crash state", zap.Error(err))
	}
	if state.Status == models.RoundCrashed && state.RoundID != s.lastCrashed {
		s.lastCrashed = state.RoundID
		history, err := s.engine.History(ctx, 1)
		if err != nil {
			return err
		}
		if len(history) > 0 {
			if err := s.cache.PushCrashPoint(ctx, history[0]); err != nil {
				s.log.Warn("cache crash point", zap.Error(err))
			}
		}
	}
	return nil
}
