package repository

import (
	"context"
	"sync/atomic"
	"time"

	"grillbook/internal/domain"
	"grillbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// Backend is a cache and attempt-limiter implementation.
type Backend interface {
	domain.ListCache
	domain.AttemptLimiter
}

// FailoverRepository uses primary until it fails, then serves from fallback and
// periodically probes primary again.
type FailoverRepository struct {
	primary   Backend
	fallback  Backend
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverRepository(primary, fallback Backend, logger *zerolog.Logger) *FailoverRepository {
	return &FailoverRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(r.now().UnixNano())
}

// usePrimary reports whether calls should go to primary, probing it after the
// recovery interval. A recovered primary is invalidated first since it missed writes.
func (r *FailoverRepository) usePrimary(ctx context.Context) bool {
	if !r.isDown.Load() {
		return true
	}
	if r.now().Sub(time.Unix(0, r.lastCheck.Load())) < recoveryInterval {
		return false
	}
	r.lastCheck.Store(r.now().UnixNano())
	if err := r.primary.Invalidate(ctx); err != nil {
		return false
	}
	r.logger.Info().Msg("Primary repository recovered")
	r.isDown.Store(false)
	return true
}

func (r *FailoverRepository) GetList(ctx context.Context) ([]*models.Reservation, bool, error) {
	if r.usePrimary(ctx) {
		list, ok, err := r.primary.GetList(ctx)
		if err == nil {
			return list, ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetList(ctx)
}

func (r *FailoverRepository) SetList(ctx context.Context, list []*models.Reservation) error {
	if r.usePrimary(ctx) {
		err := r.primary.SetList(ctx, list)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetList(ctx, list)
}

// Invalidate clears both backends so neither serves a list older than the last write.
func (r *FailoverRepository) Invalidate(ctx context.Context) error {
	if err := r.fallback.Invalidate(ctx); err != nil {
		return err
	}
	if !r.isDown.Load() {
		if err := r.primary.Invalidate(ctx); err != nil {
			r.markDown(err)
		}
	}
	return nil
}

func (r *FailoverRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary(ctx) {
		allowed, err := r.primary.Allow(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.Allow(ctx, key, limit, window)
}

func (r *FailoverRepository) Reset(ctx context.Context, key string) error {
	if err := r.fallback.Reset(ctx, key); err != nil {
		return err
	}
	if !r.isDown.Load() {
		if err := r.primary.Reset(ctx, key); err != nil {
			r.markDown(err)
		}
	}
	return nil
}
