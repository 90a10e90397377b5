package repository

import (
	"context"

	"grillbook/internal/domain"
	"grillbook/internal/models"

	"github.com/rs/zerolog"
)

// CachedStore serves ListAll from a cache and invalidates it on every write.
// Cached entries carry no cancellation codes; GetByID always reads the store.
type CachedStore struct {
	store  domain.ReservationStore
	cache  domain.ListCache
	logger *zerolog.Logger
}

func NewCachedStore(store domain.ReservationStore, cache domain.ListCache, logger *zerolog.Logger) *CachedStore {
	return &CachedStore{store: store, cache: cache, logger: logger}
}

func (s *CachedStore) ListAll(ctx context.Context) ([]*models.Reservation, error) {
	list, ok, err := s.cache.GetList(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Reservation cache read failed")
	} else if ok {
		return list, nil
	}

	list, err = s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetList(ctx, list); err != nil {
		s.logger.Warn().Err(err).Msg("Reservation cache write failed")
	}
	return list, nil
}

func (s *CachedStore) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	return s.store.GetByID(ctx, id)
}

func (s *CachedStore) Insert(ctx context.Context, r *models.Reservation) error {
	if err := s.store.Insert(ctx, r); err != nil {
		return err
	}
	s.revalidate(ctx)
	return nil
}

func (s *CachedStore) Update(ctx context.Context, r *models.Reservation) error {
	if err := s.store.Update(ctx, r); err != nil {
		return err
	}
	s.revalidate(ctx)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.revalidate(ctx)
	return nil
}

func (s *CachedStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *CachedStore) revalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Reservation cache invalidation failed")
	}
}

var _ domain.ReservationStore = (*CachedStore)(nil)
