package service

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/cache"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/clock"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
	domain "github.com/zhangsherry780-arch/order-robot-sub000/internal/optout/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/recordstore"
)

// existsTTL bounds how stale a cached Exists answer can be. Reconciliation
// writes the collection without going through this service, so the cache
// must expire on its own.
const existsTTL = 30 * time.Second

type ServiceParam struct {
	fx.In

	Store    *recordstore.Store
	Log      *zap.Logger
	Clock    clock.Clock
	Observer domain.CountObserver `optional:"true"`
}

type Service struct {
	store    *recordstore.Store
	log      *zap.Logger
	clock    clock.Clock
	observer domain.CountObserver
	exists   *cache.TTLCache[meal.Key, bool]
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		store:    p.Store,
		log:      p.Log.Named("optout.service"),
		clock:    p.Clock,
		observer: p.Observer,
		exists:   cache.NewTTLCache[meal.Key, bool](),
	}
}

func (s *Service) Add(ctx context.Context, key meal.Key) (bool, error) {
	key, err := meal.NewKey(key.UserID, key.Date, key.Meal)
	if err != nil {
		return false, err
	}

	release := s.store.Acquire(domain.CollectionOptOuts)
	added := false
	err = func() error {
		defer release()

		records, err := recordstore.Read[domain.OptOutRecord](ctx, s.store, domain.CollectionOptOuts)
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.Key() == key {
				return nil
			}
		}
		records = append(records, domain.OptOutRecord{
			UserID:       key.UserID,
			Date:         key.Date,
			MealType:     key.Meal,
			RegisteredAt: s.clock.Now(),
		})
		if err := recordstore.Write(ctx, s.store, domain.CollectionOptOuts, records); err != nil {
			return err
		}
		added = true
		return nil
	}()
	if err != nil {
		return false, err
	}

	s.exists.Set(key, true, existsTTL)
	if added {
		s.notify(ctx, key)
	}
	return added, nil
}

func (s *Service) Remove(ctx context.Context, key meal.Key) (bool, error) {
	key, err := meal.NewKey(key.UserID, key.Date, key.Meal)
	if err != nil {
		return false, err
	}

	release := s.store.Acquire(domain.CollectionOptOuts)
	removed := false
	err = func() error {
		defer release()

		records, err := recordstore.Read[domain.OptOutRecord](ctx, s.store, domain.CollectionOptOuts)
		if err != nil {
			return err
		}
		kept := records[:0]
		for _, r := range records {
			if r.Key() == key {
				removed = true
				continue
			}
			kept = append(kept, r)
		}
		if !removed {
			return nil
		}
		return recordstore.Write(ctx, s.store, domain.CollectionOptOuts, kept)
	}()
	if err != nil {
		return false, err
	}

	s.exists.Delete(key)
	if removed {
		s.notify(ctx, key)
	}
	return removed, nil
}

func (s *Service) Exists(ctx context.Context, key meal.Key) (bool, error) {
	if cached, ok := s.exists.Get(key); ok {
		return cached, nil
	}
	records, err := recordstore.Read[domain.OptOutRecord](ctx, s.store, domain.CollectionOptOuts)
	if err != nil {
		return false, err
	}
	found := false
	for _, r := range records {
		if r.Key() == key {
			found = true
			break
		}
	}
	s.exists.Set(key, found, existsTTL)
	return found, nil
}

func (s *Service) ListByDateMeal(ctx context.Context, date string, mealType meal.Type) ([]domain.OptOutRecord, error) {
	normalized, err := meal.ParseDate(date)
	if err != nil {
		return nil, err
	}
	records, err := recordstore.Read[domain.OptOutRecord](ctx, s.store, domain.CollectionOptOuts)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OptOutRecord, 0, len(records))
	for _, r := range records {
		if r.Date == normalized && r.MealType == mealType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) List(ctx context.Context) ([]domain.OptOutRecord, error) {
	return recordstore.Read[domain.OptOutRecord](ctx, s.store, domain.CollectionOptOuts)
}

func (s *Service) notify(ctx context.Context, key meal.Key) {
	if s.observer == nil {
		return
	}
	if err := s.observer.Recompute(ctx, key.Date, key.Meal); err != nil {
		s.log.Warn("order recompute after index mutation failed",
			zap.String("key", key.String()),
			zap.Error(err),
		)
	}
}
