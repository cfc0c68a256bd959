package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/clock"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/config"
	domain "github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
	optoutdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/optout/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/recordstore"
)

type ServiceParam struct {
	fx.In

	Store  *recordstore.Store
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
}

type Service struct {
	store            *recordstore.Store
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	defaultHeadcount int
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		store:            p.Store,
		log:              p.Log.Named("dailyorder.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		defaultHeadcount: p.Config.Orders.DefaultHeadcount,
	}
}

// mutate runs fn against the aggregate for the slot under the collection
// lock, creating the aggregate when absent, and persists the result.
func (s *Service) mutate(ctx context.Context, date string, mealType meal.Type, fn func(*domain.DailyOrder)) (*domain.DailyOrder, error) {
	normalized, err := meal.ParseDate(date)
	if err != nil {
		return nil, err
	}
	parsed, err := meal.ParseType(string(mealType))
	if err != nil {
		return nil, err
	}

	release := s.store.Acquire(domain.CollectionOrders)
	defer release()

	orders, err := recordstore.Read[domain.DailyOrder](ctx, s.store, domain.CollectionOrders)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	slot := domain.SlotKey{Date: normalized, Meal: parsed}
	idx := -1
	for i := range orders {
		if orders[i].SlotKey() == slot {
			idx = i
			break
		}
	}
	if idx < 0 {
		orders = append(orders, domain.DailyOrder{
			ID:          s.genID.Generate(),
			Date:        normalized,
			MealType:    parsed,
			TotalPeople: s.defaultHeadcount,
			Status:      domain.StatusClosed,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		idx = len(orders) - 1
	}

	order := &orders[idx]
	fn(order)
	order.OrderCount = clampOrderCount(order.TotalPeople, order.NoEatCount)
	order.UpdatedAt = now

	if err := recordstore.Write(ctx, s.store, domain.CollectionOrders, orders); err != nil {
		return nil, err
	}
	saved := *order
	return &saved, nil
}

func clampOrderCount(total, noEat int) int {
	if count := total - noEat; count > 0 {
		return count
	}
	return 0
}

func (s *Service) Get(ctx context.Context, date string, mealType meal.Type) (*domain.DailyOrder, error) {
	return s.mutate(ctx, date, mealType, func(*domain.DailyOrder) {})
}

func (s *Service) Open(ctx context.Context, date string, mealType meal.Type) (*domain.DailyOrder, error) {
	order, err := s.mutate(ctx, date, mealType, func(o *domain.DailyOrder) {
		o.Status = domain.StatusOpen
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("registration opened", zap.String("date", order.Date), zap.String("meal", string(order.MealType)))
	return order, nil
}

func (s *Service) Close(ctx context.Context, date string, mealType meal.Type) (*domain.DailyOrder, error) {
	order, err := s.mutate(ctx, date, mealType, func(o *domain.DailyOrder) {
		o.Status = domain.StatusClosed
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("registration closed", zap.String("date", order.Date), zap.String("meal", string(order.MealType)))
	return order, nil
}

func (s *Service) Toggle(ctx context.Context, date string, mealType meal.Type) (*domain.DailyOrder, error) {
	return s.mutate(ctx, date, mealType, func(o *domain.DailyOrder) {
		if o.Status == domain.StatusOpen {
			o.Status = domain.StatusClosed
			return
		}
		o.Status = domain.StatusOpen
	})
}

func (s *Service) SetTotalPeople(ctx context.Context, date string, mealType meal.Type, total int) (*domain.DailyOrder, error) {
	if total < 0 {
		return nil, domain.ErrInvalidHeadcount
	}
	return s.mutate(ctx, date, mealType, func(o *domain.DailyOrder) {
		o.TotalPeople = total
	})
}

func (s *Service) Recompute(ctx context.Context, date string, mealType meal.Type) error {
	normalized, err := meal.ParseDate(date)
	if err != nil {
		return err
	}
	parsed, err := meal.ParseType(string(mealType))
	if err != nil {
		return err
	}

	// Count before taking the orders lock: the opt-out collection has its
	// own lock and the count being a moment stale is corrected by the
	// next recompute.
	optOuts, err := recordstore.Read[optoutdomain.OptOutRecord](ctx, s.store, optoutdomain.CollectionOptOuts)
	if err != nil {
		return err
	}
	noEat := 0
	for _, r := range optOuts {
		if r.Date == normalized && r.MealType == parsed {
			noEat++
		}
	}

	_, err = s.mutate(ctx, normalized, parsed, func(o *domain.DailyOrder) {
		o.NoEatCount = noEat
	})
	return err
}
