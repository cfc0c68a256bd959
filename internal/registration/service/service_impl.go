package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/clock"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/recordstore"
	domain "github.com/zhangsherry780-arch/order-robot-sub000/internal/registration/domain"
)

type ServiceParam struct {
	fx.In

	Store *recordstore.Store
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	store *recordstore.Store
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		store: p.Store,
		log:   p.Log.Named("registration.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Register(ctx context.Context, req domain.CreateRegistrationRequest) (*domain.RegistrationRecord, error) {
	key, err := meal.NewKey(req.UserID, req.Date, meal.Type(req.MealType))
	if err != nil {
		return nil, err
	}
	dishName := strings.TrimSpace(req.DishName)
	if dishName == "" {
		return nil, domain.ErrInvalidDish
	}

	release := s.store.Acquire(domain.CollectionLedger)
	defer release()

	records, err := recordstore.Read[domain.RegistrationRecord](ctx, s.store, domain.CollectionLedger)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var current *domain.RegistrationRecord
	// The last record matching the key is the logically current one;
	// earlier duplicates stay untouched.
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Key() == key {
			current = &records[i]
			break
		}
	}

	if current != nil {
		current.DishID = strings.TrimSpace(req.DishID)
		current.DishName = dishName
		current.RestaurantName = strings.TrimSpace(req.RestaurantName)
		current.Price = req.Price
		current.Note = strings.TrimSpace(req.Note)
		current.UpdatedAt = now
	} else {
		records = append(records, domain.RegistrationRecord{
			ID:             s.genID.Generate(),
			UserID:         key.UserID,
			Date:           key.Date,
			MealType:       key.Meal,
			DishID:         strings.TrimSpace(req.DishID),
			DishName:       dishName,
			RestaurantName: strings.TrimSpace(req.RestaurantName),
			Price:          req.Price,
			Note:           strings.TrimSpace(req.Note),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		current = &records[len(records)-1]
	}

	if err := recordstore.Write(ctx, s.store, domain.CollectionLedger, records); err != nil {
		return nil, err
	}

	saved := *current
	s.log.Info("registration recorded",
		zap.String("key", key.String()),
		zap.Bool("no_eat", saved.IsNoEat()),
	)
	return &saved, nil
}

func (s *Service) RegisterNoEat(ctx context.Context, userID, date string, mealType meal.Type) (*domain.RegistrationRecord, error) {
	return s.Register(ctx, domain.CreateRegistrationRequest{
		UserID:   userID,
		Date:     date,
		MealType: string(mealType),
		DishName: domain.DishNameNoEat,
	})
}

func (s *Service) CancelNoEat(ctx context.Context, userID, date string, mealType meal.Type) (bool, error) {
	key, err := meal.NewKey(userID, date, mealType)
	if err != nil {
		return false, err
	}

	release := s.store.Acquire(domain.CollectionLedger)
	defer release()

	records, err := recordstore.Read[domain.RegistrationRecord](ctx, s.store, domain.CollectionLedger)
	if err != nil {
		return false, err
	}

	kept := records[:0]
	removed := 0
	for _, r := range records {
		if r.Key() == key && r.IsNoEat() {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return false, nil
	}

	if err := recordstore.Write(ctx, s.store, domain.CollectionLedger, kept); err != nil {
		return false, err
	}
	s.log.Info("no-eat registration cancelled",
		zap.String("key", key.String()),
		zap.Int("removed", removed),
	)
	return true, nil
}

func (s *Service) Find(ctx context.Context, key meal.Key) (*domain.RegistrationRecord, error) {
	records, err := recordstore.Read[domain.RegistrationRecord](ctx, s.store, domain.CollectionLedger)
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Key() == key {
			found := records[i]
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Service) ListByDateMeal(ctx context.Context, date string, mealType meal.Type) ([]domain.RegistrationRecord, error) {
	normalized, err := meal.ParseDate(date)
	if err != nil {
		return nil, err
	}
	records, err := recordstore.Read[domain.RegistrationRecord](ctx, s.store, domain.CollectionLedger)
	if err != nil {
		return nil, err
	}

	// Later duplicates supersede earlier ones; collect the current
	// record per user.
	currentByUser := make(map[string]domain.RegistrationRecord)
	order := make([]string, 0, len(records))
	for _, r := range records {
		if r.Date != normalized || r.MealType != mealType {
			continue
		}
		if _, seen := currentByUser[r.UserID]; !seen {
			order = append(order, r.UserID)
		}
		currentByUser[r.UserID] = r
	}

	out := make([]domain.RegistrationRecord, 0, len(order))
	for _, userID := range order {
		out = append(out, currentByUser[userID])
	}
	return out, nil
}

func (s *Service) List(ctx context.Context) ([]domain.RegistrationRecord, error) {
	return recordstore.Read[domain.RegistrationRecord](ctx, s.store, domain.CollectionLedger)
}
