package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/cafeteria-menu/internal/menu"
)

// MealStore is an in-memory menu.MealStore. A replace swaps the whole record
// set for a key under one lock, so readers see either the old or the new set.
type MealStore struct {
	mu          sync.RWMutex
	restaurants map[string]menu.Restaurant
	meals       map[mealKey][]menu.MealRecord
	nextID      int64
	now         func() time.Time
}

type mealKey struct {
	code     string
	date     string
	mealType menu.MealType
}

// NewMealStore constructs an empty MealStore.
func NewMealStore() *MealStore {
	return &MealStore{
		restaurants: make(map[string]menu.Restaurant),
		meals:       make(map[mealKey][]menu.MealRecord),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

var _ menu.MealStore = (*MealStore)(nil)

// EnsureRestaurant records the restaurant, overwriting its name.
func (s *MealStore) EnsureRestaurant(_ context.Context, r menu.Restaurant) error {
	if r.Code == "" {
		return fmt.Errorf("%w: restaurant code is required", menu.ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restaurants[r.Code] = r
	return nil
}

// ReplaceMeals swaps the record set for key. Items without dishes are
// reported in ItemErrors and skipped; when none remain the old set is kept.
func (s *MealStore) ReplaceMeals(
	_ context.Context,
	key menu.MealKey,
	dayOfWeek string,
	items []menu.MenuItem,
) (menu.ReplaceResult, error) {
	var res menu.ReplaceResult
	if len(items) == 0 {
		return res, nil
	}
	if !key.MealType.Valid() {
		return res, fmt.Errorf("%w: unknown meal type %q", menu.ErrInvalidRequest, key.MealType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.restaurants[key.RestaurantCode]; !ok {
		return res, &menu.StorageError{Key: key, Op: "replace", Err: errors.New("unknown restaurant")}
	}

	date := menu.DayOnly(key.Date)
	k := mealKey{code: key.RestaurantCode, date: key.DateString(), mealType: key.MealType}
	records := make([]menu.MealRecord, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if len(item.Dishes) == 0 {
			res.ItemErrors = append(res.ItemErrors, fmt.Errorf("item %d: dish list is empty", i))
			continue
		}
		sig := strings.Join(item.Dishes, "\x00")
		if _, dup := seen[sig]; dup {
			res.ItemErrors = append(res.ItemErrors, fmt.Errorf("item %d %v: %w", i, item.Dishes, menu.ErrDuplicateItem))
			continue
		}
		seen[sig] = struct{}{}
		s.nextID++
		records = append(records, menu.MealRecord{
			ID:             s.nextID,
			RestaurantCode: key.RestaurantCode,
			Date:           date,
			DayOfWeek:      dayOfWeek,
			MealType:       key.MealType,
			Dishes:         append([]string(nil), item.Dishes...),
			Tags:           append([]string{}, item.Tags...),
			Price:          item.Price,
			ImageURL:       item.ImageURL,
			CreatedAt:      s.now(),
		})
	}
	if len(records) == 0 {
		return menu.ReplaceResult{ItemErrors: res.ItemErrors},
			&menu.StorageError{Key: key, Op: "replace", Err: errors.New("no item could be inserted")}
	}

	res.Deleted = int64(len(s.meals[k]))
	res.Inserted = len(records)
	s.meals[k] = records
	return res, nil
}

// ListMeals returns the meals for a restaurant and day in serving order.
func (s *MealStore) ListMeals(_ context.Context, restaurantCode string, date time.Time) ([]menu.MealRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := menu.DayOnly(date).Format(time.DateOnly)
	var out []menu.MealRecord
	for _, t := range menu.MealTypes {
		out = append(out, s.meals[mealKey{code: restaurantCode, date: day, mealType: t}]...)
	}
	return out, nil
}
