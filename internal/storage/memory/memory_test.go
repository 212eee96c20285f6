package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cafeteria-menu/internal/menu"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "snapshots/re12/page.html", "text/html", strings.NewReader("content"))
	require.NoError(t, err)
	require.Equal(t, "memory://snapshots/re12/page.html", uri)

	obj, ok := store.Get("snapshots/re12/page.html")
	require.True(t, ok)
	require.Equal(t, "text/html", obj.ContentType)
	obj.Data[0] = 'C'

	again, _ := store.Get("snapshots/re12/page.html")
	require.Equal(t, "content", string(again.Data))
	require.Equal(t, []string{"snapshots/re12/page.html"}, store.Paths())

	_, err = store.PutObject(context.Background(), " ", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}

func TestMealStoreReplaceSwapsSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMealStore()
	require.NoError(t, store.EnsureRestaurant(ctx, menu.Restaurant{Code: "re12", Name: "학생식당"}))

	day := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	key := menu.MealKey{RestaurantCode: "re12", Date: day, MealType: menu.Lunch}

	res, err := store.ReplaceMeals(ctx, key, "화요일", []menu.MenuItem{
		{Dishes: []string{"김치찌개"}},
		{Dishes: []string{"돈까스"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Inserted)
	require.Zero(t, res.Deleted)

	res, err = store.ReplaceMeals(ctx, key, "화요일", []menu.MenuItem{{Dishes: []string{"비빔밥"}}})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Deleted)

	got, err := store.ListMeals(ctx, "re12", day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []string{"비빔밥"}, got[0].Dishes)
	require.NotNil(t, got[0].Tags)
}

func TestMealStoreKeepsOldSetWhenNothingInserts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMealStore()
	require.NoError(t, store.EnsureRestaurant(ctx, menu.Restaurant{Code: "re12"}))
	key := menu.MealKey{RestaurantCode: "re12", Date: time.Now(), MealType: menu.Dinner}

	_, err := store.ReplaceMeals(ctx, key, "", []menu.MenuItem{{Dishes: []string{"카레"}}})
	require.NoError(t, err)

	res, err := store.ReplaceMeals(ctx, key, "", []menu.MenuItem{{}})
	require.ErrorIs(t, err, menu.ErrStorage)
	require.Len(t, res.ItemErrors, 1)

	got, err := store.ListMeals(ctx, "re12", key.Date)
	require.NoError(t, err)
	require.Len(t, got, 1)

	res, err = store.ReplaceMeals(ctx, key, "", nil)
	require.NoError(t, err)
	require.Zero(t, res.Inserted)
}

func TestMealStoreRequiresRestaurant(t *testing.T) {
	t.Parallel()

	store := NewMealStore()
	key := menu.MealKey{RestaurantCode: "re99", Date: time.Now(), MealType: menu.Lunch}
	_, err := store.ReplaceMeals(context.Background(), key, "", []menu.MenuItem{{Dishes: []string{"x"}}})
	require.ErrorIs(t, err, menu.ErrStorage)
	require.ErrorIs(t, store.EnsureRestaurant(context.Background(), menu.Restaurant{}), menu.ErrInvalidRequest)
}

func TestMealStoreSkipsDuplicateDishes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMealStore()
	require.NoError(t, store.EnsureRestaurant(ctx, menu.Restaurant{Code: "re11", Name: "교직원식당"}))
	key := menu.MealKey{RestaurantCode: "re11", Date: time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), MealType: menu.Dinner}

	res, err := store.ReplaceMeals(ctx, key, "화요일", []menu.MenuItem{
		{Dishes: []string{"제육볶음", "쌀밥"}},
		{Dishes: []string{"제육볶음", "쌀밥"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)
	require.Len(t, res.ItemErrors, 1)
	require.ErrorIs(t, res.ItemErrors[0], menu.ErrDuplicateItem)

	// Lists that only differ in where the words split are distinct items.
	key.MealType = menu.Lunch
	res, err = store.ReplaceMeals(ctx, key, "화요일", []menu.MenuItem{
		{Dishes: []string{"김치 찌개", "밥"}},
		{Dishes: []string{"김치", "찌개 밥"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Inserted)
	require.Empty(t, res.ItemErrors)

	got, err := store.ListMeals(ctx, "re11", key.Date)
	require.NoError(t, err)
	require.Len(t, got, 3)
}
