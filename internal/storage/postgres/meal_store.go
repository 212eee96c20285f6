// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cafeteria-menu/internal/menu"
)

const (
	upsertRestaurantSQL = `INSERT INTO restaurants (code, name, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, updated_at = now()`

	deleteMealsSQL = `DELETE FROM meals
WHERE restaurant_code = $1 AND meal_date = $2 AND meal_type = $3`

	insertMealSQL = `INSERT INTO meals (
	restaurant_code,
	meal_date,
	day_of_week,
	meal_type,
	dishes,
	tags,
	price,
	image_url
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	listMealsSQL = `SELECT id, restaurant_code, meal_date, day_of_week, meal_type, dishes, tags, price, image_url, created_at
FROM meals
WHERE restaurant_code = $1 AND meal_date = $2
ORDER BY id`

	savepointSQL         = `SAVEPOINT meal_item`
	releaseSavepointSQL  = `RELEASE SAVEPOINT meal_item`
	rollbackSavepointSQL = `ROLLBACK TO SAVEPOINT meal_item`
)

var errNothingInserted = errors.New("no item of the replacement set could be inserted")

// MealStoreConfig controls the Postgres connection pool.
type MealStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// MealStore implements menu.MealStore on Postgres.
type MealStore struct {
	pool pool
}

var _ menu.MealStore = (*MealStore)(nil)

// NewMealStore connects a pgx pool using the provided config.
func NewMealStore(ctx context.Context, cfg MealStoreConfig) (*MealStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &MealStore{pool: p}, nil
}

// NewMealStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewMealStoreWithPool(p pool) (*MealStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &MealStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *MealStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database reachability.
func (s *MealStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureRestaurant inserts the restaurant or refreshes its display name.
func (s *MealStore) EnsureRestaurant(ctx context.Context, r menu.Restaurant) error {
	if r.Code == "" {
		return fmt.Errorf("%w: restaurant code is required", menu.ErrInvalidRequest)
	}
	if _, err := s.pool.Exec(ctx, upsertRestaurantSQL, r.Code, r.Name); err != nil {
		return fmt.Errorf("upsert restaurant %s: %w", r.Code, err)
	}
	return nil
}

// ReplaceMeals deletes every meal under key and inserts items in one
// transaction. A failing item is rolled back to its savepoint and reported in
// ItemErrors; if no item survives, the whole transaction is rolled back so the
// previous rows stay in place. An empty item list is a no-op.
func (s *MealStore) ReplaceMeals(
	ctx context.Context,
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
	date := menu.DayOnly(key.Date)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, &menu.StorageError{Key: key, Op: "begin", Err: err}
	}

	tag, err := tx.Exec(ctx, deleteMealsSQL, key.RestaurantCode, date, string(key.MealType))
	if err != nil {
		return res, rollback(ctx, tx, &menu.StorageError{Key: key, Op: "delete", Err: err})
	}
	res.Deleted = tag.RowsAffected()

	for i, item := range items {
		if _, err := tx.Exec(ctx, savepointSQL); err != nil {
			return res, rollback(ctx, tx, &menu.StorageError{Key: key, Op: "savepoint", Err: err})
		}
		if err := insertItem(ctx, tx, key, date, dayOfWeek, item); err != nil {
			res.ItemErrors = append(res.ItemErrors, fmt.Errorf("item %d %v: %w", i, item.Dishes, err))
			if _, rbErr := tx.Exec(ctx, rollbackSavepointSQL); rbErr != nil {
				return res, rollback(ctx, tx, &menu.StorageError{Key: key, Op: "rollback savepoint", Err: rbErr})
			}
			continue
		}
		if _, err := tx.Exec(ctx, releaseSavepointSQL); err != nil {
			return res, rollback(ctx, tx, &menu.StorageError{Key: key, Op: "release savepoint", Err: err})
		}
		res.Inserted++
	}

	if res.Inserted == 0 {
		res.Deleted = 0
		return res, rollback(ctx, tx, &menu.StorageError{Key: key, Op: "replace", Err: errNothingInserted})
	}
	if err := tx.Commit(ctx); err != nil {
		res.Deleted, res.Inserted = 0, 0
		return res, &menu.StorageError{Key: key, Op: "commit", Err: err}
	}
	return res, nil
}

func insertItem(
	ctx context.Context,
	tx pgx.Tx,
	key menu.MealKey,
	date time.Time,
	dayOfWeek string,
	item menu.MenuItem,
) error {
	if len(item.Dishes) == 0 {
		return errors.New("dish list is empty")
	}
	dishes, err := json.Marshal(item.Dishes)
	if err != nil {
		return fmt.Errorf("marshal dishes: %w", err)
	}
	tags, err := json.Marshal(nonNil(item.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	args := []any{
		key.RestaurantCode,
		date,
		dayOfWeek,
		string(key.MealType),
		dishes,
		tags,
		item.Price,
		item.ImageURL,
	}
	if _, err := tx.Exec(ctx, insertMealSQL, args...); err != nil {
		return classifyInsertError(err)
	}
	return nil
}

func classifyInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("insert meal: %w: %w", menu.ErrDuplicateItem, err)
		case pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("insert meal: restaurant not registered: %w", err)
		}
	}
	return fmt.Errorf("insert meal: %w", err)
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	return cause
}

// ListMeals returns the stored meals for one restaurant and day in insertion order.
func (s *MealStore) ListMeals(ctx context.Context, restaurantCode string, date time.Time) ([]menu.MealRecord, error) {
	rows, err := s.pool.Query(ctx, listMealsSQL, restaurantCode, menu.DayOnly(date))
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	defer rows.Close()

	var out []menu.MealRecord
	for rows.Next() {
		var (
			rec              menu.MealRecord
			mealType         string
			dishesJSON, tags []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.RestaurantCode,
			&rec.Date,
			&rec.DayOfWeek,
			&mealType,
			&dishesJSON,
			&tags,
			&rec.Price,
			&rec.ImageURL,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan meal row: %w", err)
		}
		rec.MealType = menu.MealType(mealType)
		if err := json.Unmarshal(dishesJSON, &rec.Dishes); err != nil {
			return nil, fmt.Errorf("decode dishes for meal %d: %w", rec.ID, err)
		}
		if err := json.Unmarshal(tags, &rec.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for meal %d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meal rows: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
