package menu

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves the raw menu page for one restaurant and calendar day.
// Month is 1-based; adapting to the remote encoding is the fetcher's concern.
type Fetcher interface {
	Fetch(ctx context.Context, restaurantCode string, year, month, day int) (string, error)
}

// Parser turns a menu page into structured items without side effects.
type Parser interface {
	Parse(html string) Menu
}

// MealStore is the persistence contract used by the replace protocol.
type MealStore interface {
	EnsureRestaurant(ctx context.Context, restaurant Restaurant) error
	// ReplaceMeals deletes every record under key and inserts items as one
	// transaction. Readers observe either the old set or the new set.
	ReplaceMeals(ctx context.Context, key MealKey, dayOfWeek string, items []MenuItem) (ReplaceResult, error)
	ListMeals(ctx context.Context, restaurantCode string, date time.Time) ([]MealRecord, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes run reports to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
