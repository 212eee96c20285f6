package menu

import (
	"strings"
	"time"
)

// MealType identifies one of the three daily service periods.
type MealType string

// Meal types in the order they are served and stored.
const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
)

// MealTypes lists every meal type in serving order.
var MealTypes = []MealType{Breakfast, Lunch, Dinner}

var markers = map[MealType]string{
	Breakfast: "조식",
	Lunch:     "중식",
	Dinner:    "석식",
}

// Marker returns the section heading keyword used by the cafeteria site.
func (t MealType) Marker() string {
	return markers[t]
}

// Valid reports whether t is one of the known meal types.
func (t MealType) Valid() bool {
	_, ok := markers[t]
	return ok
}

// MealTypeFromHeading maps a section heading to its meal type. Headings are
// checked in serving order, so the first marker found wins.
func MealTypeFromHeading(heading string) (MealType, bool) {
	for _, t := range MealTypes {
		if strings.Contains(heading, t.Marker()) {
			return t, true
		}
	}
	return "", false
}

// MenuItem is a single parsed menu entry.
type MenuItem struct {
	Dishes   []string `json:"dishes"`
	Tags     []string `json:"tags"`
	Price    string   `json:"price"`
	ImageURL string   `json:"image_url"`
}

// Menu is the structured result of parsing one restaurant/day page.
type Menu struct {
	Restaurant string     `json:"restaurant"`
	Date       string     `json:"date"`
	DayOfWeek  string     `json:"day_of_week"`
	Breakfast  []MenuItem `json:"breakfast"`
	Lunch      []MenuItem `json:"lunch"`
	Dinner     []MenuItem `json:"dinner"`
}

// Items returns the item list for a meal type.
func (m Menu) Items(t MealType) []MenuItem {
	switch t {
	case Breakfast:
		return m.Breakfast
	case Lunch:
		return m.Lunch
	case Dinner:
		return m.Dinner
	default:
		return nil
	}
}

// Empty reports whether no meal type carries any item.
func (m Menu) Empty() bool {
	return len(m.Breakfast) == 0 && len(m.Lunch) == 0 && len(m.Dinner) == 0
}

// Restaurant is a configured cafeteria.
type Restaurant struct {
	Code string `json:"code" mapstructure:"code"`
	Name string `json:"name" mapstructure:"name"`
}

// MealKey addresses the group of records replaced together by ingestion.
type MealKey struct {
	RestaurantCode string
	Date           time.Time
	MealType       MealType
}

// DateString renders the key's date as YYYY-MM-DD.
func (k MealKey) DateString() string {
	return k.Date.Format(time.DateOnly)
}

// MealRecord is a persisted menu entry.
type MealRecord struct {
	ID             int64     `json:"id"`
	RestaurantCode string    `json:"restaurant_code"`
	Date           time.Time `json:"date"`
	DayOfWeek      string    `json:"day_of_week"`
	MealType       MealType  `json:"meal_type"`
	Dishes         []string  `json:"dishes"`
	Tags           []string  `json:"tags"`
	Price          string    `json:"price"`
	ImageURL       string    `json:"image_url"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReplaceResult summarizes one transactional replace of a MealKey.
type ReplaceResult struct {
	Deleted  int64
	Inserted int
	// ItemErrors holds per-item insert failures that were skipped.
	ItemErrors []error
}

// DayOnly returns the calendar date of t, in t's own location, at midnight UTC.
func DayOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
