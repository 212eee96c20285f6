package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/cafeteria-menu/internal/menu"
)

const mealsTimeout = 3 * time.Second

// MealsHandler exposes stored meals read-only.
type MealsHandler struct {
	store   menu.MealStore
	clock   menu.Clock
	loc     *time.Location
	timeout time.Duration
	logger  *zap.Logger
}

// NewMealsHandler wires the store and logger.
func NewMealsHandler(store menu.MealStore, clock menu.Clock, loc *time.Location, logger *zap.Logger) *MealsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MealsHandler{
		store:   store,
		clock:   clock,
		loc:     loc,
		timeout: mealsTimeout,
		logger:  logger,
	}
}

type mealsResponse struct {
	Restaurant string            `json:"restaurant"`
	Date       string            `json:"date"`
	Meals      []menu.MealRecord `json:"meals"`
}

// ListMeals handles GET /v1/restaurants/{code}/meals?date=YYYY-MM-DD. The
// date defaults to today in the service time zone. It answers 400 for a bad
// date, 503 without a store, and 500 when the query fails.
func (h *MealsHandler) ListMeals(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "meal store unavailable")
		return
	}
	code := chi.URLParam(r, "code")

	day := h.clock.Now().In(h.loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
			return
		}
		day = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	meals, err := h.store.ListMeals(ctx, code, day)
	if err != nil {
		h.logger.Error("list meals failed",
			zap.String("restaurant", code),
			zap.String("date", day.Format(time.DateOnly)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list meals")
		return
	}
	if meals == nil {
		meals = []menu.MealRecord{}
	}
	writeJSON(w, http.StatusOK, mealsResponse{
		Restaurant: code,
		Date:       day.Format(time.DateOnly),
		Meals:      meals,
	})
}
