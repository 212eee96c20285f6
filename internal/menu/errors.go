package menu

import (
	"errors"
	"fmt"
)

// Sentinel errors for classifying failures with errors.Is.
var (
	ErrNetwork        = errors.New("network error")
	ErrStorage        = errors.New("storage error")
	ErrInvalidRequest = errors.New("invalid request")
	// ErrDuplicateItem marks an item whose dish list is already stored under
	// the same key.
	ErrDuplicateItem = errors.New("duplicate menu item")
)

// NetworkError reports a failed fetch. StatusCode is zero for transport failures.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *NetworkError) Unwrap() []error {
	return []error{ErrNetwork, e.Err}
}

// StorageError reports a failed transactional write for one key.
type StorageError struct {
	Key MealKey
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s/%s/%s: %v", e.Op, e.Key.RestaurantCode, e.Key.DateString(), e.Key.MealType, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}
