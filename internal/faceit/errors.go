package faceit

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means neither the nickname nor its lower-cased form exists.
	ErrNotFound = errors.New("faceit player not found")
	// ErrNoGameData means the profile exists but carries no cs2 or csgo skill level.
	ErrNoGameData = errors.New("faceit player has no game data")
)

// ProviderError covers every other failed lookup: non-2xx responses,
// transport failures, timeouts and payloads missing required fields.
type ProviderError struct {
	Status  int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "faceit request failed"
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

const (
	KindNotFound      = "not_found"
	KindNoGameData    = "no_game_data"
	KindProviderError = "provider_error"
)

// KindOf labels a lookup error for logs and metrics. It returns "" for nil.
func KindOf(err error) string {
	var providerErr *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNoGameData):
		return KindNoGameData
	case errors.As(err, &providerErr):
		return KindProviderError
	default:
		return KindProviderError
	}
}
