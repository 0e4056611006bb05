// Package state keeps the small durable records the shells maintain between
// runs: the recently queried city names and the last resolved city.
package state

import (
	"context"
	"strings"

	"weatherdesk/internal/core"
)

// DefaultMaxHistory bounds the recent-queries list.
const DefaultMaxHistory = 10

// Store persists recent queries and the last city.
// Implementations must be safe for concurrent use.
type Store interface {
	// History returns recent city names, most recent first.
	History(ctx context.Context) ([]string, error)

	// AddHistory moves name to the front of the list, dropping any earlier
	// occurrence and trimming the list to its maximum length.
	AddHistory(ctx context.Context, name string) ([]string, error)

	// LastCity returns the last resolved city. ok is false when none was
	// recorded or the record is incomplete.
	LastCity(ctx context.Context) (city core.City, ok bool, err error)

	// SetLastCity records city as the last resolved one.
	SetLastCity(ctx context.Context, city core.City) error

	// Close releases resources held by the store.
	Close() error
}

// pushHistory returns list with name at the front, de-duplicated and
// trimmed to max entries.
func pushHistory(list []string, name string, max int) []string {
	if max < 1 {
		max = DefaultMaxHistory
	}
	out := make([]string, 0, min(len(list)+1, max))
	out = append(out, name)
	for _, existing := range list {
		if len(out) == max {
			break
		}
		if existing != name {
			out = append(out, existing)
		}
	}
	return out
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

func validCity(c core.City) bool {
	return c.ID != "" && c.Name != ""
}
