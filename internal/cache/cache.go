// Package cache stores dispense results keyed by denominations and request,
// either in process memory or in Redis.
package cache

import (
	"context"
	"strconv"
	"strings"

	"github.com/eugenenazirov/stamp-dispenser/internal/dispenser"
)

const keyPrefix = "dispense"

// Cache describes a store for previously computed dispense results.
type Cache interface {
	Get(ctx context.Context, key string) (dispenser.Result, bool, error)
	Set(ctx context.Context, key string, result dispenser.Result) error
	Close() error
}

// Key builds the cache key for a request against a denomination list.
// Different lists never share keys, so updating denominations needs no invalidation.
func Key(denominations []int, request int) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteByte(':')
	for i, den := range denominations {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(den))
	}
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(request))
	return b.String()
}
