package cache

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/phrazzld/circles-api/internal/domain"
)

const keyPrefix = "circles:score:"

// ScoreCache stores scores by profile key.
type ScoreCache interface {
	// Get returns the cached score for key. found is false on a miss.
	Get(ctx context.Context, key string) (score int, found bool, err error)
	// Set stores score under key.
	Set(ctx context.Context, key string, score int) error
}

// ProfileKey derives a cache key from every field that feeds the score.
// Profiles that compare equal produce the same key regardless of decimal
// representation (e.g. "10" and "10.00").
func ProfileKey(p domain.FinancialProfile) string {
	h := xxhash.New()
	writeField := func(s string) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		_, _ = h.Write(n[:])
		_, _ = h.WriteString(s)
	}
	writeField(p.Income.String())
	writeField(p.Expenses.String())
	writeField(p.Savings.String())
	for _, entry := range p.CreditHistory {
		writeField(entry)
	}
	return fmt.Sprintf("%s%016x", keyPrefix, h.Sum64())
}

// Noop is a ScoreCache that never stores anything.
type Noop struct{}

var _ ScoreCache = Noop{}

// Get always misses.
func (Noop) Get(context.Context, string) (int, bool, error) { return 0, false, nil }

// Set discards the score.
func (Noop) Set(context.Context, string, int) error { return nil }
