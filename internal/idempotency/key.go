// Package idempotency derives publish intent keys and guards the ledger that
// records their outcomes.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const bucketLayout = "200601021504"

// MinuteBucket floors t to the minute in loc and formats it as YYYYMMDDHHmm.
func MinuteBucket(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Truncate(time.Minute).Format(bucketLayout)
}

// ShortHash is the low 32 bits of xxhash64(contentHash) as 8 lowercase hex digits.
func ShortHash(contentHash string) string {
	return fmt.Sprintf("%08x", uint32(xxhash.Sum64String(contentHash)))
}

// BuildKey returns "<platform>:<YYYYMMDDHHmm>:<8 hex>". Equal inputs always give
// equal keys.
func BuildKey(platform, contentHash string, scheduledAt time.Time, loc *time.Location) string {
	return strings.ToLower(platform) + ":" + MinuteBucket(scheduledAt, loc) + ":" + ShortHash(contentHash)
}

// ContentHash fingerprints a piece of source content by its stable identifiers.
func ContentHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strings.TrimSpace(p)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
