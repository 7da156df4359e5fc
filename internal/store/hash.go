package store

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ContentHash returns the hash recorded for a file's contents. Unchanged
// contents hash identically, which lets re-analysis be skipped.
func ContentHash(content []byte) string {
	return strconv.FormatUint(xxhash.Sum64(content), 16)
}
