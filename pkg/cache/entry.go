package cache

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Entry is a cached upstream payload.
type Entry struct {
	// Data is the payload exactly as stored under PayloadKey.
	Data []byte
}

// NewEntry wraps data.
func NewEntry(data []byte) *Entry {
	return &Entry{Data: data}
}

// Size returns the payload length in bytes.
func (e *Entry) Size() int {
	return len(e.Data)
}

// ETag returns a strong entity tag derived from the payload bytes, so a
// cached and a freshly fetched copy of the same payload share one tag.
func (e *Entry) ETag() string {
	return ETag(e.Data)
}

// ETag hashes data with BLAKE3 and returns the first 128 bits, quoted.
func ETag(data []byte) string {
	sum := blake3.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
