// Package dberror holds the sentinel errors shared by the heap store, the
// B-tree index and the components layered on top of them.
package dberror

import "errors"

// --- Error Definitions ---

var (
	ErrFileUnavailable   = errors.New("file cannot be opened or created")
	ErrInconsistentFile  = errors.New("file status is inconsistent, rebuild required")
	ErrShortRead         = errors.New("short read")
	ErrShortWrite        = errors.New("short write")
	ErrKeyNotFound       = errors.New("key not found")
	ErrKeyAlreadyExists  = errors.New("key already exists in index")
	ErrRecordLinkCorrupt = errors.New("record link points to an unreadable or invalid slot")
	ErrIO                = errors.New("i/o error")
	ErrSerialization     = errors.New("error during serialization")
	ErrDeserialization   = errors.New("error during deserialization")
	ErrInvalidCriteria   = errors.New("invalid criteria")
	ErrTreeInvariant     = errors.New("b-tree invariant violated")
)
