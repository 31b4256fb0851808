package flash

import "errors"

// Error taxonomy (spec §7). Public Block operations report flash-level
// failures with these sentinels, testable with errors.Is: ErrHAL is wrapped
// via fmt.Errorf("%w: ...") around the adapter's own error, the others are
// returned as-is. Invalid arguments (a reserved id, a size that is not a
// multiple of the word width, a data length that differs from size) are
// reported as plain errors instead.
var (
	// ErrNotFound is returned by Write when the caller did not Get the
	// (id, size) pair first.
	ErrNotFound = errors.New("flash: variable not found, call Get first")

	// ErrOutOfSpace is returned by Get when compaction would not free
	// enough room for the requested record, and by Write when a rewrite
	// still does not fit after rolling.
	ErrOutOfSpace = errors.New("flash: no space for variable")

	// ErrHAL wraps any failure reported by the underlying Flash adapter.
	// The core reports it as-is; it never retries.
	ErrHAL = errors.New("flash: hal operation failed")

	// ErrCorruption is returned by any scan of a page's record log (and so
	// by recovery and by Get, Write, Delete and UsedBytes) when a record
	// extends past the usable end of the page. A header whose size is
	// still erased is treated as the tail, not as corruption.
	ErrCorruption = errors.New("flash: corrupt record log")
)
