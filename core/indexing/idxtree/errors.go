package idxtree

import "errors"

// --- Error Definitions ---

var (
	// ErrInvalidConfiguration is returned by NewTree when the page/key size
	// combination cannot produce pages that are able to split.
	ErrInvalidConfiguration = errors.New("invalid index tree configuration")
	// ErrIndexCorruption means a structural invariant of the tree was found
	// broken. The tree must not be trusted after this error.
	ErrIndexCorruption = errors.New("index tree corruption detected")
	ErrKeySize         = errors.New("key length does not match configured key size")
	ErrTreeDestroyed   = errors.New("index tree has been destroyed")
)
