package stack

import "errors"

var (
	// ErrBlockLimitExceeded means the configured cap on measurement blocks
	// would be exceeded by a further Begin — too many nested, unclosed
	// frames. Mirrors timeR_measureblock_full's "Too many timers allocated"
	// abort path; host misuse, not recoverable.
	ErrBlockLimitExceeded = errors.New("stack: measurement block limit exceeded")

	// ErrSentinelUnderflow means a pop was attempted past the canary frame
	// at the very bottom of block 0 — an internal consistency violation.
	ErrSentinelUnderflow = errors.New("stack: popped past the sentinel frame")
)
