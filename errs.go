package timer

import "errors"

// ErrClockCheckFailed means the selected clock backend failed its
// init-time self-check. Init-fatal: callers should treat this as
// unrecoverable and stop before instrumenting anything.
var ErrClockCheckFailed = errors.New("timer: clock self-check failed")
