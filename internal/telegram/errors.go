package telegram

import "errors"

// ErrNotConnected is returned by collector operations invoked before a
// successful Start. It is never retried.
var ErrNotConnected = errors.New("telegram: not connected")

// ErrHistoryUnsupported is returned by drivers that cannot backfill message
// history (the Bot API only delivers posts as they arrive).
var ErrHistoryUnsupported = errors.New("telegram: history backfill not supported by this driver")
