package fetch

import "errors"

// ErrStreamClosed is returned by Poll after Close has been called.
var ErrStreamClosed = errors.New("fetch: stream closed")
