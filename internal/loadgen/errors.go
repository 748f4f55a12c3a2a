package loadgen

import "errors"

// Sentinel errors returned by Run.
var (
	ErrUnhealthy    = errors.New("service unhealthy")
	ErrEmptySchema  = errors.New("schema has no features")
	ErrInvariant    = errors.New("prediction invariant violated")
	ErrNondetermism = errors.New("prediction changed between identical requests")
	ErrUnexpected   = errors.New("unexpected response")
)
