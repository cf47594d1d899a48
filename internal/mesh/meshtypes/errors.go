package meshtypes

import "errors"

// Sentinel errors forming the error taxonomy from design note §7. No type
// hierarchy is needed: callers discriminate with errors.Is.
var (
	// ErrBreakerOpen is returned by the breaker-guarded client when the
	// circuit is open for every configured endpoint. Retryable from the
	// caller's perspective; already logged at the Open transition, so it
	// is not re-logged at error level on every rejected call.
	ErrBreakerOpen = errors.New("mesh: upstream unavailable, circuit breaker open")

	// ErrAllEndpointsUnavailable is surfaced when both primary and
	// fallback breakers refuse admission.
	ErrAllEndpointsUnavailable = errors.New("mesh: all upstream endpoints unavailable")

	// ErrUpstreamFailed wraps network errors, HTTP >= 400, success:false
	// responses, or a missing data field from the upstream.
	ErrUpstreamFailed = errors.New("mesh: upstream request failed")

	// ErrUpstreamParse marks a response whose required fields could not
	// be parsed; never silently zero-filled.
	ErrUpstreamParse = errors.New("mesh: upstream response could not be parsed")

	// ErrInvalidUpdate marks a validator rejection.
	ErrInvalidUpdate = errors.New("mesh: price update failed validation")

	// ErrDuplicateUpdate marks a seen-registry hit. Not logged as an
	// error; dedup is the expected common case in a gossip mesh.
	ErrDuplicateUpdate = errors.New("mesh: duplicate update")
)
