package dispatch

import "errors"

// Sentinel errors for the dispatch layer.
var (
	ErrRouteNotFound  = errors.New("dispatch: route not found")
	ErrDuplicateRoute = errors.New("dispatch: duplicate route")
	ErrSealed         = errors.New("dispatch: registration after serving started")
	ErrMissedDeadline = errors.New("dispatch: ack deadline missed")
)
