package dispatch

import "github.com/gosuda/floe/internal/interaction"

// Outcome is the terminal state of one dispatched interaction. It is
// surfaced through the dispatcher's outcome hook for observability and
// testing; nothing is persisted.
type Outcome int

// Dispatch outcomes.
const (
	OutcomeRespondedDirectly Outcome = iota + 1
	OutcomeDeferredThenFollowedUp
	OutcomeDeferredThenFailed
	OutcomeRejected
	OutcomeMissedDeadline
)

// String returns the outcome name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeRespondedDirectly:
		return "responded_directly"
	case OutcomeDeferredThenFollowedUp:
		return "deferred_then_followed_up"
	case OutcomeDeferredThenFailed:
		return "deferred_then_failed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeMissedDeadline:
		return "missed_deadline"
	default:
		return "unknown"
	}
}

// OutcomeFunc observes the terminal state of an interaction. in may be nil
// when the body never parsed; err carries the rejection or failure cause.
type OutcomeFunc func(in *interaction.Interaction, outcome Outcome, err error)
