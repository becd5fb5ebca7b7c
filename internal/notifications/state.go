package notifications

// transitions lists every legal edge. pending -> pending is a reschedule
// (quiet hours or retry backoff). sent -> snoozed resurfaces a delivered
// notification.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusPending:   true,
		StatusSent:      true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusSnoozed:   true,
	},
	StatusSnoozed: {
		StatusPending:   true,
		StatusSent:      true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusSent: {
		StatusSnoozed: true,
	},
	StatusFailed:    {},
	StatusCancelled: {},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// IsTerminal reports whether no further transitions leave s. Sent is not
// terminal because it may be snoozed.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}
