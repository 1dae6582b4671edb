package classify

// State is an event's display state. Higher values take priority.
type State int

const (
	StateUnscheduled State = iota
	StatePast
	StateFuture
	StateNext
	StateNow
)

func (s State) String() string {
	switch s {
	case StatePast:
		return "past"
	case StateFuture:
		return "future"
	case StateNext:
		return "next"
	case StateNow:
		return "now"
	default:
		return "unscheduled"
	}
}

// MarshalText encodes the state as its lowercase name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Pick returns the highest-priority state among states.
func Pick(states ...State) State {
	best := StateUnscheduled
	for _, s := range states {
		if s > best {
			best = s
		}
	}
	return best
}

// UnmarshalText decodes a lowercase state name. Unknown names decode as
// StateUnscheduled.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "past":
		*s = StatePast
	case "future":
		*s = StateFuture
	case "next":
		*s = StateNext
	case "now":
		*s = StateNow
	default:
		*s = StateUnscheduled
	}
	return nil
}
