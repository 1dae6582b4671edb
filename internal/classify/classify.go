package classify

import (
	"sort"
	"time"

	"github.com/rickgao/econcal/internal/model"
)

// IDSet is an unordered set of event keys.
type IDSet map[string]struct{}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the set size.
func (s IDSet) Len() int { return len(s) }

// Sorted returns the members in lexical order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Equal reports set equality.
func (s IDSet) Equal(o IDSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

// Result is the outcome of one classification call.
type Result struct {
	Now         IDSet
	Next        IDSet
	NextInstant int64 // valid only when HasNext
	HasNext     bool
}

// Classify computes the NOW and NEXT sets for events at instant now.
// Event keys come from model.IdentityKey: source-qualified, and positional
// for events without an upstream ID.
func Classify(events []model.Event, now int64, window time.Duration) Result {
	res := Result{Now: IDSet{}, Next: IDSet{}}
	windowMs := window.Milliseconds()

	type resolved struct {
		id string
		at int64
	}
	future := make([]resolved, 0, len(events))

	for i, e := range events {
		at, ok := e.Instant()
		if !ok {
			continue
		}
		id := model.IdentityKey(e, i)

		elapsed := now - at
		if elapsed >= 0 && elapsed < windowMs {
			res.Now[id] = struct{}{}
			continue
		}
		if at > now {
			future = append(future, resolved{id: id, at: at})
			if !res.HasNext || at < res.NextInstant {
				res.NextInstant = at
				res.HasNext = true
			}
		}
	}

	for _, f := range future {
		if f.at == res.NextInstant {
			res.Next[f.id] = struct{}{}
		}
	}
	return res
}

// StateOf picks the display state for the event keyed id with the given
// resolved instant (ok false when unresolvable).
func (r Result) StateOf(id string, at int64, ok bool, now int64) State {
	switch {
	case r.Now.Has(id):
		return StateNow
	case r.Next.Has(id):
		return StateNext
	case !ok:
		return StateUnscheduled
	case at > now:
		return StateFuture
	default:
		return StatePast
	}
}

// Equal reports whether two results hold the same sets and next instant.
func (r Result) Equal(o Result) bool {
	return r.HasNext == o.HasNext &&
		r.NextInstant == o.NextInstant &&
		r.Now.Equal(o.Now) &&
		r.Next.Equal(o.Next)
}
