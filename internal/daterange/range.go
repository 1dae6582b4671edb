package daterange

import "github.com/rickgao/econcal/internal/instant"

// Range is the closed interval [Start, End] in epoch milliseconds.
type Range struct {
	Start int64
	End   int64
}

// New resolves both bounds with instant.Resolve. It reports false when
// either bound is absent or Start is after End.
func New(start, end any) (Range, bool) {
	s, ok := instant.Resolve(start)
	if !ok {
		return Range{}, false
	}
	e, ok := instant.Resolve(end)
	if !ok {
		return Range{}, false
	}
	r := Range{Start: s, End: e}
	return r, r.Valid()
}

// Valid reports whether Start <= End.
func (r Range) Valid() bool {
	return r.Start <= r.End
}

// Contains reports whether t lies in r, bounds included.
func (r Range) Contains(t int64) bool {
	return t >= r.Start && t <= r.End
}

// Union returns the smallest range covering every valid input range.
// Invalid ranges are ignored; ok is false when none is valid.
func Union(ranges ...Range) (Range, bool) {
	var out Range
	found := false
	for _, r := range ranges {
		if !r.Valid() {
			continue
		}
		if !found {
			out = r
			found = true
			continue
		}
		out.Start = Min(out.Start, r.Start)
		out.End = Max(out.End, r.End)
	}
	return out, found
}

// Min returns the smaller instant.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger instant.
func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
