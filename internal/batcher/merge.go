package batcher

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rickgao/econcal/internal/daterange"
	"github.com/rickgao/econcal/internal/model"
)

// mergedQuery is the superset query for one cycle.
type mergedQuery struct {
	Range   daterange.Range
	Filters model.Filters
}

// merge unions the ranges and filter sets of valid requests. A request with
// an empty set on some attribute leaves that attribute unfiltered for the
// whole cycle.
func merge(reqs []*pending) mergedQuery {
	ranges := make([]daterange.Range, 0, len(reqs))
	impacts := make([][]model.Impact, 0, len(reqs))
	currencies := make([][]string, 0, len(reqs))
	sources := make([][]string, 0, len(reqs))

	for _, p := range reqs {
		ranges = append(ranges, p.rng)
		impacts = append(impacts, p.req.Filters.Impacts)
		currencies = append(currencies, p.req.Filters.Currencies)
		sources = append(sources, p.req.Filters.Sources)
	}

	rng, _ := daterange.Union(ranges...)
	return mergedQuery{
		Range: rng,
		Filters: model.Filters{
			Impacts:    unionImpacts(impacts),
			Currencies: unionFold(currencies, canonCurrency),
			Sources:    unionFold(sources, strings.TrimSpace),
		},
	}
}

func canonCurrency(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func unionImpacts(sets [][]model.Impact) []model.Impact {
	seen := make(map[model.Impact]struct{})
	for _, set := range sets {
		if len(set) == 0 {
			return nil
		}
		for _, v := range set {
			seen[model.ParseImpact(string(v))] = struct{}{}
		}
	}
	out := make([]model.Impact, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func unionFold(sets [][]string, canon func(string) string) []string {
	seen := make(map[string]struct{})
	for _, set := range sets {
		if len(set) == 0 {
			return nil
		}
		for _, v := range set {
			seen[canon(v)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// key identifies the query for in-flight sharing. Filter slices are sorted
// by merge, so equal queries produce equal keys.
func (q mergedQuery) key() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(q.Range.Start, 10))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(q.Range.End, 10))
	sb.WriteByte('|')
	for i, v := range q.Filters.Impacts {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(string(v))
	}
	sb.WriteByte('|')
	sb.WriteString(strings.Join(q.Filters.Currencies, ","))
	sb.WriteByte('|')
	sb.WriteString(strings.Join(q.Filters.Sources, ","))
	return sb.String()
}

// selectEvents applies one request's exact range and filters to the shared
// result, preserving upstream order.
func selectEvents(events []model.Event, rng daterange.Range, f model.Filters) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		at, ok := e.Instant()
		if !ok || !rng.Contains(at) {
			continue
		}
		if !f.Match(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}
