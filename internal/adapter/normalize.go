package adapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rickgao/econcal/internal/instant"
	"github.com/rickgao/econcal/internal/model"
)

// Field aliases, lowercase.
var (
	idKeys       = []string{"id", "_id", "eventid", "event_id", "uid"}
	nameKeys     = []string{"name", "title", "event", "eventname", "event_name"}
	instantKeys  = []string{"datetime", "timestamp", "instant", "start", "instant_ms"}
	currencyKeys = []string{"currency", "country", "ccy"}
	impactKeys   = []string{"impact", "strength", "importance"}
	categoryKeys = []string{"category", "type"}
	actualKeys   = []string{"actual"}
	forecastKeys = []string{"forecast", "consensus"}
	previousKeys = []string{"previous", "prev", "prior"}
	sourceKeys   = []string{"source"}
)

// Normalize converts one raw upstream record into a model.Event.
func Normalize(raw map[string]any) model.Event {
	f := fold(raw)
	used := make(map[string]struct{})

	e := model.Event{
		ID:       f.str(used, idKeys...),
		Name:     f.str(used, nameKeys...),
		Time:     f.time(used),
		Source:   f.str(used, sourceKeys...),
		Currency: strings.ToUpper(f.str(used, currencyKeys...)),
		Impact:   model.ParseImpact(f.str(used, impactKeys...)),
		Category: f.str(used, categoryKeys...),
		Actual:   f.str(used, actualKeys...),
		Forecast: f.str(used, forecastKeys...),
		Previous: f.str(used, previousKeys...),
	}

	// A nested "extra" object is the encoded form of Event.Extra.
	if nested, ok := f.values["extra"].(map[string]any); ok {
		used["extra"] = struct{}{}
		for k, v := range nested {
			if e.Extra == nil {
				e.Extra = make(map[string]any)
			}
			e.Extra[k] = v
		}
	}

	for lower, orig := range f.names {
		if _, ok := used[lower]; ok {
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]any)
		}
		e.Extra[orig] = raw[orig]
	}
	return e
}

// NormalizeAll normalizes every record and fills missing IDs.
func NormalizeAll(raws []map[string]any) []model.Event {
	events := make([]model.Event, len(raws))
	for i, r := range raws {
		events[i] = Normalize(r)
	}
	model.EnsureIDs(events)
	return events
}

// DecodeEvents parses a JSON array of records, or an object holding one
// under "events" or "data".
func DecodeEvents(data []byte) ([]model.Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("adapter: empty document")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	switch data[0] {
	case '[':
		var raws []map[string]any
		if err := dec.Decode(&raws); err != nil {
			return nil, fmt.Errorf("adapter: decode events: %w", err)
		}
		return NormalizeAll(raws), nil
	case '{':
		var env map[string]json.RawMessage
		if err := dec.Decode(&env); err != nil {
			return nil, fmt.Errorf("adapter: decode envelope: %w", err)
		}
		for k, v := range env {
			lk := strings.ToLower(k)
			if lk == "events" || lk == "data" {
				return DecodeEvents(v)
			}
		}
		return nil, errors.New("adapter: envelope has no events field")
	}
	return nil, fmt.Errorf("adapter: unexpected document start %q", data[0])
}

// folded indexes a record by lowercase key. When two keys differ only in
// case, the already-lowercase one wins.
type folded struct {
	values map[string]any
	names  map[string]string
}

func fold(raw map[string]any) folded {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := folded{values: make(map[string]any, len(raw)), names: make(map[string]string, len(raw))}
	for _, k := range keys {
		lk := strings.ToLower(k)
		if _, exists := f.names[lk]; exists && k != lk {
			continue
		}
		f.values[lk] = raw[k]
		f.names[lk] = k
	}
	return f
}

func (f folded) str(used map[string]struct{}, keys ...string) string {
	for _, k := range keys {
		v, ok := f.values[k]
		if !ok {
			continue
		}
		used[k] = struct{}{}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

// time picks the event time: a combined datetime field wins, then a
// date/time pair, then a lone date or time field.
func (f folded) time(used map[string]struct{}) any {
	date, hasDate := f.values["date"]
	clock, hasClock := f.values["time"]
	if hasDate {
		used["date"] = struct{}{}
	}
	if hasClock {
		used["time"] = struct{}{}
	}

	for _, k := range instantKeys {
		if v, ok := f.values[k]; ok && !isBlank(v) {
			used[k] = struct{}{}
			return v
		}
	}

	switch {
	case hasDate && hasClock && !isBlank(clock):
		if s, ok := clock.(string); ok {
			if _, full := instant.Resolve(s); !full {
				return instant.Pair{Date: date, Time: s}
			}
		}
		return clock
	case hasDate:
		return date
	case hasClock:
		return clock
	}
	return nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
