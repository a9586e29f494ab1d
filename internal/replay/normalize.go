package replay

import (
	"fmt"
	"slices"

	"github.com/roach88/carp/internal/wire"
)

// Normalizer replaces non-deterministic values (timestamps, generated IDs)
// before logged requests are compared.
//
// Every value stored under one of Fields, at any depth, is replaced by a
// placeholder "<field#n>" where n numbers distinct original values in order of
// first appearance. Equal originals get equal placeholders, so references
// between entries survive normalization.
type Normalizer struct {
	Fields []string
}

// Normalize returns normalized copies of entries. Entry IDs are cleared.
// Placeholders are numbered across all entries together.
func (n Normalizer) Normalize(entries []LoggedRequest) []LoggedRequest {
	state := n.newState()
	out := make([]LoggedRequest, len(entries))
	for i, e := range entries {
		c := e.clone()
		c.ID = ""
		c.Request = state.object(c.Request)
		for j := range c.PrecedingEvents {
			c.PrecedingEvents[j] = state.object(c.PrecedingEvents[j])
		}
		for j := range c.PublishedEvents {
			c.PublishedEvents[j] = state.object(c.PublishedEvents[j])
		}
		if c.Response != nil {
			c.Response = state.value(c.Response)
		}
		out[i] = c
	}
	return out
}

// Value normalizes a single value.
func (n Normalizer) Value(v wire.Value) wire.Value {
	return n.newState().value(wire.Clone(v))
}

type normalizeState struct {
	fields []string
	seen   map[string]map[string]int
}

func (n Normalizer) newState() *normalizeState {
	return &normalizeState{fields: n.Fields, seen: make(map[string]map[string]int)}
}

// value rewrites v in place and returns it.
func (s *normalizeState) value(v wire.Value) wire.Value {
	switch val := v.(type) {
	case wire.Object:
		return s.object(val)
	case wire.Array:
		for i := range val {
			val[i] = s.value(val[i])
		}
		return val
	default:
		return v
	}
}

func (s *normalizeState) object(obj wire.Object) wire.Object {
	if len(s.fields) == 0 {
		return obj
	}
	// Sorted traversal keeps placeholder numbering deterministic.
	for _, k := range obj.SortedKeys() {
		if slices.Contains(s.fields, k) {
			if _, isNull := obj[k].(wire.Null); !isNull {
				obj[k] = s.placeholder(k, obj[k])
			}
			continue
		}
		obj[k] = s.value(obj[k])
	}
	return obj
}

func (s *normalizeState) placeholder(field string, v wire.Value) wire.String {
	key := string(wire.MustMarshal(v))
	byValue, ok := s.seen[field]
	if !ok {
		byValue = make(map[string]int)
		s.seen[field] = byValue
	}
	n, ok := byValue[key]
	if !ok {
		n = len(byValue) + 1
		byValue[key] = n
	}
	return wire.String(fmt.Sprintf("<%s#%d>", field, n))
}
