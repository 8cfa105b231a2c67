package mapping

// Extractor reads one candidate encoding of a logical field from a source entry.
// The bool reports whether the encoding was present; nil values count as absent.
type Extractor func(entry map[string]any) (any, bool)

// Field is a logical output column resolved from an ordered list of extractors.
// Aliases are added by appending extractors, never by branching in mappers.
type Field struct {
	Name       string
	Extractors []Extractor
}

// NewField builds a Field.
func NewField(name string, extractors ...Extractor) Field {
	return Field{Name: name, Extractors: extractors}
}

// Resolve returns the value of the first extractor that finds one.
func (f Field) Resolve(entry map[string]any) any {
	for _, ex := range f.Extractors {
		if v, ok := ex(entry); ok {
			return v
		}
	}
	return nil
}

// Key reads a top-level key.
func Key(name string) Extractor {
	return func(entry map[string]any) (any, bool) {
		v, ok := entry[name]
		if !ok || v == nil {
			return nil, false
		}
		return v, true
	}
}

// TypedCount reads the count for kind from a list of single-key objects, the
// Velib encoding: [{"mechanical": 3}, {"ebike": 4}].
func TypedCount(listKey, kind string) Extractor {
	return func(entry map[string]any) (any, bool) {
		for _, item := range listOf(entry, listKey) {
			if m, ok := item.(map[string]any); ok {
				if v, ok := m[kind]; ok && v != nil {
					return v, true
				}
			}
		}
		return nil, false
	}
}

// PairCount reads the count for kind from a list of type/count pairs, the GBFS
// encoding: [{"bike_type": "mechanical", "count": 10}].
func PairCount(listKey, typeKey, countKey, kind string) Extractor {
	return func(entry map[string]any) (any, bool) {
		for _, item := range listOf(entry, listKey) {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m[typeKey].(string); t == kind {
				if v, ok := m[countKey]; ok && v != nil {
					return v, true
				}
			}
		}
		return nil, false
	}
}

// FirstOf reads key from the first object of a list, e.g. the first application
// period of a disruption.
func FirstOf(listKey, key string) Extractor {
	return func(entry map[string]any) (any, bool) {
		list := listOf(entry, listKey)
		if len(list) == 0 {
			return nil, false
		}
		m, ok := list[0].(map[string]any)
		if !ok {
			return nil, false
		}
		return Key(key)(m)
	}
}

func listOf(entry map[string]any, key string) []any {
	list, _ := entry[key].([]any)
	return list
}
