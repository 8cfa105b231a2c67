package mapping

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// rfc3339UTC is the layout curated timestamps are written in.
const rfc3339UTC = "2006-01-02T15:04:05Z"

// ToInt coerces v to an integer. Floats are truncated toward zero; anything that
// cannot be read as a number gives nil.
func ToInt(v any) *int64 {
	var n int64
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float32:
		return truncate(float64(x))
	case float64:
		return truncate(x)
	case bool:
		if x {
			n = 1
		}
	case json.Number:
		if i, err := x.Int64(); err == nil {
			n = i
		} else if f, err := x.Float64(); err == nil {
			return truncate(f)
		} else {
			return nil
		}
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}

func truncate(f float64) *int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= 1<<63 || f < math.MinInt64 {
		return nil
	}
	n := int64(f)
	return &n
}

// ToFloat coerces v to a float, nil when it is not numeric.
func ToFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case float64:
		f = x
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ToString renders scalars as text. Objects, arrays and nil give nil.
func ToString(v any) *string {
	var s string
	switch x := v.(type) {
	case nil, map[string]any, []any:
		return nil
	case string:
		s = x
	case json.Number:
		s = x.String()
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = fmt.Sprint(x)
	}
	return &s
}

// EpochToRFC3339 converts epoch seconds to a UTC RFC3339 string. Text that
// already parses as RFC3339 is normalized to UTC; anything else gives nil.
func EpochToRFC3339(v any) *string {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
			out := t.UTC().Format(rfc3339UTC)
			return &out
		}
	}
	secs := ToInt(v)
	if secs == nil {
		return nil
	}
	out := time.Unix(*secs, 0).UTC().Format(rfc3339UTC)
	return &out
}
