package mapping

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToInt(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want *int64
	}{
		{"int", 5, ptr[int64](5)},
		{"numeric string", "42", ptr[int64](42)},
		{"padded string", " 7 ", ptr[int64](7)},
		{"json number", json.Number("12"), ptr[int64](12)},
		{"float truncates", 3.9, ptr[int64](3)},
		{"float at 2^63", float64(1 << 63), nil},
		{"float at -2^63", float64(-1 << 63), ptr[int64](-1 << 63)},
		{"true", true, ptr[int64](1)},
		{"false", false, ptr[int64](0)},
		{"nil", nil, nil},
		{"garbage", "abc", nil},
		{"object", map[string]any{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToInt(tt.in))
		})
	}
}

func TestToFloat(t *testing.T) {
	assert.Equal(t, ptr(48.86), ToFloat(48.86))
	assert.Equal(t, ptr(2.35), ToFloat(json.Number("2.35")))
	assert.Equal(t, ptr(1.5), ToFloat("1.5"))
	assert.Nil(t, ToFloat("north"))
	assert.Nil(t, ToFloat(nil))
}

func TestToString(t *testing.T) {
	assert.Equal(t, ptr("123"), ToString(json.Number("123")))
	assert.Equal(t, ptr("123"), ToString(float64(123)))
	assert.Equal(t, ptr("abc"), ToString("abc"))
	assert.Equal(t, ptr("true"), ToString(true))
	assert.Nil(t, ToString(nil))
	assert.Nil(t, ToString([]any{1}))
	assert.Nil(t, ToString(map[string]any{"a": 1}))
}

func TestEpochToRFC3339(t *testing.T) {
	got := EpochToRFC3339(1737734400)
	require.NotNil(t, got)
	assert.Equal(t, "2025-01-24T16:00:00Z", *got)

	got = EpochToRFC3339(json.Number("1737734400"))
	require.NotNil(t, got)
	assert.Equal(t, "2025-01-24T16:00:00Z", *got)

	got = EpochToRFC3339("2025-01-24T17:00:00+01:00")
	require.NotNil(t, got)
	assert.Equal(t, "2025-01-24T16:00:00Z", *got)

	assert.Nil(t, EpochToRFC3339(nil))
	assert.Nil(t, EpochToRFC3339("garbage"))
}

func ptr[T any](v T) *T { return &v }
