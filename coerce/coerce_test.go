package coerce_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theplant/regsync/coerce"
)

func TestInt64(t *testing.T) {
	tests := []struct {
		raw  string
		want *int64
	}{
		{"3", int64p(3)},
		{" 42 ", int64p(42)},
		{"-7", int64p(-7)},
		{"3.9", int64p(3)}, // decimal-looking integers truncate
		{"", nil},
		{"NULL", nil},
		{"abc", nil},
		{"12abc", nil},
	}
	for _, tt := range tests {
		got := coerce.Int64(tt.raw)
		if tt.want == nil {
			assert.Nil(t, got, "raw=%q", tt.raw)
		} else {
			require.NotNil(t, got, "raw=%q", tt.raw)
			assert.Equal(t, *tt.want, *got, "raw=%q", tt.raw)
		}
	}
}

func TestFloat64(t *testing.T) {
	tests := []struct {
		raw  string
		want *float64
	}{
		{"3.25", float64p(3.25)},
		{"0", float64p(0)},
		{"", nil}, // empty decimal is null, not 0 and not NaN
		{"NULL", nil},
		{"NaN", nil},
		{"+Inf", nil},
		{"12,500", nil},
		{"garbage", nil},
	}
	for _, tt := range tests {
		got := coerce.Float64(tt.raw)
		if tt.want == nil {
			assert.Nil(t, got, "raw=%q", tt.raw)
		} else {
			require.NotNil(t, got, "raw=%q", tt.raw)
			assert.Equal(t, *tt.want, *got, "raw=%q", tt.raw)
		}
	}
}

func TestBoolDistinguishesUnknownFromFalse(t *testing.T) {
	// Null raw means unknown, not false.
	assert.Nil(t, coerce.Bool(""))
	assert.Nil(t, coerce.Bool("NULL"))
	assert.Nil(t, coerce.Bool("   "))

	for _, raw := range []string{"y", "Y", "yes", "YES", "true", "TRUE", "1"} {
		got := coerce.Bool(raw)
		require.NotNil(t, got, "raw=%q", raw)
		assert.True(t, *got, "raw=%q", raw)
	}

	for _, raw := range []string{"n", "no", "false", "0", "maybe"} {
		got := coerce.Bool(raw)
		require.NotNil(t, got, "raw=%q", raw)
		assert.False(t, *got, "raw=%q", raw)
	}
}

func TestDate(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"20240115", "2024-01-15"},
		{"01/15/2024", "2024-01-15"},
		{"1/5/2024", "2024-01-05"},
	}
	for _, tt := range tests {
		got := coerce.Date(tt.raw)
		require.NotNil(t, got, "raw=%q", tt.raw)
		assert.Equal(t, tt.want, *got, "raw=%q", tt.raw)
	}

	assert.Nil(t, coerce.Date(""))
	assert.Nil(t, coerce.Date("NULL"))
}

func TestDatePassThrough(t *testing.T) {
	// Unrecognized shapes survive verbatim. This is deliberate policy
	// inherited from the source system, pinned here so a future change
	// is a conscious one.
	for _, raw := range []string{"2024-01-15", "January 15, 2024", "15.01.2024", "n/a"} {
		got := coerce.Date(raw)
		require.NotNil(t, got, "raw=%q", raw)
		assert.Equal(t, raw, *got, "raw=%q", raw)
	}
}

func TestText(t *testing.T) {
	got := coerce.Text("  Shady Pines Care Center  ", 255)
	require.NotNil(t, got)
	assert.Equal(t, "Shady Pines Care Center", *got)

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	got = coerce.Text(string(long), 255)
	require.NotNil(t, got)
	assert.Len(t, *got, 255)

	assert.Nil(t, coerce.Text("", 255))
	assert.Nil(t, coerce.Text("NULL", 255))
}

func int64p(v int64) *int64       { return &v }
func float64p(v float64) *float64 { return &v }
