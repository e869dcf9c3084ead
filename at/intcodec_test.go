package at_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"i4.energy/across/atgw/at"
)

func TestFormatInt(t *testing.T) {
	tests := []struct {
		value    int32
		expected string
	}{
		{0, "0"},
		{-1, "-1"},
		{1, "1"},
		{-42, "-42"},
		{42, "42"},
		{1000, "1000"},
		{math.MinInt32, "-2147483648"},
		{math.MaxInt32, "2147483647"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			var scratch [at.MaxIntDigits]byte
			require.Equal(t, tt.expected, string(at.FormatInt(scratch[:], tt.value)))
		})
	}
}

func TestFormatIntShortScratchPanics(t *testing.T) {
	require.Panics(t, func() {
		at.FormatInt(make([]byte, at.MaxIntDigits-1), 1)
	})
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		input string
		want  int32
		ok    bool
	}{
		{"0", 0, true},
		{"-1", -1, true},
		{"1", 1, true},
		{"-42", -42, true},
		{"42", 42, true},
		{"007", 7, true},
		{"-2147483648", math.MinInt32, true},
		{"2147483647", math.MaxInt32, true},

		{"", 0, false},
		{"-", 0, false},
		{"abc", 0, false},
		{"-b", 0, false},
		{"123456a", 0, false},
		{"z12354", 0, false},
		{"+5", 0, false},
		{"1-2", 0, false},
		{"2147483648", 0, false},
		{"-2147483649", 0, false},
		{"99999999999", 0, false},
		{"123456789012", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := at.ParseInt([]byte(tt.input))
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestIntRoundTrip(t *testing.T) {
	values := []int32{math.MinInt32, math.MinInt32 + 1, -1, 0, 1, math.MaxInt32 - 1, math.MaxInt32}
	rng := rand.New(rand.NewSource(1))
	for range 1000 {
		values = append(values, int32(rng.Uint32()))
	}

	var scratch [at.MaxIntDigits]byte
	for _, v := range values {
		out := at.FormatInt(scratch[:], v)
		require.LessOrEqual(t, len(out), at.MaxIntDigits)

		got, ok := at.ParseInt(out)
		require.True(t, ok, "parse %q", out)
		require.Equal(t, v, got)
	}
}
