package at

import (
	"math"
	"slices"
)

// MaxIntDigits is the longest decimal rendering of an int32, "-2147483648".
// Scratch buffers handed to FormatInt must be at least this long.
const MaxIntDigits = 11

// FormatInt writes the decimal representation of v into dst and returns the
// written prefix of dst.
//
// dst must hold at least MaxIntDigits bytes; a shorter scratch buffer is a
// programming error and panics.
func FormatInt(dst []byte, v int32) []byte {
	if len(dst) < MaxIntDigits {
		panic("at: FormatInt scratch buffer shorter than MaxIntDigits")
	}

	negative := v < 0
	// Work on the negative side: it can hold math.MinInt32, the positive side can't.
	if !negative {
		v = -v
	}

	n := 0
	if v == 0 {
		dst[n] = '0'
		n++
	}
	for v != 0 {
		dst[n] = '0' + byte(-(v % 10))
		n++
		v /= 10
	}
	if negative {
		dst[n] = '-'
		n++
	}

	// Digits were produced least significant first.
	slices.Reverse(dst[:n])
	return dst[:n]
}

// ParseInt parses an optional '-' followed by ASCII digits, at most
// MaxIntDigits bytes in total. Anything else, including values that do not
// fit in an int32, reports false.
func ParseInt(b []byte) (int32, bool) {
	if len(b) == 0 || len(b) > MaxIntDigits {
		return 0, false
	}

	negative := b[0] == '-'
	if negative {
		b = b[1:]
		if len(b) == 0 {
			return 0, false
		}
	}

	// Accumulate negatively for the same reason as FormatInt.
	var v int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 - int64(c-'0')
		if v < math.MinInt32 {
			return 0, false
		}
	}

	if negative {
		return int32(v), true
	}
	if v == math.MinInt32 {
		return 0, false
	}
	return int32(-v), true
}
