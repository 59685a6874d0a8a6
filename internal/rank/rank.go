// Package rank implements string-keyed fractional indexing for ordered
// board columns. A Rank compares by plain byte order, so new positions can be
// minted before, after, or between existing ones without renumbering the
// rest of the column.
package rank

import (
	"errors"
	"fmt"
	"strings"
)

// Alphabet bounds. Every byte of a Rank lies in [MinChar, MaxChar].
const (
	MinChar byte = '0'
	MaxChar byte = 'z'
	MidChar byte = 'U'
)

var (
	// ErrInvalidRank is returned when a rank string is malformed or when no
	// rank can be produced on the requested side of it.
	ErrInvalidRank = errors.New("invalid rank")

	// ErrInvalidOrder is returned by Between when its bounds are not strictly
	// increasing.
	ErrInvalidOrder = errors.New("invalid rank order")
)

// Rank is an immutable sort key. The zero value is not a valid rank; use
// Min, Parse, or one of the generation functions.
type Rank struct {
	s string
}

// Min returns the canonical starting rank used for an empty column.
func Min() Rank {
	return Rank{s: string(MidChar)}
}

// Parse validates raw and wraps it as a Rank.
func Parse(raw string) (Rank, error) {
	if raw == "" {
		return Rank{}, fmt.Errorf("%w: empty", ErrInvalidRank)
	}
	if !Validate(raw) {
		return Rank{}, fmt.Errorf("%w: %q has characters outside [%c, %c]",
			ErrInvalidRank, raw, MinChar, MaxChar)
	}
	return Rank{s: raw}, nil
}

// MustParse is like Parse but panics on error. Intended for fixtures.
func MustParse(raw string) Rank {
	r, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate reports whether every character of raw lies within the alphabet.
func Validate(raw string) bool {
	for i := 0; i < len(raw); i++ {
		if raw[i] < MinChar || raw[i] > MaxChar {
			return false
		}
	}
	return true
}

// String returns the stored representation.
func (r Rank) String() string { return r.s }

// Len returns the number of characters in the rank.
func (r Rank) Len() int { return len(r.s) }

// IsZero reports whether r is the unset zero value.
func (r Rank) IsZero() bool { return r.s == "" }

// Compare returns -1, 0 or +1 using byte-wise comparison.
func (r Rank) Compare(other Rank) int { return strings.Compare(r.s, other.s) }

// Equals reports whether both ranks have identical strings.
func (r Rank) Equals(other Rank) bool { return r.s == other.s }

// Less reports whether r sorts strictly before other.
func (r Rank) Less(other Rank) bool { return r.s < other.s }

// MarshalText encodes the rank as its string form.
func (r Rank) MarshalText() ([]byte, error) {
	return []byte(r.s), nil
}

// Before returns a rank strictly less than b.
//
// The first character above MinChar is decremented and everything after it
// is filled with MaxChar. A rank made only of MinChar characters can still
// be undercut by dropping its last character; the single character MinChar
// is the absolute minimum and yields ErrInvalidRank.
func Before(b Rank) (Rank, error) {
	if b.IsZero() {
		return Rank{}, fmt.Errorf("%w: zero rank", ErrInvalidRank)
	}
	src := b.s
	for i := 0; i < len(src); i++ {
		if src[i] > MinChar {
			out := make([]byte, len(src))
			copy(out, src[:i])
			out[i] = src[i] - 1
			for j := i + 1; j < len(out); j++ {
				out[j] = MaxChar
			}
			return Rank{s: string(out)}, nil
		}
	}
	if len(src) == 1 {
		return Rank{}, fmt.Errorf("%w: nothing sorts before %q", ErrInvalidRank, src)
	}
	return Rank{s: src[:len(src)-1]}, nil
}

// After returns a rank strictly greater than a.
//
// The last character below MaxChar is incremented and the tail after it is
// dropped. A rank made only of MaxChar characters is extended with MidChar.
func After(a Rank) (Rank, error) {
	if a.IsZero() {
		return Rank{}, fmt.Errorf("%w: zero rank", ErrInvalidRank)
	}
	src := a.s
	for i := len(src) - 1; i >= 0; i-- {
		if src[i] < MaxChar {
			out := make([]byte, i+1)
			copy(out, src[:i])
			out[i] = src[i] + 1
			return Rank{s: string(out)}, nil
		}
	}
	return Rank{s: src + string(MidChar)}, nil
}

// Between returns a rank r with a < r < b.
//
// Both inputs are padded with MinChar to the same length and walked in
// step. At the first differing position the midpoint character is used
// when one fits; otherwise the lower character is kept and the result is
// extended past a's remaining characters towards MaxChar.
func Between(a, b Rank) (Rank, error) {
	if a.IsZero() || b.IsZero() {
		return Rank{}, fmt.Errorf("%w: zero rank", ErrInvalidRank)
	}
	if a.s >= b.s {
		return Rank{}, fmt.Errorf("%w: %q is not before %q", ErrInvalidOrder, a.s, b.s)
	}

	n := max(len(a.s), len(b.s))
	var out []byte
	for i := 0; i < n; i++ {
		lo, hi := charAt(a.s, i), charAt(b.s, i)
		if lo == hi {
			out = append(out, lo)
			continue
		}

		mid := byte((int(lo) + int(hi)) / 2)
		if mid > lo {
			out = append(out, mid)
			return Rank{s: string(out)}, nil
		}

		// lo and hi are adjacent: keep lo and go one level deeper, above
		// whatever a has left.
		out = append(out, lo)
		for j := i + 1; ; j++ {
			c := charAt(a.s, j)
			m := byte((int(c) + int(MaxChar)) / 2)
			if m > c {
				out = append(out, m)
				return Rank{s: string(out)}, nil
			}
			out = append(out, c)
		}
	}

	// a is b padded with MinChar (e.g. "U" and "U0"): no string fits.
	return Rank{}, fmt.Errorf("%w: no rank fits between %q and %q", ErrInvalidRank, a.s, b.s)
}

// GenerateRanks returns count strictly increasing ranks starting at Min.
func GenerateRanks(count int) []Rank {
	if count <= 0 {
		return []Rank{}
	}
	out := make([]Rank, count)
	out[0] = Min()
	for i := 1; i < count; i++ {
		// After never fails on a non-zero rank.
		out[i], _ = After(out[i-1])
	}
	return out
}

func charAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return MinChar
}
