// Package memsig locates byte signatures in the memory image of the
// running process, verifies raw matches with a small instruction
// language and can apply reversible byte patches at resolved addresses.
//
// A signature is compiled from pattern text once, combined with an
// optional instruction sequence into a ScanConfig, and then resolved
// any number of times by a Scanner. Matching is wildcard-aware and
// region-granular; verification navigates away from the raw match
// (offsets, RIP-relative follows) and checks bytes, integers or
// strings at the resulting addresses.
package memsig

import (
	"fmt"
	"strings"
)

// MaxPatternLength is the maximum number of byte tokens in a Pattern.
// Pattern text that compiles to more tokens is silently truncated.
const MaxPatternLength = 128

// ByteToken is a single position of a Pattern: either a wildcard,
// matching any byte, or a concrete byte value.
type ByteToken struct {
	Wildcard bool
	Value    byte
}

// Pattern is a bounded, immutable sequence of byte tokens. The zero
// value is the empty pattern, which never matches anything.
//
// Pattern is a comparable value type; == is structural equality over
// the token sequence and is what the scan cache keys on.
type Pattern struct {
	tokens [MaxPatternLength]ByteToken
	size   int
}

// InvalidCharacterError is returned by ParsePattern when the pattern
// text contains a character that is not hex, wildcard, space or an
// annotation bracket. Lowercase hex digits are invalid.
type InvalidCharacterError struct {
	Pattern string
	Pos     int
	Char    byte
}

func (err *InvalidCharacterError) Error() string {
	return fmt.Sprintf("invalid character %q at position %d in pattern %q", err.Char, err.Pos, err.Pattern)
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) byte {
	if c <= '9' {
		return c - '0'
	}
	return c - 'A' + 10
}

// ParsePattern compiles pattern text into a Pattern.
//
// The grammar: spaces and the annotation markers '<' and '>' are
// skipped anywhere; "??" or "?" is one wildcard token; one or two
// uppercase hex digits are one concrete token. A lone hex digit that
// is not followed by another hex digit yields the digit's value
// zero-extended to a full byte. Compilation stops silently once
// MaxPatternLength tokens have been produced. Any other character
// aborts with *InvalidCharacterError.
//
// ParsePattern is a pure function with no side effects.
func ParsePattern(s string) (Pattern, error) {
	var p Pattern
	for i := 0; i < len(s); i++ {
		if p.size >= MaxPatternLength {
			break
		}
		c := s[i]
		switch {
		case c == ' ' || c == '<' || c == '>':
			continue
		case c == '?':
			p.tokens[p.size] = ByteToken{Wildcard: true}
			p.size++
			// A double wildcard "??" consumes one byte position,
			// same as a single "?".
			if i+1 < len(s) && s[i+1] == '?' {
				i++
			}
		case isHexDigit(c):
			val := hexValue(c)
			if i+1 < len(s) && isHexDigit(s[i+1]) {
				val = val*16 + hexValue(s[i+1])
				i++
			}
			p.tokens[p.size] = ByteToken{Value: val}
			p.size++
		default:
			return Pattern{}, &InvalidCharacterError{Pattern: s, Pos: i, Char: c}
		}
	}
	return p, nil
}

// MustPattern is like ParsePattern but panics if the pattern text
// does not compile. It simplifies package level pattern variables.
func MustPattern(s string) Pattern {
	p, err := ParsePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Size returns the number of tokens in the pattern.
func (p Pattern) Size() int {
	return p.size
}

// Token returns the i-th token of the pattern.
func (p Pattern) Token(i int) ByteToken {
	if i < 0 || i >= p.size {
		panic("memsig: pattern token index out of range")
	}
	return p.tokens[i]
}

// Equal reports whether two patterns have the same token sequence.
func (p Pattern) Equal(q Pattern) bool {
	return p == q
}

// String renders the pattern in canonical text form, with every token
// as two characters ("??" for wildcards) separated by single spaces.
func (p Pattern) String() string {
	var sb strings.Builder
	for i := 0; i < p.size; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if p.tokens[i].Wildcard {
			sb.WriteString("??")
		} else {
			fmt.Fprintf(&sb, "%02X", p.tokens[i].Value)
		}
	}
	return sb.String()
}

// matches reports whether the pattern matches the window, which must
// be at least p.size bytes long. Wildcard tokens never mismatch.
func (p Pattern) matches(window []byte) bool {
	for i := 0; i < p.size; i++ {
		if !p.tokens[i].Wildcard && p.tokens[i].Value != window[i] {
			return false
		}
	}
	return true
}

// nextWildcardRun advances off, a token offset relative to the match
// start, to the beginning of the n-th subsequent maximal run of
// consecutive wildcard tokens. If off is already inside a run, that
// run does not count. Runs past the end of the pattern leave off at
// the pattern size.
func (p Pattern) nextWildcardRun(off int64, sets int64) int64 {
	for n := int64(0); n < sets; n++ {
		if off < 0 || off >= int64(p.size) {
			break
		}
		wasAtWildcard := p.tokens[off].Wildcard
	scan:
		for off < int64(p.size) {
			switch {
			case wasAtWildcard && p.tokens[off].Wildcard:
				off++
			case !wasAtWildcard && p.tokens[off].Wildcard:
				break scan
			default:
				off++
				wasAtWildcard = false
			}
		}
	}
	return off
}
