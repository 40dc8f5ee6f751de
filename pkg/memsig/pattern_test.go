package memsig

import (
	"errors"
	"strings"
	"testing"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain bytes", "1A 2B 3C 4D", "1A 2B 3C 4D"},
		{"double wildcard", "1A 2B ?? 4D", "1A 2B ?? 4D"},
		{"single wildcard", "1A 2B ? 4D", "1A 2B ?? 4D"},
		{"no spaces", "1A2B3C", "1A 2B 3C"},
		{"wildcards without spaces", "??????", "?? ?? ??"},
		{"odd wildcard count", "???", "?? ??"},
		{"annotation markers", "48 8B <05 ?? ?? ?? ??> C3", "48 8B 05 ?? ?? ?? ?? C3"},
		{"trailing single digit", "1A 2", "1A 02"},
		{"single digits", "1 A", "01 0A"},
		{"empty", "", ""},
		{"only separators", " <> < > ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePattern(tt.in)
			if err != nil {
				t.Fatalf("ParsePattern(%q) returned error %v", tt.in, err)
			}
			if got := p.String(); got != tt.want {
				t.Errorf("ParsePattern(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePatternInvalidCharacter(t *testing.T) {
	tests := []struct {
		in   string
		pos  int
		char byte
	}{
		{"1a", 1, 'a'},      // lowercase hex is rejected
		{"ff", 0, 'f'},      //
		{"1A G0", 3, 'G'},   //
		{"1A,2B", 2, ','},   //
		{"1A 2B\t3C", 5, 9}, // tab is not a separator
	}
	for _, tt := range tests {
		_, err := ParsePattern(tt.in)
		var perr *InvalidCharacterError
		if !errors.As(err, &perr) {
			t.Errorf("ParsePattern(%q) error = %v, want *InvalidCharacterError", tt.in, err)
			continue
		}
		if perr.Pos != tt.pos || perr.Char != tt.char {
			t.Errorf("ParsePattern(%q) error = pos %d char %q, want pos %d char %q",
				tt.in, perr.Pos, perr.Char, tt.pos, tt.char)
		}
	}
}

func TestParsePatternTruncation(t *testing.T) {
	// 200 tokens compile, the pattern keeps the first 128 and drops
	// the rest silently. The text past the capacity is not validated.
	long := strings.Repeat("90 ", 200)
	p, err := ParsePattern(long)
	if err != nil {
		t.Fatalf("ParsePattern returned error %v", err)
	}
	if p.Size() != MaxPatternLength {
		t.Errorf("Size = %d, want %d", p.Size(), MaxPatternLength)
	}

	p, err = ParsePattern(strings.Repeat("90 ", MaxPatternLength) + "zz")
	if err != nil {
		t.Errorf("invalid text after capacity should not be reached, got error %v", err)
	}
	if p.Size() != MaxPatternLength {
		t.Errorf("Size = %d, want %d", p.Size(), MaxPatternLength)
	}
}

func TestPatternSizeBound(t *testing.T) {
	for _, in := range []string{"", "1A", strings.Repeat("??", 500), strings.Repeat("AB CD ", 100)} {
		p, err := ParsePattern(in)
		if err != nil {
			t.Fatalf("ParsePattern(%q) returned error %v", in, err)
		}
		if p.Size() > MaxPatternLength {
			t.Errorf("ParsePattern(%q).Size() = %d exceeds %d", in, p.Size(), MaxPatternLength)
		}
	}
}

func TestPatternEqual(t *testing.T) {
	a := MustPattern("1A 2B ?? 4D")
	b := MustPattern("1A2B?4D")
	if !a.Equal(b) {
		t.Errorf("%q and %q should compile to equal patterns", a, b)
	}
	c := MustPattern("1A 2B ?? 4E")
	if a.Equal(c) {
		t.Errorf("%q and %q should not be equal", a, c)
	}
	if a.Equal(Pattern{}) {
		t.Error("non-empty pattern equals the zero pattern")
	}
}

func TestPatternTokens(t *testing.T) {
	p := MustPattern("00 ?? FF")
	want := []ByteToken{{}, {Wildcard: true}, {Value: 0xFF}}
	if p.Size() != len(want) {
		t.Fatalf("Size = %d, want %d", p.Size(), len(want))
	}
	for i, w := range want {
		if got := p.Token(i); got != w {
			t.Errorf("Token(%d) = %+v, want %+v", i, got, w)
		}
	}
}

func TestPatternMatches(t *testing.T) {
	p := MustPattern("1A 2B ?? 4D")
	tests := []struct {
		window []byte
		want   bool
	}{
		{[]byte{0x1A, 0x2B, 0x00, 0x4D}, true},
		{[]byte{0x1A, 0x2B, 0xFF, 0x4D}, true},
		{[]byte{0x1A, 0x2B, 0x00, 0x4E}, false},
		{[]byte{0x1B, 0x2B, 0x00, 0x4D}, false},
	}
	for _, tt := range tests {
		if got := p.matches(tt.window); got != tt.want {
			t.Errorf("matches(% X) = %v, want %v", tt.window, got, tt.want)
		}
	}
}

func TestNextWildcardRun(t *testing.T) {
	// Runs start at offsets 2 and 5.
	p := MustPattern("48 8B ?? ?? 4C ?? 8D")
	tests := []struct {
		off, sets, want int64
	}{
		{0, 1, 2},
		{0, 2, 5},
		{2, 1, 5}, // already inside the first run
		{3, 1, 5},
		{5, 1, 7}, // no further run, lands at pattern end
		{0, 3, 7},
		{6, 1, 7},
	}
	for _, tt := range tests {
		if got := p.nextWildcardRun(tt.off, tt.sets); got != tt.want {
			t.Errorf("nextWildcardRun(%d, %d) = %d, want %d", tt.off, tt.sets, got, tt.want)
		}
	}
}
