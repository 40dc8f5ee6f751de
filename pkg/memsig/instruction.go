package memsig

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

// MaxInstructionLength is the maximum number of instructions in a
// ScanConfig's verification sequence.
const MaxInstructionLength = 16

type opKind uint8

const (
	opNone opKind = iota
	opOffset
	opFollow
	opStrcmp
	opWcscmp
	opCmpI8
	opCmpI16
	opCmpI32
	opCmpI64
	opPushAddr
	opPopAddr
	opAdvWildcard
)

// Instruction is one step of a verification sequence. Values are only
// built through the constructor functions, which guarantees that each
// operation carries exactly the payload it needs.
type Instruction struct {
	op    opKind
	value int64
	str   string
	wstr  []uint16
}

// Offset adds delta bytes to the cursor.
func Offset(delta int64) Instruction {
	return Instruction{op: opOffset, value: delta}
}

// Follow reads a 4-byte little-endian signed displacement at the
// cursor and moves the cursor to cursor+displacement+4, the x64
// RIP-relative convention.
func Follow() Instruction {
	return Instruction{op: opFollow}
}

// StringEquals follows the relative address at the cursor and fails
// the attempt unless the NUL-terminated narrow string there equals
// text.
func StringEquals(text string) Instruction {
	return Instruction{op: opStrcmp, str: text}
}

// WideStringEquals follows the relative address at the cursor and
// fails the attempt unless the NUL-terminated wide (2-byte code unit)
// string there equals text. The text is encoded to UTF-16 at
// construction time.
func WideStringEquals(text string) Instruction {
	return Instruction{op: opWcscmp, wstr: utf16.Encode([]rune(text))}
}

// CompareInt8 fails the attempt unless the byte at the cursor,
// read as a signed 8-bit integer, equals expected (truncated).
func CompareInt8(expected int64) Instruction {
	return Instruction{op: opCmpI8, value: expected}
}

// CompareInt16 fails the attempt unless the little-endian signed
// 16-bit integer at the cursor equals expected (truncated).
func CompareInt16(expected int64) Instruction {
	return Instruction{op: opCmpI16, value: expected}
}

// CompareInt32 fails the attempt unless the little-endian signed
// 32-bit integer at the cursor equals expected (truncated).
func CompareInt32(expected int64) Instruction {
	return Instruction{op: opCmpI32, value: expected}
}

// CompareInt64 fails the attempt unless the little-endian signed
// 64-bit integer at the cursor equals expected.
func CompareInt64(expected int64) Instruction {
	return Instruction{op: opCmpI64, value: expected}
}

// PushAddress pushes a copy of the cursor onto the address stack.
func PushAddress() Instruction {
	return Instruction{op: opPushAddr}
}

// PopAddress pops the last pushed address into the cursor. Popping an
// empty stack fails the attempt.
func PopAddress() Instruction {
	return Instruction{op: opPopAddr}
}

// AdvanceWildcardRun moves the cursor, relative to the match start,
// to the beginning of the sets-th subsequent maximal run of wildcard
// tokens in the pattern. Values below 1 are clamped to 1.
func AdvanceWildcardRun(sets int64) Instruction {
	if sets < 1 {
		sets = 1
	}
	return Instruction{op: opAdvWildcard, value: sets}
}

func (in Instruction) String() string {
	switch in.op {
	case opOffset:
		return fmt.Sprintf("offset %d", in.value)
	case opFollow:
		return "follow"
	case opStrcmp:
		return fmt.Sprintf("strcmp %q", in.str)
	case opWcscmp:
		return fmt.Sprintf("wcscmp %q", string(utf16.Decode(in.wstr)))
	case opCmpI8:
		return fmt.Sprintf("cmpi8 %d", in.value)
	case opCmpI16:
		return fmt.Sprintf("cmpi16 %d", in.value)
	case opCmpI32:
		return fmt.Sprintf("cmpi32 %d", in.value)
	case opCmpI64:
		return fmt.Sprintf("cmpi64 %d", in.value)
	case opPushAddr:
		return "push"
	case opPopAddr:
		return "pop"
	case opAdvWildcard:
		return fmt.Sprintf("advance %d", in.value)
	}
	return "nop"
}

// ErrTooManyInstructions is returned when a configuration is built
// with more than MaxInstructionLength instructions.
var ErrTooManyInstructions = errors.New("too many instructions for scan configuration")

// ScanConfig pairs one pattern with one verification sequence. It is
// immutable after construction and safe to share between goroutines.
type ScanConfig struct {
	pattern Pattern
	instrs  []Instruction
}

// NewConfig compiles patternText and pairs it with the given
// instruction sequence.
func NewConfig(patternText string, instrs ...Instruction) (*ScanConfig, error) {
	p, err := ParsePattern(patternText)
	if err != nil {
		return nil, err
	}
	return ConfigForPattern(p, instrs...)
}

// ConfigForPattern pairs an already compiled pattern with the given
// instruction sequence.
func ConfigForPattern(p Pattern, instrs ...Instruction) (*ScanConfig, error) {
	if len(instrs) > MaxInstructionLength {
		return nil, ErrTooManyInstructions
	}
	cp := make([]Instruction, len(instrs))
	copy(cp, instrs)
	return &ScanConfig{pattern: p, instrs: cp}, nil
}

// MustConfig is like NewConfig but panics on error. It simplifies
// package level configuration variables.
func MustConfig(patternText string, instrs ...Instruction) *ScanConfig {
	cfg, err := NewConfig(patternText, instrs...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Pattern returns the configuration's compiled pattern.
func (cfg *ScanConfig) Pattern() Pattern {
	return cfg.pattern
}

// Instructions returns a copy of the verification sequence.
func (cfg *ScanConfig) Instructions() []Instruction {
	cp := make([]Instruction, len(cfg.instrs))
	copy(cp, cfg.instrs)
	return cp
}
