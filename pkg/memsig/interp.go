package memsig

import "bytes"

// runInstructions executes cfg's verification sequence against a raw
// match at addr. The cursor starts at addr and the address stack
// starts empty. Instructions run strictly in order; the first failed
// comparison, pop of an empty stack or unreadable memory access stops
// the attempt. It returns the final cursor and whether the attempt
// succeeded.
func runInstructions(mem MemoryReader, cfg *ScanConfig, addr uint64) (uint64, bool) {
	cursor := addr
	var stack []uint64

	// Token offset from the match start, tracked for wildcard run
	// navigation. Only Offset and AdvanceWildcardRun move it; Follow
	// and PopAddress leave the cursor unrelated to the pattern.
	patternOff := int64(0)

	for _, in := range cfg.instrs {
		switch in.op {
		case opOffset:
			patternOff += in.value
			cursor = uint64(int64(cursor) + in.value)
		case opFollow:
			target, err := FollowRelative(mem, cursor)
			if err != nil {
				return 0, false
			}
			cursor = target
		case opStrcmp:
			if !narrowStringAt(mem, cursor, in.str) {
				return 0, false
			}
		case opWcscmp:
			if !wideStringAt(mem, cursor, in.wstr) {
				return 0, false
			}
		case opCmpI8, opCmpI16, opCmpI32, opCmpI64:
			if !intEqualsAt(mem, cursor, in) {
				return 0, false
			}
		case opPushAddr:
			stack = append(stack, cursor)
		case opPopAddr:
			if len(stack) == 0 {
				return 0, false
			}
			cursor = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		case opAdvWildcard:
			patternOff = cfg.pattern.nextWildcardRun(patternOff, in.value)
			cursor = uint64(int64(addr) + patternOff)
		}
	}
	return cursor, true
}

// narrowStringAt follows the relative address at addr and compares
// the NUL-terminated narrow string there to text. Reading one byte
// past the text length keeps C strcmp semantics: a stored string with
// extra trailing characters does not compare equal.
func narrowStringAt(mem MemoryReader, addr uint64, text string) bool {
	target, err := FollowRelative(mem, addr)
	if err != nil {
		return false
	}
	want := append([]byte(text), 0)
	got := make([]byte, len(want))
	if _, err := mem.ReadMemory(got, target); err != nil {
		return false
	}
	return bytes.Equal(got, want)
}

func wideStringAt(mem MemoryReader, addr uint64, text []uint16) bool {
	target, err := FollowRelative(mem, addr)
	if err != nil {
		return false
	}
	want := make([]byte, 2*(len(text)+1))
	for i, cu := range text {
		want[2*i] = byte(cu)
		want[2*i+1] = byte(cu >> 8)
	}
	got := make([]byte, len(want))
	if _, err := mem.ReadMemory(got, target); err != nil {
		return false
	}
	return bytes.Equal(got, want)
}

func intEqualsAt(mem MemoryReader, addr uint64, in Instruction) bool {
	var size int
	switch in.op {
	case opCmpI8:
		size = 1
	case opCmpI16:
		size = 2
	case opCmpI32:
		size = 4
	default:
		size = 8
	}
	v, err := readUint(mem, addr, size)
	if err != nil {
		return false
	}
	switch in.op {
	case opCmpI8:
		return int8(v) == int8(in.value)
	case opCmpI16:
		return int16(v) == int16(in.value)
	case opCmpI32:
		return int32(v) == int32(in.value)
	default:
		return int64(v) == in.value
	}
}
