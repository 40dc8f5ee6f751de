package memsig

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// MemoryReader is like io.ReaderAt, but the offset is a uint64 so
// that it can address all of 64-bit memory.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// MemoryReadWriter adds memory writes to MemoryReader. Patch requires
// it; scanning only needs reads.
type MemoryReadWriter interface {
	MemoryReader
	WriteMemory(addr uint64, data []byte) (written int, err error)
}

// InvalidAddressError is returned for memory accesses through an
// address that can never be dereferenced.
type InvalidAddressError struct {
	Address uint64
}

func (err InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %#x", err.Address)
}

// processMemory accesses the running process's own address space
// directly. It is the single trusted unsafe boundary of the package;
// everything else manipulates plain address values.
type processMemory struct{}

// ProcessMemory returns a MemoryReadWriter over the running process's
// own address space. Accesses are unchecked: reading or writing an
// unmapped address faults, which is the caller's responsibility to
// avoid. The Scanner only reads addresses inside regions it has
// queried first.
func ProcessMemory() MemoryReadWriter {
	return processMemory{}
}

func (processMemory) ReadMemory(buf []byte, addr uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if addr == 0 {
		return 0, InvalidAddressError{Address: addr}
	}
	copy(buf, unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(buf)))
	return len(buf), nil
}

func (processMemory) WriteMemory(addr uint64, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if addr == 0 {
		return 0, InvalidAddressError{Address: addr}
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(data)), data)
	return len(data), nil
}

func readUint(mem MemoryReader, addr uint64, size int) (uint64, error) {
	buf := make([]byte, size)
	if _, err := mem.ReadMemory(buf, addr); err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf)), nil
	default:
		return binary.LittleEndian.Uint64(buf), nil
	}
}

// FollowRelative reads a 4-byte little-endian signed displacement at
// addr and returns addr+displacement+4, the address an x64
// RIP-relative operand at addr resolves to.
func FollowRelative(mem MemoryReader, addr uint64) (uint64, error) {
	v, err := readUint(mem, addr, 4)
	if err != nil {
		return 0, err
	}
	return uint64(int64(addr) + int64(int32(v)) + 4), nil
}

// FollowJumpChain resolves chains of the three fixed x64 jump
// encodings starting at addr: EB rel8 (short jmp), E9 rel32 (near
// jmp) and FF 25 [rip+disp32] (indirect jmp, with one pointer
// dereference). It returns the first address whose leading bytes are
// none of the three. No other instructions are decoded.
func FollowJumpChain(mem MemoryReader, addr uint64) (uint64, error) {
	for {
		var head [2]byte
		if _, err := mem.ReadMemory(head[:], addr); err != nil {
			return 0, err
		}
		switch {
		case head[0] == 0xEB:
			// Displacement is relative to the end of the 2-byte jmp.
			addr = uint64(int64(addr) + 2 + int64(int8(head[1])))
		case head[0] == 0xE9:
			v, err := readUint(mem, addr+1, 4)
			if err != nil {
				return 0, err
			}
			addr = uint64(int64(addr) + 5 + int64(int32(v)))
		case head[0] == 0xFF && head[1] == 0x25:
			v, err := readUint(mem, addr+2, 4)
			if err != nil {
				return 0, err
			}
			slot := uint64(int64(addr) + 6 + int64(int32(v)))
			target, err := readUint(mem, slot, 8)
			if err != nil {
				return 0, err
			}
			addr = target
		default:
			return addr, nil
		}
	}
}
