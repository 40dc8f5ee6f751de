package memsig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// errAddressSpaceExhausted terminates a region walk once the queried
// address is past every mapping of the process.
var errAddressSpaceExhausted = errors.New("address is past the mapped address space")

type mapping struct {
	start, end uint64
	perm       string
	filename   string
}

// parseMapsLine parses one /proc/self/maps header line of the form
// "start-end perms offset dev inode pathname".
func parseMapsLine(lineno int, line string) (mapping, error) {
	var m mapping
	fields := strings.SplitN(line, " ", 6)
	if len(fields) < 5 {
		return m, fmt.Errorf("malformed /proc/self/maps on line %d: %q", lineno, line)
	}
	addrs := strings.Split(fields[0], "-")
	if len(addrs) != 2 {
		return m, fmt.Errorf("malformed /proc/self/maps on line %d: %q", lineno, line)
	}
	var err error
	m.start, err = strconv.ParseUint(addrs[0], 16, 64)
	if err != nil {
		return m, fmt.Errorf("malformed /proc/self/maps on line %d: %v", lineno, err)
	}
	m.end, err = strconv.ParseUint(addrs[1], 16, 64)
	if err != nil {
		return m, fmt.Errorf("malformed /proc/self/maps on line %d: %v", lineno, err)
	}
	m.perm = fields[1]
	if len(m.perm) < 4 {
		return m, fmt.Errorf("malformed /proc/self/maps on line %d: %q", lineno, line)
	}
	if len(fields) == 6 {
		m.filename = strings.TrimLeft(fields[5], " ")
	}
	return m, nil
}

func readMaps() ([]mapping, error) {
	buf, err := os.ReadFile("/proc/self/maps")
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(buf), "\n")
	r := make([]mapping, 0, len(lines))
	for i, line := range lines {
		if line == "" {
			continue
		}
		m, err := parseMapsLine(i+1, line)
		if err != nil {
			return nil, err
		}
		r = append(r, m)
	}
	return r, nil
}

// nativeRegions queries the running process's address space through
// /proc/self/maps. Unmapped gaps are reported as uncommitted regions
// spanning up to the next mapping, so a walk advances past them the
// same way it advances past rejected regions.
type nativeRegions struct{}

func (nativeRegions) QueryRegion(addr uint64) (Region, error) {
	maps, err := readMaps()
	if err != nil {
		return Region{}, err
	}
	for _, m := range maps {
		if addr >= m.end {
			continue
		}
		if addr < m.start {
			return Region{Addr: addr, Size: m.start - addr}, nil
		}
		return Region{
			Addr:      m.start,
			Size:      m.end - m.start,
			Read:      m.perm[0] == 'r',
			Write:     m.perm[1] == 'w',
			Exec:      m.perm[2] == 'x',
			Committed: true,
		}, nil
	}
	return Region{}, errAddressSpaceExhausted
}

func mainModule() (Module, error) {
	exe, err := os.Readlink("/proc/self/exe")
	if err != nil {
		return Module{}, err
	}
	maps, err := readMaps()
	if err != nil {
		return Module{}, err
	}
	var base, end uint64
	found := false
	for _, m := range maps {
		if m.filename != exe {
			continue
		}
		if !found || m.start < base {
			base = m.start
		}
		if m.end > end {
			end = m.end
		}
		found = true
	}
	if !found {
		return Module{}, fmt.Errorf("no mapping of %s in /proc/self/maps", exe)
	}
	return Module{Base: base, Size: end - base}, nil
}

// nativeProtector changes page protection through mprotect. The
// previous protection is read from /proc/self/maps before the change.
type nativeProtector struct{}

func (nativeProtector) MakeWritable(addr uint64, size int) (func() error, error) {
	r, err := nativeRegions{}.QueryRegion(addr)
	if err != nil {
		return nil, err
	}
	if !r.Committed {
		return nil, InvalidAddressError{Address: addr}
	}
	oldProt := unix.PROT_NONE
	if r.Read {
		oldProt |= unix.PROT_READ
	}
	if r.Write {
		oldProt |= unix.PROT_WRITE
	}
	if r.Exec {
		oldProt |= unix.PROT_EXEC
	}

	pagesize := uint64(os.Getpagesize())
	start := addr &^ (pagesize - 1)
	end := (addr + uint64(size) + pagesize - 1) &^ (pagesize - 1)
	pages := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(start))), end-start)

	if err := unix.Mprotect(pages, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return nil, err
	}
	return func() error {
		return unix.Mprotect(pages, oldProt)
	}, nil
}
