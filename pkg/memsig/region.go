package memsig

// Region is a contiguous span of process memory with uniform
// protection and commit state. It is a transient view produced by a
// RegionQuerier and never persisted.
//
// Read is set only for the four protection classes scanning accepts:
// read-only, read-write, execute-read and execute-read-write. Guard
// and copy-on-write pages are reported with Read false.
type Region struct {
	Addr uint64
	Size uint64

	Read, Write, Exec bool

	Committed bool
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.Addr + r.Size
}

// scannable reports whether the region may be read by the matcher.
func (r Region) scannable() bool {
	return r.Committed && r.Read
}

// RegionQuerier reports the memory region containing an address. An
// error means the address is outside the mapped address space, which
// terminates a region walk.
type RegionQuerier interface {
	QueryRegion(addr uint64) (Region, error)
}

// Module is the mapped range of a loaded module, used to seed a scan
// and bound its walk.
type Module struct {
	Base uint64
	Size uint64
}

// End returns the first address past the module image.
func (m Module) End() uint64 {
	return m.Base + m.Size
}
