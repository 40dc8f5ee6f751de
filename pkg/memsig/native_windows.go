package memsig

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// nativeRegions queries the running process's address space through
// VirtualQuery.
type nativeRegions struct{}

func (nativeRegions) QueryRegion(addr uint64) (Region, error) {
	var mbi windows.MemoryBasicInformation
	if err := windows.VirtualQuery(uintptr(addr), &mbi, unsafe.Sizeof(mbi)); err != nil {
		// The only failure is an address above the highest one
		// allocated for the application.
		return Region{}, err
	}
	r := Region{
		Addr:      uint64(mbi.BaseAddress),
		Size:      uint64(mbi.RegionSize),
		Committed: mbi.State == windows.MEM_COMMIT,
	}
	if mbi.Protect&windows.PAGE_GUARD != 0 {
		// Reading from a guard page raises an exception.
		return r, nil
	}
	switch mbi.Protect & 0xff {
	case windows.PAGE_READONLY:
		r.Read = true
	case windows.PAGE_READWRITE:
		r.Read, r.Write = true, true
	case windows.PAGE_EXECUTE_READ:
		r.Read, r.Exec = true, true
	case windows.PAGE_EXECUTE_READWRITE:
		r.Read, r.Write, r.Exec = true, true, true
	case windows.PAGE_EXECUTE:
		r.Exec = true
	}
	return r, nil
}

func mainModule() (Module, error) {
	h, err := windows.GetModuleHandle(nil)
	if err != nil {
		return Module{}, err
	}
	var mi windows.ModuleInfo
	err = windows.GetModuleInformation(windows.CurrentProcess(), h, &mi, uint32(unsafe.Sizeof(mi)))
	if err != nil {
		return Module{}, err
	}
	return Module{Base: uint64(mi.BaseOfDll), Size: uint64(mi.SizeOfImage)}, nil
}

// nativeProtector changes page protection through VirtualProtect.
type nativeProtector struct{}

func (nativeProtector) MakeWritable(addr uint64, size int) (func() error, error) {
	var old uint32
	err := windows.VirtualProtect(uintptr(addr), uintptr(size), windows.PAGE_EXECUTE_READWRITE, &old)
	if err != nil {
		return nil, err
	}
	return func() error {
		var prev uint32
		return windows.VirtualProtect(uintptr(addr), uintptr(size), old, &prev)
	}, nil
}
