//go:build !windows && !linux
// +build !windows,!linux

package memsig

import (
	"errors"
	"runtime"
)

// ErrNativeUnsupported is returned by the native region, module and
// protection capabilities on platforms where they are not implemented.
// Scanners built over explicit WithMemory/WithRegions/WithBounds
// capabilities still work everywhere.
var ErrNativeUnsupported = errors.New("native memory capabilities not supported on " + runtime.GOOS + "/" + runtime.GOARCH)

type nativeRegions struct{}

func (nativeRegions) QueryRegion(addr uint64) (Region, error) {
	return Region{}, ErrNativeUnsupported
}

func mainModule() (Module, error) {
	return Module{}, ErrNativeUnsupported
}

type nativeProtector struct{}

func (nativeProtector) MakeWritable(addr uint64, size int) (func() error, error) {
	return nil, ErrNativeUnsupported
}
