package memsig

import (
	"errors"

	"github.com/go-sigscan/sigscan/pkg/logflags"
)

var (
	// ErrNullTarget is returned when a patch targets address zero.
	ErrNullTarget = errors.New("patch target is null")
	// ErrEmptyBytes is returned when a patch carries no bytes.
	ErrEmptyBytes = errors.New("patch bytes are empty")
)

// Protector temporarily lifts write protection from a byte range. The
// returned function restores the previous protection.
type Protector interface {
	MakeWritable(addr uint64, size int) (restore func() error, err error)
}

// Patch is a reversible overwrite of a byte range in live memory. The
// original bytes are captured once when the patch is applied and
// written back verbatim by Restore; they are never re-derived.
//
// A Patch must not be copied. Restore may be called more than once;
// only the first successful call writes anything.
type Patch struct {
	mem      MemoryReadWriter
	prot     Protector
	target   uint64
	original []byte
}

// ApplyPatch overwrites len(data) bytes at target in the running
// process with data, after lifting write protection for the range.
// It returns a Patch holding the original bytes. If the protection
// change fails nothing is modified and the error is returned.
func ApplyPatch(target uint64, data []byte) (*Patch, error) {
	return applyPatch(ProcessMemory(), nativeProtector{}, target, data)
}

func applyPatch(mem MemoryReadWriter, prot Protector, target uint64, data []byte) (*Patch, error) {
	if target == 0 {
		return nil, ErrNullTarget
	}
	if len(data) == 0 {
		return nil, ErrEmptyBytes
	}

	restore, err := prot.MakeWritable(target, len(data))
	if err != nil {
		return nil, err
	}

	original := make([]byte, len(data))
	if _, err := mem.ReadMemory(original, target); err != nil {
		restore()
		return nil, err
	}
	if _, err := mem.WriteMemory(target, data); err != nil {
		restore()
		return nil, err
	}
	if err := restore(); err != nil {
		return nil, err
	}

	logflags.PatchLogger().Debugf("patched %d bytes at %#x", len(data), target)
	return &Patch{mem: mem, prot: prot, target: target, original: original}, nil
}

// Restore writes the captured original bytes back over the target
// under a second protection window and discards the snapshot. After
// the first successful call the patch is inert and further calls
// return nil.
func (p *Patch) Restore() error {
	if p.original == nil {
		return nil
	}

	restore, err := p.prot.MakeWritable(p.target, len(p.original))
	if err != nil {
		return err
	}
	if _, err := p.mem.WriteMemory(p.target, p.original); err != nil {
		restore()
		return err
	}
	if err := restore(); err != nil {
		return err
	}

	logflags.PatchLogger().Debugf("restored %d bytes at %#x", len(p.original), p.target)
	p.original = nil
	return nil
}
