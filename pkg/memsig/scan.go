package memsig

import (
	"github.com/sirupsen/logrus"

	"github.com/go-sigscan/sigscan/pkg/logflags"
)

// scanChunk is the size of the read buffer used while matching inside
// a region. Consecutive chunks overlap by the pattern size minus one
// so that candidates straddling a chunk boundary are still seen.
var scanChunk = 64 * 1024

// Scanner resolves scan configurations against process memory. The
// zero value is not usable; NewScanner returns a Scanner bound to the
// running process's own image by default.
//
// A Scanner is immutable after construction and safe for concurrent
// use. Each Scan call runs synchronously on the caller's goroutine.
type Scanner struct {
	mem       MemoryReader
	regions   RegionQuerier
	base      uint64
	limit     uint64 // 0 means walk until the querier fails
	boundsSet bool
	useCache  bool
	log       *logrus.Entry
}

// ScannerOption configures a Scanner under construction.
type ScannerOption func(*Scanner)

// WithMemory replaces the memory the Scanner reads from.
func WithMemory(mem MemoryReader) ScannerOption {
	return func(s *Scanner) { s.mem = mem }
}

// WithRegions replaces the region query capability.
func WithRegions(q RegionQuerier) ScannerOption {
	return func(s *Scanner) { s.regions = q }
}

// WithBounds starts the region walk at base and terminates it once it
// reaches base+size, instead of looking up the main module's mapped
// range.
func WithBounds(base, size uint64) ScannerOption {
	return func(s *Scanner) {
		s.base = base
		s.limit = base + size
		s.boundsSet = true
	}
}

// WithFullAddressSpace removes the module bound: the walk starts at
// address zero and ends only when the region querier fails. This
// visits every mapping of the process, including ones unrelated to
// the main module.
func WithFullAddressSpace() ScannerOption {
	return func(s *Scanner) {
		s.base = 0
		s.limit = 0
		s.boundsSet = true
	}
}

// WithoutCache disables consulting and populating the process-wide
// raw match cache.
func WithoutCache() ScannerOption {
	return func(s *Scanner) { s.useCache = false }
}

// NewScanner returns a Scanner over the running process. Without
// options it reads process memory directly, queries regions through
// the host's native capability and bounds the walk to the main
// module's mapped range; it fails if that range cannot be determined.
func NewScanner(opts ...ScannerOption) (*Scanner, error) {
	s := &Scanner{
		mem:      ProcessMemory(),
		regions:  nativeRegions{},
		useCache: true,
		log:      logflags.ScannerLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.boundsSet {
		mod, err := mainModule()
		if err != nil {
			return nil, err
		}
		s.base, s.limit = mod.Base, mod.End()
	}
	return s, nil
}

// Base returns the address the region walk starts from, the main
// module base for a default Scanner.
func (s *Scanner) Base() uint64 {
	return s.base
}

// Scan resolves cfg. It walks regions in ascending address order
// starting from the configured base, or from the cached raw match for
// this pattern if one exists. At every offset where the pattern
// matches, the verification sequence runs from the raw match address;
// the first attempt that succeeds ends the scan and its final cursor
// is the result. Exhausting the walk yields (0, false), which is a
// normal outcome, not an error.
func (s *Scanner) Scan(cfg *ScanConfig) (uint64, bool) {
	if cfg.pattern.size == 0 {
		return 0, false
	}

	start := s.base
	if s.useCache {
		if addr, ok := patternMatches.lookup(cfg.pattern); ok {
			s.log.Debugf("resuming scan of %q from cached match %#x", cfg.pattern, addr)
			start = addr
		}
	}

	addr := start
	for {
		r, err := s.regions.QueryRegion(addr)
		if err != nil {
			// Address space exhausted.
			break
		}
		if r.End() <= addr {
			// The querier stopped advancing or wrapped around.
			break
		}
		if s.limit != 0 && r.Addr >= s.limit {
			break
		}
		if r.Addr < addr {
			// The walk starts mid-region, at the module base or
			// at a cached raw match.
			r.Size -= addr - r.Addr
			r.Addr = addr
		}
		addr = r.End()

		if !r.scannable() || r.Size < uint64(cfg.pattern.size) {
			continue
		}

		s.log.Debugf("scanning region %#x-%#x for %q", r.Addr, r.End(), cfg.pattern)
		if result, ok := s.scanRegion(cfg, r); ok {
			return result, true
		}
	}
	return 0, false
}

// scanRegion tests every candidate offset of r left to right,
// including the one whose window ends exactly at the region end.
func (s *Scanner) scanRegion(cfg *ScanConfig, r Region) (uint64, bool) {
	psize := cfg.pattern.size
	chunk := scanChunk
	if chunk < psize {
		chunk = psize
	}
	buf := make([]byte, chunk)

	for off := uint64(0); off+uint64(psize) <= r.Size; {
		n := uint64(chunk)
		if off+n > r.Size {
			n = r.Size - off
		}
		window := buf[:n]
		if _, err := s.mem.ReadMemory(window, r.Addr+off); err != nil {
			s.log.Debugf("read of region %#x+%#x failed: %v", r.Addr, off, err)
			return 0, false
		}

		for i := 0; i+psize <= len(window); i++ {
			if !cfg.pattern.matches(window[i:]) {
				continue
			}
			raw := r.Addr + off + uint64(i)
			if s.useCache {
				patternMatches.store(cfg.pattern, raw)
			}
			if cursor, ok := runInstructions(s.mem, cfg, raw); ok {
				s.log.Debugf("match for %q at %#x resolved to %#x", cfg.pattern, raw, cursor)
				return cursor, true
			}
			// Verification failed; keep scanning from the next
			// byte offset.
		}

		if off+n >= r.Size {
			break
		}
		off += n - uint64(psize) + 1
	}
	return 0, false
}

// Regions returns the scannable regions the Scanner's walk would
// visit, in ascending address order.
func (s *Scanner) Regions() []Region {
	var out []Region
	addr := s.base
	for {
		r, err := s.regions.QueryRegion(addr)
		if err != nil {
			break
		}
		if r.End() <= addr {
			break
		}
		if s.limit != 0 && r.Addr >= s.limit {
			break
		}
		addr = r.End()
		if r.scannable() {
			out = append(out, r)
		}
	}
	return out
}
