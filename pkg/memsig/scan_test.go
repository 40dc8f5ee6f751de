package memsig

import (
	"errors"
	"testing"
)

// fakeSpace is an address space made of a fixed region list over one
// backing buffer. Queries record the addresses asked for, so tests
// can observe where a walk started.
type fakeSpace struct {
	mem     *fakeMem
	regions []Region
	queries []uint64
}

// newFakeSpace lays the given regions contiguously over one buffer
// starting at base.
func newFakeSpace(base uint64, regions []Region) *fakeSpace {
	addr := base
	total := uint64(0)
	for i := range regions {
		regions[i].Addr = addr
		addr += regions[i].Size
		total += regions[i].Size
	}
	return &fakeSpace{
		mem:     &fakeMem{base: base, data: make([]byte, total)},
		regions: regions,
	}
}

func (f *fakeSpace) QueryRegion(addr uint64) (Region, error) {
	f.queries = append(f.queries, addr)
	for _, r := range f.regions {
		if addr < r.End() {
			return r, nil
		}
	}
	return Region{}, errors.New("address past the mapped space")
}

func (f *fakeSpace) base() uint64 { return f.regions[0].Addr }

func (f *fakeSpace) size() uint64 {
	last := f.regions[len(f.regions)-1]
	return last.End() - f.base()
}

// place writes bytes at an offset from the space base.
func (f *fakeSpace) place(off uint64, b []byte) {
	copy(f.mem.data[off:], b)
}

func (f *fakeSpace) scanner(t *testing.T, opts ...ScannerOption) *Scanner {
	t.Helper()
	opts = append([]ScannerOption{
		WithMemory(f.mem),
		WithRegions(f),
		WithBounds(f.base(), f.size()),
	}, opts...)
	s, err := NewScanner(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func readable(size uint64) Region {
	return Region{Size: size, Read: true, Committed: true}
}

func TestScanFindsMatchInLaterRegion(t *testing.T) {
	f := newFakeSpace(0x10000, []Region{readable(0x1000), readable(0x1000)})
	f.place(0x1200, []byte{0xD1, 0x02, 0xD3, 0x04})

	s := f.scanner(t, WithoutCache())
	addr, ok := s.Scan(MustConfig("D1 ?? D3 04"))
	if !ok {
		t.Fatal("scan should find the pattern")
	}
	if want := uint64(0x11200); addr != want {
		t.Errorf("addr = %#x, want %#x", addr, want)
	}
}

func TestScanSkipsUnscannableRegions(t *testing.T) {
	f := newFakeSpace(0x20000, []Region{
		{Size: 0x1000, Read: true},      // not committed
		{Size: 0x1000, Committed: true}, // no read permission
		{Size: 0x1000, Read: true, Write: true, Committed: true},
	})
	// The pattern occurs in all three regions; only the last is
	// eligible.
	needle := []byte{0xD2, 0x22, 0x32, 0x42}
	f.place(0x0100, needle)
	f.place(0x1100, needle)
	f.place(0x2100, needle)

	s := f.scanner(t, WithoutCache())
	addr, ok := s.Scan(MustConfig("D2 22 32 42"))
	if !ok {
		t.Fatal("scan should find the pattern in the readable region")
	}
	if want := uint64(0x22100); addr != want {
		t.Errorf("addr = %#x, want %#x", addr, want)
	}
}

func TestScanSkipsUndersizedRegion(t *testing.T) {
	f := newFakeSpace(0x30000, []Region{readable(2), readable(0x1000)})
	f.place(0, []byte{0xD3, 0x33})
	f.place(2, []byte{0xD3, 0x33, 0x53, 0x63})

	s := f.scanner(t, WithoutCache())
	addr, ok := s.Scan(MustConfig("D3 33 53 63"))
	if !ok {
		t.Fatal("scan should find the pattern")
	}
	// The 2-byte region cannot hold the 4-byte pattern even though
	// the bytes continue into the next region; matching never
	// crosses a region boundary.
	if want := uint64(0x30002); addr != want {
		t.Errorf("addr = %#x, want %#x", addr, want)
	}
}

func TestScanMatchAtRegionEnd(t *testing.T) {
	f := newFakeSpace(0x40000, []Region{readable(0x100)})
	f.place(0x100-4, []byte{0xD4, 0x44, 0x54, 0x64})

	s := f.scanner(t, WithoutCache())
	addr, ok := s.Scan(MustConfig("D4 44 54 64"))
	if !ok {
		t.Fatal("a window touching the region end must be tested")
	}
	if want := uint64(0x400fc); addr != want {
		t.Errorf("addr = %#x, want %#x", addr, want)
	}
}

func TestScanContinuesAfterFailedVerification(t *testing.T) {
	f := newFakeSpace(0x50000, []Region{readable(0x1000), readable(0x1000)})
	// Three raw matches: two fail verification (byte after the
	// pattern is wrong), the last one in the next region passes.
	f.place(0x0100, []byte{0xD5, 0x55, 0x00})
	f.place(0x0200, []byte{0xD5, 0x55, 0x00})
	f.place(0x1300, []byte{0xD5, 0x55, 0x4D})

	s := f.scanner(t, WithoutCache())
	cfg := MustConfig("D5 55", Offset(2), CompareInt8(0x4D))
	addr, ok := s.Scan(cfg)
	if !ok {
		t.Fatal("scan should continue past failed verifications")
	}
	// The result is the final cursor, two past the raw match.
	if want := uint64(0x51302); addr != want {
		t.Errorf("addr = %#x, want %#x", addr, want)
	}
}

func TestScanChunkBoundary(t *testing.T) {
	defer func(old int) { scanChunk = old }(scanChunk)
	scanChunk = 8

	f := newFakeSpace(0x60000, []Region{readable(64)})
	// Straddles the first chunk boundary at offset 8.
	f.place(6, []byte{0xD6, 0x66, 0x76, 0x86, 0x96})

	s := f.scanner(t, WithoutCache())
	addr, ok := s.Scan(MustConfig("D6 66 76 86 96"))
	if !ok {
		t.Fatal("match straddling a chunk boundary should be found")
	}
	if want := uint64(0x60006); addr != want {
		t.Errorf("addr = %#x, want %#x", addr, want)
	}
}

func TestScanNotFound(t *testing.T) {
	f := newFakeSpace(0x70000, []Region{readable(0x1000)})
	s := f.scanner(t, WithoutCache())
	if addr, ok := s.Scan(MustConfig("D7 77 87 97")); ok {
		t.Errorf("scan of zeroed memory found %#x", addr)
	}
}

func TestScanEmptyPattern(t *testing.T) {
	f := newFakeSpace(0x80000, []Region{readable(0x100)})
	s := f.scanner(t, WithoutCache())
	if _, ok := s.Scan(MustConfig("")); ok {
		t.Error("the empty pattern must never match")
	}
	if len(f.queries) != 0 {
		t.Error("the empty pattern should not walk regions")
	}
}

func TestScanCacheResume(t *testing.T) {
	regions := []Region{readable(0x1000), readable(0x1000)}
	f := newFakeSpace(0x90000, regions)
	f.place(0x1100, []byte{0xD9, 0x99, 0xA9, 0xB9})

	s := f.scanner(t)
	cfg := MustConfig("D9 99 A9 B9")
	raw, ok := s.Scan(cfg)
	if !ok {
		t.Fatal("first scan should find the pattern")
	}

	// A second scan resumes its walk from the memoized raw match
	// instead of the configured base.
	f2 := newFakeSpace(0x90000, []Region{readable(0x1000), readable(0x1000)})
	f2.place(0x1100, []byte{0xD9, 0x99, 0xA9, 0xB9})
	s2 := f2.scanner(t)
	if _, ok := s2.Scan(cfg); !ok {
		t.Fatal("second scan should find the pattern")
	}
	if len(f2.queries) == 0 || f2.queries[0] != raw {
		t.Errorf("second walk started at %#x, want cached match %#x", f2.queries[0], raw)
	}
}

func TestScanCacheDisabled(t *testing.T) {
	f := newFakeSpace(0xA0000, []Region{readable(0x1000), readable(0x1000)})
	f.place(0x1100, []byte{0xDA, 0xAA, 0xBA, 0xCA})

	s := f.scanner(t, WithoutCache())
	cfg := MustConfig("DA AA BA CA")
	if _, ok := s.Scan(cfg); !ok {
		t.Fatal("first scan should find the pattern")
	}
	if _, ok := patternMatches.lookup(cfg.Pattern()); ok {
		t.Error("WithoutCache scan populated the raw match cache")
	}

	f.queries = nil
	if _, ok := s.Scan(cfg); !ok {
		t.Fatal("second scan should find the pattern")
	}
	if f.queries[0] != f.base() {
		t.Errorf("uncached walk started at %#x, want base %#x", f.queries[0], f.base())
	}
}

func TestScannerRegions(t *testing.T) {
	f := newFakeSpace(0xB0000, []Region{
		readable(0x1000),
		{Size: 0x1000},
		readable(0x2000),
	})
	s := f.scanner(t)
	rs := s.Regions()
	if len(rs) != 2 {
		t.Fatalf("Regions returned %d regions, want 2", len(rs))
	}
	if rs[0].Addr != 0xB0000 || rs[1].Addr != 0xB2000 {
		t.Errorf("Regions = %#x, %#x; want 0xb0000, 0xb2000", rs[0].Addr, rs[1].Addr)
	}
}

func TestScanBounded(t *testing.T) {
	// A bounded walk must not enter regions past its limit even if
	// the querier would keep producing them.
	f := newFakeSpace(0xC0000, []Region{readable(0x1000), readable(0x1000)})
	f.place(0x1100, []byte{0xDC, 0xCC, 0xEC, 0xFC})

	s, err := NewScanner(
		WithMemory(f.mem),
		WithRegions(f),
		WithBounds(f.base(), 0x1000), // only the first region
		WithoutCache(),
	)
	if err != nil {
		t.Fatal(err)
	}
	if addr, ok := s.Scan(MustConfig("DC CC EC FC")); ok {
		t.Errorf("bounded scan left its range and found %#x", addr)
	}
}
