package memsig

// Fallback holds an ordered list of independent scan configurations,
// typically one pattern per supported build of the target binary.
type Fallback struct {
	cfgs []*ScanConfig
}

// NewFallback builds a Fallback that tries cfgs in the given order.
func NewFallback(cfgs ...*ScanConfig) Fallback {
	cp := make([]*ScanConfig, len(cfgs))
	copy(cp, cfgs)
	return Fallback{cfgs: cp}
}

// Configs returns the configurations in the order they are tried.
func (f Fallback) Configs() []*ScanConfig {
	cp := make([]*ScanConfig, len(f.cfgs))
	copy(cp, f.cfgs)
	return cp
}

// Scan runs each configuration through s in turn and returns the
// first success. It returns (0, false) only if every configuration
// comes up empty. No state is shared between the attempts.
func (f Fallback) Scan(s *Scanner) (uint64, bool) {
	for _, cfg := range f.cfgs {
		if addr, ok := s.Scan(cfg); ok {
			return addr, true
		}
	}
	return 0, false
}
