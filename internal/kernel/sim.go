package kernel

import (
	"fmt"

	"github.com/auxoncorp/ferros/internal/abi"
)

// claim records the byte range consumed by one object-producing retype call.
type claim struct {
	start uint64
	end   uint64 // exclusive
}

// Sim is an in-memory Caller. It validates retype arguments the way the
// kernel would and keeps an independent record of which physical ranges hold
// live objects. Overlapping live claims indicate a capacity-accounting bug in
// the caller and are rejected with ErrRevokeFirst.
type Sim struct {
	claims map[CPtr]claim
	calls  int
}

// NewSim returns an empty simulator.
func NewSim() *Sim {
	return &Sim{claims: make(map[CPtr]claim)}
}

// Calls returns the number of calls made so far, for test instrumentation.
func (s *Sim) Calls() int { return s.calls }

// Retype implements Caller.
func (s *Sim) Retype(req RetypeRequest) error {
	s.calls++

	if req.Count <= 0 {
		return fmt.Errorf("%w: count %d", ErrInvalidArgument, req.Count)
	}
	if req.Count > abi.RetypeFanOutLimit {
		return fmt.Errorf("%w: count %d exceeds fan-out limit %d",
			ErrRangeError, req.Count, abi.RetypeFanOutLimit)
	}
	if req.SizeBits < abi.MinUntypedBits || req.SizeBits > abi.MaxUntypedBits {
		return fmt.Errorf("%w: source size class %d", ErrRangeError, req.SizeBits)
	}
	if req.ObjectBits < abi.MinUntypedBits || req.ObjectBits > req.SizeBits {
		return fmt.Errorf("%w: object size class %d from %d-bit region",
			ErrRangeError, req.ObjectBits, req.SizeBits)
	}
	if req.Region&(1<<req.ObjectBits-1) != 0 {
		return fmt.Errorf("%w: region %#x for %d-bit objects",
			ErrAlignmentError, req.Region, req.ObjectBits)
	}

	need := uint64(req.Count) << req.ObjectBits
	if need > 1<<req.SizeBits {
		return fmt.Errorf("%w: %d objects of class %d from a %d-bit region",
			ErrNotEnoughMemory, req.Count, req.ObjectBits, req.SizeBits)
	}

	// Subdividing untyped capacity creates no live objects; only
	// object-producing retypes claim ranges.
	if req.Kind == abi.KindUntyped {
		return nil
	}

	c := claim{start: req.Region, end: req.Region + need}
	for dest, live := range s.claims {
		if c.start < live.end && live.start < c.end {
			return fmt.Errorf("%w: range [%#x, %#x) overlaps objects at cptr %d",
				ErrRevokeFirst, c.start, c.end, dest)
		}
	}
	s.claims[req.Dest] = c
	return nil
}

// Copy implements Caller.
func (s *Sim) Copy(src, dest CPtr) error {
	s.calls++
	if src == 0 || dest == 0 {
		return fmt.Errorf("%w: null capability pointer", ErrInvalidCapability)
	}
	return nil
}

// Revoke implements Caller.
func (s *Sim) Revoke(c CPtr) error {
	s.calls++
	if _, ok := s.claims[c]; !ok {
		return fmt.Errorf("%w: cptr %d", ErrFailedLookup, c)
	}
	delete(s.claims, c)
	return nil
}

// LiveClaims returns the number of object ranges currently live.
func (s *Sim) LiveClaims() int { return len(s.claims) }
