package kernel

import (
	"errors"
	"testing"

	"github.com/auxoncorp/ferros/internal/abi"
)

func Test_Sim_RetypeClaimsRange(t *testing.T) {
	s := NewSim()

	err := s.Retype(RetypeRequest{
		Region:     0x10000,
		SizeBits:   16,
		Kind:       abi.KindPage,
		ObjectBits: abi.PageBits,
		Count:      4,
		Dest:       100,
	})
	if err != nil {
		t.Fatalf("Retype: %v", err)
	}
	if s.LiveClaims() != 1 {
		t.Fatalf("expected 1 live claim, got %d", s.LiveClaims())
	}
}

func Test_Sim_OverlappingClaimRejected(t *testing.T) {
	s := NewSim()

	first := RetypeRequest{
		Region: 0x10000, SizeBits: 16,
		Kind: abi.KindPage, ObjectBits: abi.PageBits, Count: 4, Dest: 100,
	}
	if err := s.Retype(first); err != nil {
		t.Fatal(err)
	}

	// Same range again, as if a consumed pool were replayed.
	second := first
	second.Dest = 200
	if err := s.Retype(second); !errors.Is(err, ErrRevokeFirst) {
		t.Fatalf("expected ErrRevokeFirst, got %v", err)
	}
	if s.LiveClaims() != 1 {
		t.Fatalf("failed call must not record a claim, have %d", s.LiveClaims())
	}
}

func Test_Sim_SplitClaimsNothing(t *testing.T) {
	s := NewSim()

	err := s.Retype(RetypeRequest{
		Region: 0x20000, SizeBits: 17,
		Kind: abi.KindUntyped, ObjectBits: 16, Count: 2, Dest: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.LiveClaims() != 0 {
		t.Fatalf("untyped subdivision must not claim ranges, have %d", s.LiveClaims())
	}
}

func Test_Sim_ArgumentValidation(t *testing.T) {
	s := NewSim()

	cases := []struct {
		name string
		req  RetypeRequest
		want error
	}{
		{
			name: "fan-out limit",
			req: RetypeRequest{
				Region: 0, SizeBits: 30,
				Kind: abi.KindEndpoint, ObjectBits: 4,
				Count: abi.RetypeFanOutLimit + 1, Dest: 1,
			},
			want: ErrRangeError,
		},
		{
			name: "object larger than region",
			req: RetypeRequest{
				Region: 0, SizeBits: 12,
				Kind: abi.KindLargePage, ObjectBits: abi.LargePageBits,
				Count: 1, Dest: 1,
			},
			want: ErrRangeError,
		},
		{
			name: "capacity overflow",
			req: RetypeRequest{
				Region: 0, SizeBits: 13,
				Kind: abi.KindPage, ObjectBits: abi.PageBits,
				Count: 3, Dest: 1,
			},
			want: ErrNotEnoughMemory,
		},
		{
			name: "misaligned region",
			req: RetypeRequest{
				Region: 0x100, SizeBits: 16,
				Kind: abi.KindPage, ObjectBits: abi.PageBits,
				Count: 1, Dest: 1,
			},
			want: ErrAlignmentError,
		},
		{
			name: "zero count",
			req: RetypeRequest{
				Region: 0, SizeBits: 16,
				Kind: abi.KindPage, ObjectBits: abi.PageBits,
				Count: 0, Dest: 1,
			},
			want: ErrInvalidArgument,
		},
	}
	for _, c := range cases {
		if err := s.Retype(c.req); !errors.Is(err, c.want) {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, err)
		}
	}
}

func Test_Sim_Revoke(t *testing.T) {
	s := NewSim()

	req := RetypeRequest{
		Region: 0x10000, SizeBits: 16,
		Kind: abi.KindPage, ObjectBits: abi.PageBits, Count: 4, Dest: 100,
	}
	if err := s.Retype(req); err != nil {
		t.Fatal(err)
	}
	if err := s.Revoke(100); err != nil {
		t.Fatal(err)
	}
	if s.LiveClaims() != 0 {
		t.Fatalf("expected no live claims after revoke, got %d", s.LiveClaims())
	}

	// Freed range is reusable.
	req.Dest = 200
	if err := s.Retype(req); err != nil {
		t.Fatalf("retype after revoke: %v", err)
	}

	if err := s.Revoke(999); !errors.Is(err, ErrFailedLookup) {
		t.Fatalf("expected ErrFailedLookup, got %v", err)
	}
}

func Test_FaultInjector_FailsNthCall(t *testing.T) {
	s := NewSim()
	fi := &FaultInjector{Inner: s, FailAt: 2}

	req := RetypeRequest{
		Region: 0x10000, SizeBits: 16,
		Kind: abi.KindPage, ObjectBits: abi.PageBits, Count: 1, Dest: 1,
	}
	if err := fi.Retype(req); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}

	req.Region = 0x20000
	req.Dest = 2
	if err := fi.Retype(req); !errors.Is(err, ErrNotEnoughMemory) {
		t.Fatalf("second call should fail with default error, got %v", err)
	}

	req.Region = 0x30000
	req.Dest = 3
	if err := fi.Retype(req); err != nil {
		t.Fatalf("third call should pass: %v", err)
	}
}
