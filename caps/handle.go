package caps

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/auxoncorp/ferros/internal/abi"
	"github.com/auxoncorp/ferros/internal/kernel"
)

// Handle is a typed reference to a live kernel-object instance. It records
// the object kind it addresses and the execution context it is valid in.
// The originating pool generation is carried for diagnostics only; handles
// hold no reference back to the pool they were carved from.
type Handle struct {
	kind abi.ObjectKind
	ctx  Context
	cptr kernel.CPtr
	gen  uuid.UUID
}

// Kind returns the object kind the handle addresses.
func (h Handle) Kind() abi.ObjectKind { return h.kind }

// Context returns the execution context the handle is valid in.
func (h Handle) Context() Context { return h.ctx }

// CPtr returns the capability pointer.
func (h Handle) CPtr() kernel.CPtr { return h.cptr }

// Generation returns the generation tag of the pool the handle was carved
// from.
func (h Handle) Generation() uuid.UUID { return h.gen }

func (h Handle) String() string {
	return fmt.Sprintf("%s@%d/%s", h.kind, h.cptr, h.ctx)
}

// HandleRange is a contiguous run of handles produced by a single
// multi-object retype.
type HandleRange struct {
	kind  abi.ObjectKind
	ctx   Context
	start kernel.CPtr
	count int
	gen   uuid.UUID
}

// Len returns the number of handles in the range.
func (r HandleRange) Len() int { return r.count }

// Kind returns the object kind every handle in the range addresses.
func (r HandleRange) Kind() abi.ObjectKind { return r.kind }

// Index returns the i-th handle. It panics if i is out of range, matching
// slice indexing semantics.
func (r HandleRange) Index(i int) Handle {
	if i < 0 || i >= r.count {
		panic(fmt.Sprintf("caps: handle index %d out of range [0, %d)", i, r.count))
	}
	return Handle{kind: r.kind, ctx: r.ctx, cptr: r.start + kernel.CPtr(i), gen: r.gen}
}

// Handles returns the range expanded to a slice.
func (r HandleRange) Handles() []Handle {
	hs := make([]Handle, r.count)
	for i := range hs {
		hs[i] = r.Index(i)
	}
	return hs
}
