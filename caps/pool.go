package caps

import "github.com/google/uuid"

// mark is the private consumption marker shared by all pool variants. A
// consuming operation sets spent on its input's marker before making any
// kernel call and clears it again if that call fails, so a pool value is
// either fully consumed or fully intact.
type mark struct {
	spent bool
}

// consume claims the marker, failing if the value was already consumed or is
// a zero value that never came from a constructor.
func (m *mark) consume() error {
	if m == nil || m.spent {
		return ErrPoolSpent
	}
	m.spent = true
	return nil
}

// rollback releases the claim after a failed kernel call.
func (m *mark) rollback() {
	m.spent = false
}

// newGen returns a fresh generation tag for a pool value.
func newGen() uuid.UUID { return uuid.New() }
