package kernel

// FaultInjector wraps a Caller and fails the Nth call with a fixed error,
// passing every other call through. Used to exercise the ledger's rollback
// path without needing a real kernel to misbehave.
type FaultInjector struct {
	Inner Caller
	// FailAt is the 1-based index of the call to fail. Zero disables
	// injection.
	FailAt int
	// Err is returned by the failed call. Defaults to ErrNotEnoughMemory.
	Err error

	calls int
}

func (f *FaultInjector) fail() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrNotEnoughMemory
}

// Retype implements Caller.
func (f *FaultInjector) Retype(req RetypeRequest) error {
	f.calls++
	if f.calls == f.FailAt {
		return f.fail()
	}
	return f.Inner.Retype(req)
}

// Copy implements Caller.
func (f *FaultInjector) Copy(src, dest CPtr) error {
	f.calls++
	if f.calls == f.FailAt {
		return f.fail()
	}
	return f.Inner.Copy(src, dest)
}

// Revoke implements Caller.
func (f *FaultInjector) Revoke(c CPtr) error {
	f.calls++
	if f.calls == f.FailAt {
		return f.fail()
	}
	return f.Inner.Revoke(c)
}
