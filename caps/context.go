package caps

import "fmt"

// Context identifies the execution context a handle or pool is valid in.
// The zero value is the local context.
type Context struct {
	child bool
	id    uint32
}

// Local returns the local execution context.
func Local() Context { return Context{} }

// Child returns the context of the child identified by id.
func Child(id uint32) Context { return Context{child: true, id: id} }

// IsLocal reports whether c is the local context.
func (c Context) IsLocal() bool { return !c.child }

// ChildID returns the child identifier and whether c is a child context.
func (c Context) ChildID() (uint32, bool) { return c.id, c.child }

func (c Context) String() string {
	if c.child {
		return fmt.Sprintf("child(%d)", c.id)
	}
	return "local"
}
