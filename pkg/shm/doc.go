/*
Package shm provides the shared-payload gateway used to pass subscription
records and event tickets between processes.

A block belongs to the process that allocated it: Map, Write and Free must
name the same owner or they fail with ErrNotFound. Views are scoped
acquisitions; callers defer Unmap right after a successful Map. Unmap is
idempotent, and Free on an already freed handle is reported rather than
acted on, so a double release can never corrupt another owner's block.

Arena is the in-process implementation. It copies bytes in and out so no
caller can hold a reference into another owner's memory, and it tracks
mapping counts so tests can assert that every view was released.

	arena := shm.NewArena(0)
	h, _ := arena.Alloc(data, pid)
	v, err := arena.Map(h, pid, false)
	if err != nil {
		return err
	}
	defer arena.Unmap(v)
*/
package shm
