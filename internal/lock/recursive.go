package lock

// CurrentTaskID abstracts "which task is running on this core" so package
// lock does not need to import internal/task (which depends on lock for its
// own table lock). It defaults to -1, meaning "no task"; no package in this
// tree replaces the default, so only callers that assign it (e.g. unit
// tests) get per-task ownership.
var CurrentTaskID func() int64 = func() int64 { return -1 }

// Recursive is a ticket spinlock that the current holder may reacquire
// without deadlocking itself. Each nested Lock bumps a depth counter; the
// lock is released for real only when Unlock brings that counter back to
// zero.
type Recursive struct {
	inner Ticket
	owner int64 // task id of the current holder, -1 when unlocked
	depth int
}

// Lock acquires the lock, or bumps the recursion depth if the calling task
// already holds it.
func (l *Recursive) Lock() {
	me := CurrentTaskID()
	if l.depth > 0 && l.owner == me {
		l.depth++
		return
	}
	l.inner.Lock()
	l.owner = me
	l.depth = 1
}

// Unlock decrements the recursion depth, releasing the underlying ticket
// lock only once depth reaches zero.
func (l *Recursive) Unlock() {
	l.depth--
	if l.depth == 0 {
		l.owner = -1
		l.inner.Unlock()
	}
}

// Depth reports the current recursion depth (0 when unlocked).
func (l *Recursive) Depth() int { return l.depth }
