package hermit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hermit-os/kernel/internal/task"
)

// simcore is an in-memory core harness for exercising the scheduler,
// syscall surface, and signal delivery on a real single-core Boot — it
// lets a caller drive core 0's reschedule/dispatch loop by hand.
type simcore struct {
	t *testing.T
	k *Kernel
}

// newSimcore boots a single-core kernel with a short bring-up timeout
// suitable for tests, and fails the test immediately if Boot errors.
func newSimcore(t *testing.T, cfg Config) *simcore {
	t.Helper()
	cfg.NumCores = 1
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	k, err := Boot(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shCancel()
		_ = k.Shutdown(shCtx)
	})
	return &simcore{t: t, k: k}
}

// spawn creates a task on core 0 at the given priority and enqueues it,
// returning its id.
func (s *simcore) spawn(priority int) int32 {
	s.t.Helper()
	rq, err := s.k.ReadyQueue(0)
	require.NoError(s.t, err)
	id, err := s.k.Tasks.Create(task.CreateParams{Priority: priority, LastCore: 0})
	require.NoError(s.t, err)
	rq.Enqueue(id)
	return int32(id)
}

// step runs exactly one reschedule pass on core 0 and returns whether a
// switch happened.
func (s *simcore) step() bool {
	s.t.Helper()
	res, err := s.k.Reschedule(0)
	require.NoError(s.t, err)
	return res.Switched
}
