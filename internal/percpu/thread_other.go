//go:build !linux

package percpu

// threadID falls back to a process-wide counter on non-Linux build hosts,
// where there is no gettid() to key off. This is a simulation convenience
// for developing off-target; real boot always runs the linux build.
import "sync/atomic"

var fallbackCounter atomic.Int64

// Every call returns a fresh id, even from the same goroutine, so on
// non-linux hosts Current and TryCurrent never find a binding made by Bind.
func threadID() int64 { return fallbackCounter.Add(1) }
