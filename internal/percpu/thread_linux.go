//go:build linux

package percpu

import "golang.org/x/sys/unix"

// threadID returns the Linux thread id (gettid) of the calling OS thread.
// Valid only for goroutines that called runtime.LockOSThread; otherwise the
// scheduler may move the goroutine between calls.
func threadID() int64 { return int64(unix.Gettid()) }
