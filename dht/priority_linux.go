//go:build linux

package dht

import (
	"runtime"

	"golang.org/x/sys/unix"
)

const realtimeNice = -20

// raisePriority pins the calling goroutine to its thread and renices that
// thread for the length of a transaction. Renicing needs CAP_SYS_NICE; the
// thread stays locked even when it fails.
func raisePriority() (func(), error) {
	runtime.LockOSThread()
	tid := unix.Gettid()
	// the raw syscall returns 20 - nice
	prio, err := unix.Getpriority(unix.PRIO_PROCESS, tid)
	if err != nil {
		return runtime.UnlockOSThread, err
	}
	prevNice := 20 - prio
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, realtimeNice); err != nil {
		return runtime.UnlockOSThread, err
	}
	return func() {
		_ = unix.Setpriority(unix.PRIO_PROCESS, tid, prevNice)
		runtime.UnlockOSThread()
	}, nil
}
