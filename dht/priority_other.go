//go:build !linux

package dht

import "runtime"

func raisePriority() (func(), error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}
