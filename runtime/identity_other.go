//go:build !linux && !freebsd && !windows && !(darwin && cgo)

package runtime

import "os"

// No per-thread ID is reachable here, so every thread reports the process
// ID. Attach refuses nested attachments in that case, since it cannot tell
// a nested call from one on another OS thread.
const threadIDsExact = false

func getpid() int { return os.Getpid() }
func gettid() int { return os.Getpid() }
