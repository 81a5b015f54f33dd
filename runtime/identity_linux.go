package runtime

import "golang.org/x/sys/unix"

const threadIDsExact = true

func getpid() int { return unix.Getpid() }
func gettid() int { return unix.Gettid() }
