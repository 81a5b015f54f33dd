package runtime

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const threadIDsExact = true

func getpid() int { return unix.Getpid() }

func gettid() int {
	var id int64
	unix.Syscall(unix.SYS_THR_SELF, uintptr(unsafe.Pointer(&id)), 0, 0)
	return int(id)
}
