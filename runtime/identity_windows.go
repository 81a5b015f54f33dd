package runtime

import "golang.org/x/sys/windows"

const threadIDsExact = true

func getpid() int { return int(windows.GetCurrentProcessId()) }
func gettid() int { return int(windows.GetCurrentThreadId()) }
