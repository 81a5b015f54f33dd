//go:build darwin && cgo

package runtime

/*
#include <pthread.h>
#include <stdint.h>

static uint64_t bf_thread_id(void) {
	uint64_t id = 0;
	pthread_threadid_np(NULL, &id);
	return id;
}
*/
import "C"

import "os"

const threadIDsExact = true

func getpid() int { return os.Getpid() }
func gettid() int { return int(C.bf_thread_id()) }
