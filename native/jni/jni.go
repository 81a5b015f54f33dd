//go:build bfbridge_jni && cgo

package jni

/*
#cgo LDFLAGS: -ljvm
#include <jni.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
	JavaVM *jvm;
	JNIEnv *env;
	jclass cls;
	jmethodID ctor;
	jmethodID set_buffer;
	jmethodID methods[64];
} bf_thread;

// bf_exception clears a pending Java exception. It returns 1 if there was one.
static int bf_exception(JNIEnv *env) {
	if ((*env)->ExceptionCheck(env)) {
		(*env)->ExceptionDescribe(env);
		(*env)->ExceptionClear(env);
		return 1;
	}
	return 0;
}

static jint bf_create_vm(JavaVM **jvm, char **opts, int n) {
	JavaVMOption *options = calloc(n, sizeof(JavaVMOption));
	if (!options) {
		return JNI_ENOMEM;
	}
	for (int i = 0; i < n; i++) {
		options[i].optionString = opts[i];
	}
	JavaVMInitArgs args;
	args.version = JNI_VERSION_1_8;
	args.nOptions = n;
	args.options = options;
	args.ignoreUnrecognized = JNI_FALSE;

	JNIEnv *env;
	jint code = JNI_CreateJavaVM(jvm, (void **)&env, &args);
	free(options);
	return code;
}

// bf_check_class verifies the bridge class loads on the creating thread.
static int bf_check_class(JavaVM *jvm, const char *name) {
	JNIEnv *env;
	if ((*jvm)->GetEnv(jvm, (void **)&env, JNI_VERSION_1_8) != JNI_OK) {
		return 0;
	}
	jclass cls = (*env)->FindClass(env, name);
	if (!cls) {
		bf_exception(env);
		return 0;
	}
	(*env)->DeleteLocalRef(env, cls);
	return 1;
}

static void bf_destroy_vm(JavaVM *jvm) {
	(*jvm)->DestroyJavaVM(jvm);
}

static jint bf_attach(bf_thread *t, JavaVM *jvm, const char *name) {
	t->jvm = jvm;
	jint code = (*jvm)->AttachCurrentThread(jvm, (void **)&t->env, NULL);
	if (code != JNI_OK) {
		return code;
	}
	jclass cls = (*t->env)->FindClass(t->env, name);
	if (!cls) {
		bf_exception(t->env);
		(*jvm)->DetachCurrentThread(jvm);
		return 1;
	}
	t->cls = (*t->env)->NewGlobalRef(t->env, cls);
	(*t->env)->DeleteLocalRef(t->env, cls);
	t->ctor = (*t->env)->GetMethodID(t->env, t->cls, "<init>", "()V");
	t->set_buffer = (*t->env)->GetMethodID(t->env, t->cls, "BFSetCommunicationBuffer", "(Ljava/nio/ByteBuffer;)V");
	if (!t->ctor || !t->set_buffer) {
		bf_exception(t->env);
		(*t->env)->DeleteGlobalRef(t->env, t->cls);
		(*jvm)->DetachCurrentThread(jvm);
		return 2;
	}
	return JNI_OK;
}

static int bf_method(bf_thread *t, int idx, const char *name, const char *sig) {
	t->methods[idx] = (*t->env)->GetMethodID(t->env, t->cls, name, sig);
	if (!t->methods[idx]) {
		bf_exception(t->env);
		return 0;
	}
	return 1;
}

static void bf_detach(bf_thread *t) {
	(*t->env)->DeleteGlobalRef(t->env, t->cls);
	(*t->jvm)->DetachCurrentThread(t->jvm);
}

static jobject bf_new_instance(bf_thread *t, void *buf, jlong len) {
	JNIEnv *env = t->env;
	jobject obj = (*env)->NewObject(env, t->cls, t->ctor);
	if (!obj) {
		bf_exception(env);
		return NULL;
	}
	jobject bb = (*env)->NewDirectByteBuffer(env, buf, len);
	if (!bb) {
		bf_exception(env);
		(*env)->DeleteLocalRef(env, obj);
		return NULL;
	}
	(*env)->CallVoidMethod(env, obj, t->set_buffer, bb);
	(*env)->DeleteLocalRef(env, bb);
	if (bf_exception(env)) {
		(*env)->DeleteLocalRef(env, obj);
		return NULL;
	}
	jobject global = (*env)->NewGlobalRef(env, obj);
	(*env)->DeleteLocalRef(env, obj);
	return global;
}

static void bf_free_instance(bf_thread *t, jobject obj) {
	(*t->env)->DeleteGlobalRef(t->env, obj);
}

static jint bf_call_int(bf_thread *t, jobject obj, int idx, jint *args, int n) {
	jvalue v[5];
	for (int i = 0; i < n && i < 5; i++) {
		v[i].i = args[i];
	}
	jint r = (*t->env)->CallIntMethodA(t->env, obj, t->methods[idx], v);
	if (bf_exception(t->env)) {
		return -1;
	}
	return r;
}

static jdouble bf_call_double(bf_thread *t, jobject obj, int idx, jint *args, int n) {
	jvalue v[5];
	for (int i = 0; i < n && i < 5; i++) {
		v[i].i = args[i];
	}
	jdouble r = (*t->env)->CallDoubleMethodA(t->env, obj, t->methods[idx], v);
	if (bf_exception(t->env)) {
		return -1;
	}
	return r;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/resource"
)

type javaVM struct {
	jvm *C.JavaVM
}

func (v *javaVM) Drop() { C.bf_destroy_vm(v.jvm) }

type thread struct {
	t *C.bf_thread
}

type instance struct {
	obj    C.jobject
	thread *thread
}

var (
	defaultBackend     *Backend
	defaultBackendOnce sync.Once
)

// Default returns the process-wide JNI backend. A process hosts at most one
// JVM, so there is no constructor.
func Default() *Backend {
	defaultBackendOnce.Do(func() {
		defaultBackend = &Backend{table: resource.NewTable()}
	})
	return defaultBackend
}

// Backend hosts the Java decoder through JNI.
type Backend struct {
	table  *resource.Table
	mu     sync.Mutex
	vmUsed bool
}

var _ bfbridge.Native = (*Backend)(nil)

// Subscribe reports handle creation and release to o.
func (b *Backend) Subscribe(o resource.Observer) {
	b.table.Subscribe(o)
}

func (b *Backend) MakeVM(resourcePath, cachePath string) (bfbridge.Handle, bfbridge.ErrorDescriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.vmUsed {
		return 0, descriptorf("a JVM was already created in this process and cannot be re-created")
	}

	opts, err := vmOptions(resourcePath, cachePath)
	if err != nil {
		return 0, descriptorf("bfbridge_make_vm: %v", err)
	}
	cOpts := C.malloc(C.size_t(len(opts)) * C.size_t(unsafe.Sizeof(uintptr(0))))
	defer C.free(cOpts)
	argv := unsafe.Slice((**C.char)(cOpts), len(opts))
	for i, o := range opts {
		argv[i] = C.CString(o)
		defer C.free(unsafe.Pointer(argv[i]))
	}

	var jvm *C.JavaVM
	if code := C.bf_create_vm(&jvm, (**C.char)(cOpts), C.int(len(opts))); code < 0 {
		// JNI_CreateJavaVM may not be retried after a failure either.
		b.vmUsed = true
		return 0, descriptorf("%s", codeError("JNI_CreateJavaVM", int(code)))
	}
	b.vmUsed = true

	cls := C.CString(BridgeClass)
	defer C.free(unsafe.Pointer(cls))
	if C.bf_check_class(jvm, cls) == 0 {
		C.bf_destroy_vm(jvm)
		return 0, descriptorf("FindClass failed because %s (or a dependency of it) could not be found. Are the jars in %s?", BridgeClass, resourcePath)
	}
	return b.table.Insert(resource.TypeVM, &javaVM{jvm: jvm}), nil
}

func (b *Backend) FreeVM(vm bfbridge.Handle) {
	if _, ok := b.table.GetTyped(vm, resource.TypeVM); ok {
		b.table.Remove(vm)
	}
}

func (b *Backend) MakeThread(vm bfbridge.Handle) (bfbridge.Handle, bfbridge.ErrorDescriptor) {
	v, ok := b.table.GetTyped(vm, resource.TypeVM)
	if !ok {
		return 0, descriptorf("bfbridge_make_thread requires a successful bfbridge_make_vm")
	}
	t := (*C.bf_thread)(C.calloc(1, C.size_t(unsafe.Sizeof(C.bf_thread{}))))
	cls := C.CString(BridgeClass)
	defer C.free(unsafe.Pointer(cls))

	switch code := C.bf_attach(t, v.(*javaVM).jvm, cls); {
	case code < 0:
		C.free(unsafe.Pointer(t))
		return 0, descriptorf("%s", codeError("AttachCurrentThread", int(code)))
	case code == 1:
		C.free(unsafe.Pointer(t))
		return 0, descriptorf("FindClass failed because %s (or a dependency of it) could not be found", BridgeClass)
	case code == 2:
		C.free(unsafe.Pointer(t))
		return 0, descriptorf("%s lacks a constructor or BFSetCommunicationBuffer", BridgeClass)
	}

	for _, fn := range bfbridge.Funcs() {
		name, desc := javaMethod(fn)
		cName, cDesc := C.CString(name), C.CString(desc)
		found := C.bf_method(t, C.int(fn), cName, cDesc)
		C.free(unsafe.Pointer(cName))
		C.free(unsafe.Pointer(cDesc))
		// bf_tools_should_generate has no Java counterpart yet
		if found == 0 && fn != bfbridge.FuncToolsShouldGenerate {
			C.bf_detach(t)
			C.free(unsafe.Pointer(t))
			return 0, descriptorf("method %s%s not found in %s, the jar and this library are out of sync", name, desc, BridgeClass)
		}
	}
	return b.table.Insert(resource.TypeThread, &thread{t: t}), nil
}

func (b *Backend) FreeThread(h bfbridge.Handle) {
	v, ok := b.table.GetTyped(h, resource.TypeThread)
	if !ok {
		return
	}
	b.table.Remove(h)
	t := v.(*thread)
	C.bf_detach(t.t)
	C.free(unsafe.Pointer(t.t))
}

// AllocBuffer allocates C memory, which the JVM wraps as a direct ByteBuffer.
func (b *Backend) AllocBuffer(capacity int) []byte {
	if capacity <= 0 {
		return nil
	}
	p := C.malloc(C.size_t(capacity))
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), capacity)
}

func (b *Backend) FreeBuffer(buf []byte) {
	if len(buf) == 0 {
		return
	}
	C.free(unsafe.Pointer(unsafe.SliceData(buf)))
}

func (b *Backend) MakeInstance(th bfbridge.Handle, buf []byte) (bfbridge.Handle, bfbridge.ErrorDescriptor) {
	v, ok := b.table.GetTyped(th, resource.TypeThread)
	if !ok {
		return 0, descriptorf("bfbridge_make_instance requires a successful bfbridge_make_thread")
	}
	if len(buf) == 0 {
		return 0, descriptorf("communication buffer is empty")
	}
	t := v.(*thread)
	obj := C.bf_new_instance(t.t, unsafe.Pointer(unsafe.SliceData(buf)), C.jlong(len(buf)))
	if obj == nil {
		return 0, descriptorf("could not construct %s with a %d byte direct buffer, see stderr", BridgeClass, len(buf))
	}
	return b.table.Insert(resource.TypeInstance, &instance{obj: obj, thread: t}), nil
}

func (b *Backend) FreeInstance(inst, th bfbridge.Handle) {
	if _, ok := b.table.GetTyped(th, resource.TypeThread); !ok {
		return
	}
	v, ok := b.table.GetTyped(inst, resource.TypeInstance)
	if !ok {
		return
	}
	b.table.Remove(inst)
	in := v.(*instance)
	C.bf_free_instance(in.thread.t, in.obj)
}

func (b *Backend) CallInt(inst, th bfbridge.Handle, fn bfbridge.Func, args ...int32) int32 {
	in, argv, ok := b.prepare(inst, th, fn, args)
	if !ok {
		return -1
	}
	return int32(C.bf_call_int(in.thread.t, in.obj, C.int(fn), argv, C.int(len(args))))
}

func (b *Backend) CallDouble(inst, th bfbridge.Handle, fn bfbridge.Func, args ...int32) float64 {
	in, argv, ok := b.prepare(inst, th, fn, args)
	if !ok {
		return -1
	}
	return float64(C.bf_call_double(in.thread.t, in.obj, C.int(fn), argv, C.int(len(args))))
}

func (b *Backend) prepare(inst, th bfbridge.Handle, fn bfbridge.Func, args []int32) (*instance, *C.jint, bool) {
	if !fn.Valid() || len(args) != fn.Arity() {
		return nil, nil, false
	}
	if _, ok := b.table.GetTyped(th, resource.TypeThread); !ok {
		return nil, nil, false
	}
	v, ok := b.table.GetTyped(inst, resource.TypeInstance)
	if !ok {
		return nil, nil, false
	}
	in := v.(*instance)
	if in.thread.t.methods[fn] == nil {
		return nil, nil, false
	}
	var argv *C.jint
	if len(args) > 0 {
		argv = (*C.jint)(unsafe.Pointer(&args[0]))
	}
	return in, argv, true
}

type descriptor struct {
	msg string
}

func descriptorf(format string, args ...any) *descriptor {
	return &descriptor{msg: fmt.Sprintf(format, args...)}
}

func (d *descriptor) Description() string { return d.msg }
func (d *descriptor) Free()               {}
