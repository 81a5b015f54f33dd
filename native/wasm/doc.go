// Package wasm implements bfbridge.Native on top of a decoder compiled to
// WebAssembly, executed by wazero.
//
// # Module Contract
//
// The module is read from Config.ResourcePath: either a .wasm file or a
// directory containing bfbridge.wasm. It must export:
//
//	memory                          linear memory holding the buffer
//	bf_alloc(size i32) -> i32       reserve the communication buffer
//	bf_free(ptr i32)                release it
//	bf_init(ptr i32, len i32) -> i32
//	                                0 on success, otherwise the length of
//	                                an error message written at ptr
//	bf_<name>(i32...) -> i32|f64    one export per bfbridge.Func, with the
//	                                same arguments and results
//
// bf_tools_should_generate is optional. Modules importing
// wasi_snapshot_preview1 get WASI with the host file system mounted
// read-only, so decoders can open slide files by host path.
//
// A non-empty cache path enables wazero's on-disk compilation cache.
//
// Traps are reported like decoder errors: the call returns -1 and the next
// bf_get_error_length yields the trap message.
package wasm
