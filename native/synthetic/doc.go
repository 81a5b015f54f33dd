// Package synthetic provides an in-memory bfbridge.Native backend.
//
// Images are registered by path and generated on demand, so sessions can be
// exercised without a JVM:
//
//	b := synthetic.New()
//	b.AddImage("/slides/a.svs", synthetic.Image{
//	    SizeX: 4096, SizeY: 2048,
//	    RGBChannelCount: 3, Interleaved: true,
//	    PixelType: pixel.Uint8,
//	})
//
// The backend counts lifecycle calls (Counters) and per-entry-point calls
// (Calls), and can be told to fail construction (FailVM, FailThread,
// FailInstance). Handles are minted from a resource.Table and are never
// reused.
//
// Instance calls follow the decoder's conventions: errors return -1 (or -2
// when output would overflow the buffer) and leave their message at the
// start of the communication buffer, with its length available through
// bf_get_error_length.
package synthetic
