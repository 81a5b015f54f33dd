// Package pixel describes decoder pixel types and converts raw plane buffers
// returned by a session into Go images.
//
// Conversion handles the layouts the decoder produces: planar or
// interleaved channels, either byte order, signed samples (shifted into the
// unsigned range), 16/32-bit samples (reduced to 8 bits) and floating point
// samples (normalized to [0, 1] when outside it).
package pixel
