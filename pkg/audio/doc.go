// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Block types and sample conversion functions
// Package audio provides the sample types shared by the capture backends and the
// loudness reducer.
//
// The meter captures signed 16-bit interleaved PCM. Backends that decode wider
// formats (FLAC at 24 bits, for instance) narrow them with ScaleToInt16.
//
// Example:
//
//	format := audio.Format{
//	    SampleRate: 48000,
//	    Channels:   2,
//	    Sample:     audio.FormatS16LE,
//	}
//
//	frames, ok := audio.Block(buf).Frames(format.Channels)
package audio
