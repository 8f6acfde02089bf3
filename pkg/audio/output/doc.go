// ABOUTME: Audio output package for playing calibration signals
// ABOUTME: Provides the Output interface and an oto implementation
// Package output plays interleaved 16-bit PCM.
//
// It exists so a known signal can be played into a loopback capture and the
// meter reading compared with the expected level.
//
// Example:
//
//	out := output.NewOto(log)
//	err := out.Open(48000, 2)
//	err = out.Write(samples)
package output
