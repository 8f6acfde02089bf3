// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams PCM to the default playback device through a pipe-fed player
package output

import (
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/vumeter/pkg/audio"
)

// Oto output implementation using oto library
type Oto struct {
	log        *logrus.Entry
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	buf        []byte
	ready      bool
}

// NewOto creates a new Oto output
func NewOto(log *logrus.Entry) *Oto {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Oto{log: log}
}

// Open initializes the output device. oto allows one context per process, so a
// second Open with a different format is an error.
func (o *Oto) Open(sampleRate, channels int) error {
	if o.otoCtx != nil {
		if o.sampleRate == sampleRate && o.channels == channels {
			return nil
		}
		return fmt.Errorf("output already open at %dHz %dch", o.sampleRate, o.channels)
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels

	// Create pipe for continuous streaming
	o.pipeReader, o.pipeWriter = io.Pipe()

	// Create persistent player that reads from the pipe
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()

	o.ready = true

	o.log.Infof("Audio output initialized: %dHz, %d channels", sampleRate, channels)

	return nil
}

// Write outputs audio samples (blocks until written)
func (o *Oto) Write(samples []int16) error {
	if !o.ready {
		return fmt.Errorf("output not initialized")
	}

	if cap(o.buf) < len(samples)*2 {
		o.buf = make([]byte, len(samples)*2)
	}
	out := o.buf[:len(samples)*2]
	audio.EncodeS16LE(out, samples)

	// The pipe feeds the persistent player, so this blocks at playback speed
	if _, err := o.pipeWriter.Write(out); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}

	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
		o.ready = false
	}
	return nil
}
