// ABOUTME: File capture source for metering MP3 and FLAC recordings
// ABOUTME: Decodes to 16-bit interleaved blocks paced at the file's sample rate
package input

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/vumeter/pkg/audio"
)

func init() {
	Register("file", func(cfg Config) (Source, error) { return NewFileSource(cfg) }, nil)
}

// decoder produces interleaved samples at the file's own channel count
type decoder interface {
	read(dst []int16) (int, error)
	channels() int
	sampleRate() int
	rewind() error
	close() error
}

// FileSource meters a decoded audio file
type FileSource struct {
	path     string
	dec      decoder
	format   audio.Format
	loop     bool
	scratch  []int16
	pace     *pacer
	finished bool
}

// NewFileSource opens an MP3 or FLAC file. Its channel count must match cfg.Channels
// unless the file is mono, in which case it is duplicated onto every channel.
func NewFileSource(cfg Config) (*FileSource, error) {
	if cfg.File == "" {
		return nil, errors.New("no file given")
	}

	var (
		dec decoder
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(cfg.File)); ext {
	case ".mp3":
		dec, err = openMP3(cfg.File)
	case ".flac":
		dec, err = openFLAC(cfg.File)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
	}
	if err != nil {
		return nil, err
	}

	if dec.channels() != cfg.Channels && dec.channels() != 1 {
		dec.close()
		return nil, fmt.Errorf("file has %d channels, meter expects %d", dec.channels(), cfg.Channels)
	}
	if dec.sampleRate() != cfg.SampleRate {
		logrus.WithField("backend", "file").Infof("Metering %s at its native rate %d Hz (configured %d Hz)",
			filepath.Base(cfg.File), dec.sampleRate(), cfg.SampleRate)
	}

	format := audio.Format{SampleRate: dec.sampleRate(), Channels: cfg.Channels, Sample: cfg.Format}
	s := &FileSource{
		path:   cfg.File,
		dec:    dec,
		format: format,
		loop:   cfg.Loop,
	}
	if cfg.Pace {
		s.pace = newPacer(format.BlockDuration(cfg.BlockSize))
	}
	return s, nil
}

// Read fills block with the next frames of the file. At the end of a non-looping file
// it returns the frames that remained together with io.EOF.
func (s *FileSource) Read(block []int16) (int, error) {
	if s.finished {
		return 0, io.EOF
	}
	if s.pace != nil {
		if err := s.pace.wait(); err != nil {
			return 0, err
		}
	}

	channels := s.format.Channels
	fileChannels := s.dec.channels()
	frames := len(block) / channels
	need := frames * fileChannels
	if cap(s.scratch) < need {
		s.scratch = make([]int16, need)
	}
	scratch := s.scratch[:need]

	filled := 0
	rewoundEmpty := false
	for filled < need {
		n, err := s.dec.read(scratch[filled:])
		filled += n
		if n > 0 {
			rewoundEmpty = false
		}
		if errors.Is(err, io.EOF) {
			if !s.loop || rewoundEmpty {
				s.finished = true
				break
			}
			if err := s.dec.rewind(); err != nil {
				return 0, &DeviceError{Op: "rewind", Err: err}
			}
			rewoundEmpty = true
			continue
		}
		if err != nil {
			return 0, &DeviceError{Op: "decode", Err: err}
		}
	}

	got := filled / fileChannels
	for i := 0; i < got; i++ {
		for ch := 0; ch < channels; ch++ {
			src := ch
			if fileChannels == 1 {
				src = 0
			}
			block[i*channels+ch] = scratch[i*fileChannels+src]
		}
	}

	if s.finished {
		return got * channels, io.EOF
	}
	return got * channels, nil
}

func (s *FileSource) Format() audio.Format { return s.format }
func (s *FileSource) Name() string {
	return strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
}

func (s *FileSource) Close() error {
	if s.pace != nil {
		s.pace.close()
	}
	return s.dec.close()
}

// mp3Decoder always yields stereo 16-bit samples
type mp3Decoder struct {
	file *os.File
	dec  *mp3.Decoder
	buf  []byte
}

func openMP3(path string) (*mp3Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return &mp3Decoder{file: f, dec: dec}, nil
}

func (d *mp3Decoder) read(dst []int16) (int, error) {
	need := len(dst) * 2
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	n, err := io.ReadFull(d.dec, d.buf[:need])
	got := audio.DecodeS16LE(dst, d.buf[:n])
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return got, err
}

func (d *mp3Decoder) channels() int   { return 2 }
func (d *mp3Decoder) sampleRate() int { return d.dec.SampleRate() }

func (d *mp3Decoder) rewind() error {
	if _, err := d.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	dec, err := mp3.NewDecoder(d.file)
	if err != nil {
		return fmt.Errorf("failed to create new decoder: %w", err)
	}
	d.dec = dec
	return nil
}

func (d *mp3Decoder) close() error { return d.file.Close() }

// flacDecoder interleaves subframes and narrows them to 16 bits
type flacDecoder struct {
	file    *os.File
	stream  *flac.Stream
	nch     int
	rate    int
	bits    int
	pending []int16
}

func openFLAC(path string) (*flacDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}
	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	return &flacDecoder{
		file:   f,
		stream: stream,
		nch:    int(stream.Info.NChannels),
		rate:   int(stream.Info.SampleRate),
		bits:   int(stream.Info.BitsPerSample),
	}, nil
}

func (d *flacDecoder) read(dst []int16) (int, error) {
	n := 0
	for n < len(dst) {
		if len(d.pending) == 0 {
			frame, err := d.stream.ParseNext()
			if err != nil {
				return n, err
			}
			blockSize := int(frame.BlockSize)
			d.pending = make([]int16, 0, blockSize*d.nch)
			for i := 0; i < blockSize; i++ {
				for ch := 0; ch < d.nch; ch++ {
					d.pending = append(d.pending, audio.ScaleToInt16(frame.Subframes[ch].Samples[i], d.bits))
				}
			}
		}
		c := copy(dst[n:], d.pending)
		d.pending = d.pending[c:]
		n += c
	}
	return n, nil
}

func (d *flacDecoder) channels() int   { return d.nch }
func (d *flacDecoder) sampleRate() int { return d.rate }

func (d *flacDecoder) rewind() error {
	if _, err := d.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(d.file)
	if err != nil {
		return fmt.Errorf("failed to create new stream: %w", err)
	}
	d.stream = stream
	d.pending = nil
	return nil
}

func (d *flacDecoder) close() error { return d.file.Close() }
