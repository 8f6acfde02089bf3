// ABOUTME: Display frame state retained by the render loop across ticks
// ABOUTME: Keeps the last observed level per channel with optional jitter smoothing
package render

import (
	"math"

	"github.com/Resonate-Protocol/vumeter/pkg/audio/level"
)

// Display holds the levels shown on screen. It starts at silence and only changes
// when a fresh value is observed, so an empty level channel never blanks a bar.
type Display struct {
	window  int
	history [][]float64 // linear power of the last window observations per channel
	pos     []int
	filled  []int
	last    []float32
}

// NewDisplay creates state for channels bars, averaging over window observations
func NewDisplay(channels, window int) *Display {
	if window < 1 {
		window = 1
	}
	d := &Display{
		window:  window,
		history: make([][]float64, channels),
		pos:     make([]int, channels),
		filled:  make([]int, channels),
		last:    make([]float32, channels),
	}
	for ch := range d.history {
		d.history[ch] = make([]float64, window)
		d.last[ch] = level.Silence
	}
	return d
}

// Observe records a fresh level for a channel
func (d *Display) Observe(ch int, db float32) {
	d.last[ch] = db
	d.history[ch][d.pos[ch]] = power(db)
	d.pos[ch] = (d.pos[ch] + 1) % d.window
	if d.filled[ch] < d.window {
		d.filled[ch]++
	}
}

// Level returns the level to draw for a channel. Without smoothing it is the last
// observed value; otherwise the power average of the retained observations.
func (d *Display) Level(ch int) float32 {
	if d.window == 1 || d.filled[ch] == 0 {
		return d.last[ch]
	}
	var sum float64
	for i := 0; i < d.filled[ch]; i++ {
		sum += d.history[ch][i]
	}
	mean := sum / float64(d.filled[ch])
	if mean <= 0 {
		return level.Silence
	}
	return float32(10 * math.Log10(mean))
}

// Channels returns the number of channels tracked
func (d *Display) Channels() int { return len(d.last) }

func power(db float32) float64 {
	if db <= level.Silence {
		return 0
	}
	return math.Pow(10, float64(db)/10)
}
