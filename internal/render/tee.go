// ABOUTME: Surface fan-out so one render loop can drive several outputs
// ABOUTME: Used to run the level feed next to the terminal surface
package render

import (
	"errors"
	"sync"
)

// tee may be left from the fault observer while the render goroutine draws
type tee struct {
	surfaces []Surface

	mu      sync.Mutex
	entered int
}

// Tee returns a Surface that enters, draws and leaves every surface in order.
// Leave runs in reverse order and only for surfaces that were entered.
func Tee(surfaces ...Surface) Surface {
	if len(surfaces) == 1 {
		return surfaces[0]
	}
	return &tee{surfaces: surfaces}
}

func (t *tee) Enter() error {
	for _, s := range t.surfaces {
		if err := s.Enter(); err != nil {
			_ = t.Leave()
			return err
		}
		t.mu.Lock()
		t.entered++
		t.mu.Unlock()
	}
	return nil
}

// active returns the surfaces entered so far; the backing array is never written
func (t *tee) active() []Surface {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.surfaces[:t.entered]
}

func (t *tee) Draw(f Frame) error {
	var errs []error
	for _, s := range t.active() {
		if err := s.Draw(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *tee) Leave() error {
	t.mu.Lock()
	entered := t.surfaces[:t.entered]
	t.entered = 0
	t.mu.Unlock()

	var errs []error
	for i := len(entered) - 1; i >= 0; i-- {
		if err := entered[i].Leave(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
