// ABOUTME: Chooses between the full-screen and plain surfaces
// ABOUTME: Auto mode uses the terminal screen only when stdin and stdout are terminals
package ui

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/Resonate-Protocol/vumeter/internal/render"
)

// Mode selects the surface
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeTUI   Mode = "tui"
	ModePlain Mode = "plain"
)

// isTerminal is swapped in tests
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Resolve turns auto into a concrete mode and rejects unknown names
func Resolve(mode string) (Mode, error) {
	switch Mode(mode) {
	case ModeAuto, "":
		if isTerminal() {
			return ModeTUI, nil
		}
		return ModePlain, nil
	case ModeTUI:
		if !isTerminal() {
			return "", fmt.Errorf("ui mode %q needs a terminal on stdin and stdout", mode)
		}
		return ModeTUI, nil
	case ModePlain:
		return ModePlain, nil
	default:
		return "", fmt.Errorf("unknown ui mode %q (want auto, tui or plain)", mode)
	}
}

// Open returns the surface and input for a resolved mode
func Open(mode Mode, log *logrus.Entry) (render.Surface, render.Input) {
	if mode == ModeTUI {
		s := NewScreen()
		return s, s
	}
	p := NewPlain(log, DefaultLogInterval)
	return p, p
}
