// ABOUTME: Entry point for the vumeter level meter
// ABOUTME: Runs the command tree and exits non-zero on failure
package main

import (
	"fmt"
	"os"

	"github.com/Resonate-Protocol/vumeter/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vumeter:", err)
		os.Exit(1)
	}
}
