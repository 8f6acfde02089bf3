// ABOUTME: Version and product identification constants
// ABOUTME: Reported by the version command and in feed hellos
package version

// Version is overridden at build time with -ldflags "-X .../internal/version.Version=..."
var Version = "0.1.0"

const (
	// Product is the product name
	Product = "vumeter"

	// Manufacturer identifies who builds it
	Manufacturer = "Resonate"
)

// String is the product and version as shown to users and feed watchers
func String() string {
	return Product + " " + Version
}
