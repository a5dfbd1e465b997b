// ABOUTME: Version information for the binaural renderer
// ABOUTME: Reported in startup logs and the TUI title
package version

const (
	// Version is the release version
	Version = "0.3.0"
	// Product is the product name
	Product = "Resonate Binaural"
	// Manufacturer is the publisher
	Manufacturer = "Resonate"
)

// String returns "Product Version"
func String() string {
	return Product + " " + Version
}
