// ABOUTME: Product and version constants
// ABOUTME: Shared by the CLIs, mDNS records and log banners
package version

const (
	// Version is the release version
	Version = "0.3.0"

	// Product is the display name used in logs and discovery
	Product = "Relay Player"

	// Manufacturer identifies who builds this client
	Manufacturer = "Resonate"
)

// String returns the product name and version
func String() string {
	return Product + " " + Version
}
