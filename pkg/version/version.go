package version

// Build holds the build identifier, injected via -ldflags. Default "dev".
var Build = "dev"

// String returns the binary name tagged with Build.
func String(binary string) string {
	return binary + " " + Build
}
