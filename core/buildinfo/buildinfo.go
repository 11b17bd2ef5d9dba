package buildinfo

// Set via -ldflags at build time, e.g.
//
//	-X 'github.com/m3rciful/mensabot/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/m3rciful/mensabot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/mensabot/core/buildinfo.Date=2024-03-04T12:00:00Z'
var (
	// Version reports the release tag of the binary.
	Version = "dev"
	// Commit reports the source commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String renders version, commit and date for --version output.
func String() string {
	s := Version + " (" + Commit
	if Date != "" {
		s += ", " + Date
	}
	return s + ")"
}
