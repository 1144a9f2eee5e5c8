package buildinfo

// Version holds the application's version string.
// Set at build time: go build -ldflags="-X pixelgardenlabs.io/wbck/pkg/buildinfo.Version=1.0.0"
var Version = "dev"

// Name is the application name used in logs and the CLI.
var Name = "wbck"
