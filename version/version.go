package version

// Version is set via ldflags at release time.
var Version = "0.0.0"
