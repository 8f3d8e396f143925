package version

// Version is the current version of roomdrop and its relay.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/meetcreator/roomdrop/internal/version.Version=v1.0.0'"
var Version = "dev"
