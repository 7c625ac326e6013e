// Package version reports the build version of the operate binary.
//
// Version and Commit are set at link time:
//
//	go build -ldflags "-X github.com/jae-editor/operate/version.Version=1.2.0" ./cmd/operate
//
// When they are not set, the module build info is used.
package version
