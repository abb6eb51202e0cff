// Package build carries values stamped in at link time:
//
//	go build -ldflags "-X github.com/drummonds/pagepack/internal/build.Version=v1.2.0"
package build

// Version of the running binary
var Version = "dev"
