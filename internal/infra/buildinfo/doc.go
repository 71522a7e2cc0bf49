// Package buildinfo reports the storyline build.
//
// Values are injected with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/storyline-go/internal/infra/buildinfo.Version=v1.0.0"
//
// When they are not, the Go version and VCS revision embedded by the
// toolchain are used.
package buildinfo
