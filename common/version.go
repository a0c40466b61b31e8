// Package common holds process-wide helpers shared by the binaries.
package common

// PackageName is used as the metrics namespace and default log service name.
const PackageName = "certificate_registry"

// Version is overridden at build time with -ldflags "-X github.com/ruteri/certificate-registry/common.Version=...".
var Version = "dev"
