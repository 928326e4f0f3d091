package version

import (
	"runtime"
	"time"
)

// Overridden at build time with -ldflags "-X".
var (
	Version   = "dev"                           // ex: v0.3.0
	Commit    = "none"                          // ex: 9f2c1e4
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2026-10-16T08:12:00Z
	GoVersion = runtime.Version()               // go version
)

// UserAgent identifies powerdeck on outbound HTTP requests.
func UserAgent() string {
	return "powerdeck/" + Version
}
