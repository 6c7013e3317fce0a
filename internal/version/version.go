// Package version carries build identity, stamped with
// -ldflags "-X relay/internal/version.version=… -X relay/internal/version.commit=…".
package version

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// String is the short one-line form used in logs and task diagnostics.
func String() string {
	return fmt.Sprintf("relay/%s (%s)", version, commit)
}

// Long is the multi-line form printed by `relay --version`.
func Long() string {
	o := &strings.Builder{}
	field := func(name, value string) {
		fmt.Fprintf(o, "%-10s : %s\n", name, value)
	}
	field("Version", version)
	field("Commit", commit)
	field("Built", buildDate)
	field("Go", runtime.Version())
	field("Platform", runtime.GOOS+"/"+runtime.GOARCH)
	return o.String()
}
