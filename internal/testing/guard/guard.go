// Package guard switches the ledger binaries into test mode. Tests that
// exercise a main package import it for its side effect so that main returns
// before dialing Postgres or Redis.
package guard

import (
	"os"

	"github.com/odyssey-erp/ledger/internal/app"
)

// EnvVar is the switch read by app.InTestMode.
const EnvVar = app.TestModeEnv

func init() {
	if os.Getenv(EnvVar) == "" {
		_ = os.Setenv(EnvVar, "1")
	}
}
