// Package guard switches the process into test mode when imported, so
// binaries exercised from tests skip their runtime side effects.
package guard

import (
	"os"
	"sync"
)

// EnvTestMode is the variable app.InTestMode reads.
const EnvTestMode = "ARAP_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvTestMode) == "" {
			_ = os.Setenv(EnvTestMode, "1")
		}
	})
}
