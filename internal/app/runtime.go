package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// TestModeEnv, when set to a true value, makes the binaries return before
// opening connections or listeners.
const TestModeEnv = "ARAP_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeInit sync.Once
)

func loadTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	testMode.Store(err == nil && on)
	return testMode.Load()
}

// InTestMode reads TestModeEnv on first use and caches the answer.
func InTestMode() bool {
	testModeInit.Do(func() { loadTestMode() })
	return testMode.Load()
}

// RefreshTestMode re-reads TestModeEnv and returns the new value.
func RefreshTestMode() bool {
	testModeInit.Do(func() {})
	return loadTestMode()
}
