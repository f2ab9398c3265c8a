package app

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// TestModeEnv makes the ledger binaries return before dialing Postgres or
// Redis when it holds a true value. Main package tests set it through
// internal/testing/guard.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode struct {
	once sync.Once
	on   atomic.Bool
}

// InTestMode reports whether TestModeEnv is set. The variable is read once.
func InTestMode() bool {
	testMode.once.Do(func() { testMode.on.Store(testModeFromEnv()) })
	return testMode.on.Load()
}

// RefreshTestMode re-reads TestModeEnv and returns the new value.
func RefreshTestMode() bool {
	on := testModeFromEnv()
	testMode.once.Do(func() {})
	testMode.on.Store(on)
	return on
}

func testModeFromEnv() bool {
	on, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(TestModeEnv)))
	return err == nil && on
}
