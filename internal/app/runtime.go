package app

import (
	"os"
	"sync/atomic"
)

// TestModeEnv set to "1" keeps the binaries from connecting to anything.
const TestModeEnv = "FOODORDERS_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether TestModeEnv was set when first asked.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	RefreshTestMode()
	return *testMode.Load()
}

// RefreshTestMode re-reads TestModeEnv.
func RefreshTestMode() {
	on := os.Getenv(TestModeEnv) == "1"
	testMode.Store(&on)
}
