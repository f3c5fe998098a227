// Package testing prepares the environment of package tests: test mode is
// switched on and the required secrets get throwaway values. Import it for
// its side effects.
package testing

import (
	"os"
	stdtesting "testing"
)

var defaults = map[string]string{
	"FOODORDERS_TEST_MODE": "1",
	"SESSION_SECRET":       "test-session-secret",
	"CSRF_SECRET":          "test-csrf-secret",
	"RESET_TOKEN_SECRET":   "test-reset-secret",
}

func init() {
	for key, value := range defaults {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}

// TestMain runs m after init has prepared the environment.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
