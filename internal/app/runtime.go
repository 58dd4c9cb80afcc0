package app

import (
	"os"
	"sync"
)

// TestModeEnv disables side effects such as dialing Postgres and Redis and
// request logging when set to "1".
const TestModeEnv = "FERRI_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether TestModeEnv was set when first checked.
func InTestMode() bool {
	return testMode()
}
