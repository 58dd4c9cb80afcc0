// Package testing puts the process in test mode when imported by a test
// package. The memory report cache is selected unless a backend is set.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var ensureTestMode = sync.OnceFunc(func() {
	_ = os.Setenv("FERRI_TEST_MODE", "1")
	if _, ok := os.LookupEnv("REPORT_CACHE_BACKEND"); !ok {
		_ = os.Setenv("REPORT_CACHE_BACKEND", "memory")
	}
})

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
