package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

// InTestMode reports whether the binaries should skip connecting to Postgres
// and Redis. The flag is read once per process.
var InTestMode = sync.OnceValue(func() bool {
	return testModeFrom(os.Getenv)
})

func testModeFrom(getenv func(string) string) bool {
	on, err := strconv.ParseBool(getenv(testModeEnv))
	return err == nil && on
}
