package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if os.Getenv("JWT_SECRET") == "" {
			_ = os.Setenv("JWT_SECRET", "test-access-secret")
			_ = os.Setenv("JWT_REFRESH_SECRET", "test-refresh-secret")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
