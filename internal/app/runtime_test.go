package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTestModeFrom(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"0":     false,
		"false": false,
		"yes":   false,
		"1":     true,
		"true":  true,
		"TRUE":  true,
	}
	for raw, want := range cases {
		got := testModeFrom(func(key string) string {
			assert.Equal(t, testModeEnv, key)
			return raw
		})
		assert.Equal(t, want, got, "value %q", raw)
	}
}
