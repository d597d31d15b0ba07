package order

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewNumber_Format(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	n := NewNumber(now)

	assert.Regexp(t, regexp.MustCompile(`^ORD-1700000000123-[0-9A-F]{4}$`), n)
}

func TestNewNumber_Varies(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{})
	for range 50 {
		seen[NewNumber(now)] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}
