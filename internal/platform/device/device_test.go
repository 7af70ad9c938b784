package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	t.Run("desktop chrome", func(t *testing.T) {
		ua := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
		got := Describe(ua)
		assert.Contains(t, got, "Chrome")
		assert.Contains(t, got, " on ")
	})

	t.Run("empty user agent", func(t *testing.T) {
		assert.Equal(t, "Unknown Device", Describe(""))
	})

	t.Run("unparseable user agent falls back", func(t *testing.T) {
		got := Describe("curl/8.4.0")
		assert.NotEmpty(t, got)
	})
}
