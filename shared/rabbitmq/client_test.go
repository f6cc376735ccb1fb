package rabbitmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishBackoff(t *testing.T) {
	base := 100 * time.Millisecond

	t.Run("doubles per attempt by default", func(t *testing.T) {
		assert.Equal(t, 100*time.Millisecond, publishBackoff(base, 2.0, 0))
		assert.Equal(t, 200*time.Millisecond, publishBackoff(base, 2.0, 1))
		assert.Equal(t, 400*time.Millisecond, publishBackoff(base, 2.0, 2))
	})

	t.Run("honors the configured multiplier", func(t *testing.T) {
		assert.Equal(t, 100*time.Millisecond, publishBackoff(base, 1.5, 0))
		assert.Equal(t, 150*time.Millisecond, publishBackoff(base, 1.5, 1))
		assert.Equal(t, 225*time.Millisecond, publishBackoff(base, 1.5, 2))
	})
}
