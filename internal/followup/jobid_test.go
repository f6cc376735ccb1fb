package followup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeJobID(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, MakeJobID("34600111222", "first"), MakeJobID("34600111222", "first"))
	})

	t.Run("injective over distinct tuples", func(t *testing.T) {
		tuples := []struct{ phone, step string }{
			{"34600111222", "first"},
			{"34600111222", "second"},
			{"34600111222", "third"},
			{"34900333444", "first"},
			{"34900333444", "second"},
		}

		seen := make(map[string]struct{})
		for _, tuple := range tuples {
			id := MakeJobID(tuple.phone, tuple.step)
			_, dup := seen[id]
			assert.False(t, dup, "duplicate id %q for %+v", id, tuple)
			seen[id] = struct{}{}
		}
	})

	t.Run("versioned prefix", func(t *testing.T) {
		assert.Equal(t, "followup:v1:34600111222:first", MakeJobID("34600111222", "first"))
	})
}

func TestIsJobID(t *testing.T) {
	assert.True(t, IsJobID(MakeJobID("34600111222", "first")))
	assert.False(t, IsJobID(""))
	assert.False(t, IsJobID("followup:v1:"))
	assert.False(t, IsJobID("job-1234"))
	assert.False(t, IsJobID("followup:v0:34600111222:first"))
}
