package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEmbedderModelSelection(t *testing.T) {
	t.Run("DefaultsWhenUnset", func(t *testing.T) {
		e, err := NewEmbedder(context.Background(), "test-key", "")
		assert.NoError(t, err)
		assert.Equal(t, DefaultEmbeddingModel, e.model)
	})

	t.Run("HonorsConfiguredModel", func(t *testing.T) {
		e, err := NewEmbedder(context.Background(), "test-key", "text-embedding-004")
		assert.NoError(t, err)
		assert.Equal(t, "text-embedding-004", e.model)
	})
}
