package chunker_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"weft/internal/chunker"
	"weft/internal/fetcher"
)

func makeRecords(n int) []fetcher.Record {
	out := make([]fetcher.Record, n)
	for i := range out {
		out[i] = fetcher.Record{ExternalID: fmt.Sprintf("rec-%d", i)}
	}
	return out
}

func TestSplit(t *testing.T) {
	t.Run("PartialLastChunk", func(t *testing.T) {
		chunks := chunker.Split(makeRecords(250), 100)
		assert.Len(t, chunks, 3)
		assert.Len(t, chunks[0], 100)
		assert.Len(t, chunks[1], 100)
		assert.Len(t, chunks[2], 50)
	})

	t.Run("ExactMultiple", func(t *testing.T) {
		chunks := chunker.Split(makeRecords(200), 100)
		assert.Len(t, chunks, 2)
		assert.Len(t, chunks[1], 100)
	})

	t.Run("FewerThanSize", func(t *testing.T) {
		chunks := chunker.Split(makeRecords(3), 100)
		assert.Len(t, chunks, 1)
		assert.Len(t, chunks[0], 3)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, chunker.Split(nil, 100))
	})

	t.Run("PreservesOrder", func(t *testing.T) {
		chunks := chunker.Split(makeRecords(5), 2)
		assert.Equal(t, "rec-0", chunks[0][0].ExternalID)
		assert.Equal(t, "rec-4", chunks[2][0].ExternalID)
	})
}
