// Package chunker partitions fetched records into bounded batches. A chunk
// is the unit of commit in the sync pipeline: embed + graph + resolve must
// all succeed before the cursor moves past it.
package chunker

import "weft/internal/fetcher"

// Split partitions records into chunks of at most size records, preserving
// order. A non-positive size yields a single chunk.
func Split(records []fetcher.Record, size int) [][]fetcher.Record {
	if len(records) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]fetcher.Record{records}
	}

	chunks := make([][]fetcher.Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
