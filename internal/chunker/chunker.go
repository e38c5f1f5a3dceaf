// Package chunker splits oversized payloads into fixed-size segments and
// reassembles them. Splitting always happens on plaintext; each resulting
// segment is passed through the configured cipher independently, so chunking
// and encryption compose per segment.
package chunker

// NeedsChunking reports whether data exceeds chunkSize. A payload exactly at
// the boundary does not chunk.
func NeedsChunking(data []byte, chunkSize int64) bool {
	return chunkSize > 0 && int64(len(data)) > chunkSize
}

// Split partitions data into consecutive segments of exactly chunkSize bytes,
// except the final segment which holds the remainder. The final segment is
// never empty for non-empty input. Returned segments alias data.
func Split(data []byte, chunkSize int64) [][]byte {
	if len(data) == 0 || chunkSize <= 0 {
		return nil
	}

	count := (int64(len(data)) + chunkSize - 1) / chunkSize
	segments := make([][]byte, 0, count)
	for start := int64(0); start < int64(len(data)); start += chunkSize {
		end := start + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		segments = append(segments, data[start:end])
	}
	return segments
}

// Merge concatenates segments in the given order with no delimiter. The
// caller must supply segments already decrypted and in original split order;
// there is no per-segment index to recover from.
func Merge(segments [][]byte) []byte {
	var total int
	for _, s := range segments {
		total += len(s)
	}
	merged := make([]byte, 0, total)
	for _, s := range segments {
		merged = append(merged, s...)
	}
	return merged
}
