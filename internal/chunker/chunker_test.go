package chunker

import (
	"bytes"
	"testing"
)

func TestNeedsChunking(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		chunkSize int64
		want      bool
	}{
		{"below threshold", 5, 10, false},
		{"exactly at threshold", 10, 10, false},
		{"one past threshold", 11, 10, true},
		{"empty", 0, 10, false},
		{"zero chunk size", 100, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			if got := NeedsChunking(data, tt.chunkSize); got != tt.want {
				t.Errorf("NeedsChunking(len=%d, chunkSize=%d) = %v, want %v", tt.size, tt.chunkSize, got, tt.want)
			}
		})
	}
}

func TestSplitSegmentSizes(t *testing.T) {
	data := make([]byte, 25)
	for i := range data {
		data[i] = byte(i)
	}

	segments := Split(data, 10)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}

	wantSizes := []int{10, 10, 5}
	for i, s := range segments {
		if len(s) != wantSizes[i] {
			t.Errorf("segment %d has %d bytes, want %d", i, len(s), wantSizes[i])
		}
	}
}

func TestSplitExactMultiple(t *testing.T) {
	segments := Split(make([]byte, 30), 10)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	for i, s := range segments {
		if len(s) != 10 {
			t.Errorf("segment %d has %d bytes, want 10", i, len(s))
		}
	}
}

func TestSplitEmpty(t *testing.T) {
	if segments := Split(nil, 10); segments != nil {
		t.Errorf("expected nil for empty input, got %d segments", len(segments))
	}
}

func TestSplitMergeRoundTrip(t *testing.T) {
	data := make([]byte, 1021) // deliberately not a multiple of the chunk size
	for i := range data {
		data[i] = byte(i * 7)
	}

	for _, chunkSize := range []int64{1, 16, 100, 1020, 1021, 4096} {
		merged := Merge(Split(data, chunkSize))
		if !bytes.Equal(merged, data) {
			t.Errorf("round trip mismatch for chunk size %d", chunkSize)
		}
	}
}

func TestMergeOrderMatters(t *testing.T) {
	data := []byte("abcdefghij")
	segments := Split(data, 5)

	reversed := [][]byte{segments[1], segments[0]}
	if bytes.Equal(Merge(reversed), data) {
		t.Error("merging out of order must not reproduce the input")
	}
}

func TestMergeEmpty(t *testing.T) {
	if merged := Merge(nil); len(merged) != 0 {
		t.Errorf("expected empty result, got %d bytes", len(merged))
	}
}
