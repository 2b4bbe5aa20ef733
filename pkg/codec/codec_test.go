package codec

import (
	"bytes"
	"testing"

	"github.com/kelvindb/tensorstore/pkg/dtype"
)

func TestCompress_Uncompressed(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	out, err := Compress(buf, Uncompressed)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if !bytes.Equal(out, buf) {
		t.Fatalf("uncompressed path should pass bytes through unchanged")
	}
}

func TestCompress_ZstdRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF, 0x01}, 256)
	compressed, err := Compress(original, Zstd)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) >= len(original) {
		t.Fatalf("expected zstd to shrink a repetitive buffer: got %d vs %d bytes", len(compressed), len(original))
	}

	view, err := DecompressArray(compressed, Zstd, dtype.Shape{256, 4}, dtype.Uint8)
	if err != nil {
		t.Fatalf("DecompressArray: %v", err)
	}
	if !bytes.Equal(view.Buf, original) {
		t.Fatalf("round trip mismatch")
	}
}

func TestCompress_UnknownTag(t *testing.T) {
	if _, err := Compress([]byte{1}, "snappy"); err == nil {
		t.Fatalf("expected unknown tag to fail")
	}
}
