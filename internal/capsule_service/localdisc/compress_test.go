package localdisc

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestCompress_RoundTrip(t *testing.T) {
	random := make([]byte, 4096)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("rand.Read() error = %v", err)
	}
	sparse := make([]byte, 32<<10)
	copy(sparse[100:], "hello")

	tests := []struct {
		name    string
		tag     CompressionTag
		data    []byte
		wantTag CompressionTag
	}{
		{"none", CompressionNone, sparse, CompressionNone},
		{"lz4 sparse block", CompressionLZ4, sparse, CompressionLZ4},
		{"zstd sparse block", CompressionZstd, sparse, CompressionZstd},
		{"lz4 random falls back", CompressionLZ4, random, CompressionNone},
		{"zstd random falls back", CompressionZstd, random, CompressionNone},
		{"empty", CompressionZstd, []byte{}, CompressionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, used, err := compress(tt.data, tt.tag)
			if err != nil {
				t.Fatalf("compress() error = %v", err)
			}
			if used != tt.wantTag {
				t.Errorf("compress() tag = %s, want %s", used, tt.wantTag)
			}
			got, err := decompress(stored, used, len(tt.data))
			if err != nil {
				t.Fatalf("decompress() error = %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("decompress() returned different bytes")
			}
		})
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		tag, err := ParseCompressionTag(name)
		if err != nil {
			t.Fatalf("ParseCompressionTag(%q) error = %v", name, err)
		}
		if tag.String() != name {
			t.Errorf("ParseCompressionTag(%q).String() = %q", name, tag.String())
		}
	}
	if _, err := ParseCompressionTag("brotli"); err == nil {
		t.Errorf("ParseCompressionTag(brotli) error = nil, want error")
	}
}
