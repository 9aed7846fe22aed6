package codec

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type sample struct {
	Name  string            `cbor:"name"`
	Count uint64            `cbor:"count"`
	Tags  map[string]string `cbor:"tags"`
}

func TestMarshal_Deterministic(t *testing.T) {
	v := sample{Name: "root", Count: 7, Tags: map[string]string{"z": "1", "a": "2", "m": "3"}}

	first, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Marshal(v)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("Marshal() not deterministic: %x vs %x", first, again)
		}
	}

	var got sample
	if err := Unmarshal(first, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("Unmarshal() mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshal_AnyMapsUseStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"k": map[string]any{"inner": 1}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got any
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	outer, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Unmarshal() type = %T, want map[string]any", got)
	}
	if _, ok := outer["k"].(map[string]any); !ok {
		t.Errorf("inner type = %T, want map[string]any", outer["k"])
	}
}
