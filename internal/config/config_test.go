package config

import (
	"reflect"
	"testing"
)

func TestParseTokens(t *testing.T) {
	got, err := ParseTokens([]string{"acme=0x01", " BETA = 0x02 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []TokenBinding{
		{Symbol: "ACME", UUID: "0x01"},
		{Symbol: "BETA", UUID: "0x02"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("bindings mismatch: %+v != %+v", got, want)
	}
}

func TestParseTokensMalformed(t *testing.T) {
	for _, item := range []string{"ACME", "=0x01", "ACME="} {
		if _, err := ParseTokens([]string{item}); err == nil {
			t.Fatalf("expected error for %q", item)
		}
	}
}
