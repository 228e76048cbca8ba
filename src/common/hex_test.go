package common

import (
	"bytes"
	"fmt"
	"testing"
)

func TestHexRoundTrip(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef}

	s := EncodeToString(data)
	if s != "0XDEADBEEF" {
		t.Fatalf("EncodeToString should be 0XDEADBEEF, not %s", s)
	}

	res, err := DecodeFromString(s)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(res, data) {
		t.Fatalf("decoded bytes should be %v, not %v", data, res)
	}
}

func TestCleanseHex(t *testing.T) {
	cases := map[string]string{
		"0xabcd": "0XABCD",
		"ABCD":   "0XABCD",
		" 0Xab ": "0XAB",
		"0XABCD": "0XABCD",
	}

	for in, want := range cases {
		if got := CleanseHex(in); got != want {
			t.Errorf("CleanseHex(%q) should be %q, not %q", in, want, got)
		}
	}
}

func TestIsStore(t *testing.T) {
	err := NewStoreErr("Block", KeyNotFound, "0XAB")

	if !IsStore(err, KeyNotFound) {
		t.Fatal("error should be KeyNotFound")
	}

	if IsStore(err, Empty) {
		t.Fatal("error should not be Empty")
	}
}

func TestIsStoreWrapped(t *testing.T) {
	err := fmt.Errorf("loading head: %w", NewStoreErr("Finalized", Empty, ""))

	if !IsStore(err, Empty) {
		t.Fatal("wrapped error should be Empty")
	}

	if err.Error() != "loading head: Finalized: Empty" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
