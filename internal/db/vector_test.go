package db

import "testing"

func TestDecodeVector_RejectsTruncatedBlob(t *testing.T) {
	if _, err := DecodeVector("abc"); err == nil {
		t.Fatal("expected error for 3-byte blob")
	}
}

func TestEncodeVector_Layout(t *testing.T) {
	// 1.0 in IEEE-754 little-endian is 00 00 80 3f.
	got := EncodeVector([]float32{1})
	if got != "\x00\x00\x80\x3f" {
		t.Fatalf("got % x", got)
	}
	v, err := DecodeVector(got)
	if err != nil || len(v) != 1 || v[0] != 1 {
		t.Fatalf("decode = %v, %v", v, err)
	}
}
