// File: internal/flow/key_test.go
// Author: momentics <momentics@gmail.com>

package flow

import (
	"hash/crc32"
	"testing"
)

func TestKeyEquality(t *testing.T) {
	a := NewKey([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 6, 1000, 80)
	b := NewKey([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 6, 1000, 80)
	c := NewKey([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 17, 1000, 80)

	if !a.Equal(b) {
		t.Fatal("identical tuples must be equal")
	}
	if a.Equal(c) {
		t.Fatal("differing proto must not be equal")
	}
	if a.Hash() != b.Hash() {
		t.Fatal("equal keys must hash identically")
	}
}

func TestKeyHashIsCrc32cOverPackedTuple(t *testing.T) {
	k := NewKey([4]byte{192, 168, 1, 1}, [4]byte{192, 168, 1, 2}, 6, 4096, 443)
	want := crc32.Checksum([]byte{
		192, 168, 1, 1,
		192, 168, 1, 2,
		0x10, 0x00, // src port 4096 big-endian
		0x01, 0xbb, // dst port 443 big-endian
		6,
	}, crc32.MakeTable(crc32.Castagnoli))
	if got := k.Hash(); got != want {
		t.Fatalf("hash mismatch: got %#x want %#x", got, want)
	}
}

func TestKeyRssBucketRange(t *testing.T) {
	for port := uint16(0); port < 1000; port++ {
		k := NewKey([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 6, port, 80)
		if b := k.RssBucket(512); b >= 512 {
			t.Fatalf("bucket %d out of range for port %d", b, port)
		}
	}
}
