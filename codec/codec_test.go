package codec

import (
	"math/big"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUint8(7)
	w.WriteUint64(1234567890123)
	w.WriteBytes([]byte("hello"))
	w.WriteString("dytallix")
	w.WriteBool(true)
	w.WriteSortedStringMap(map[string]string{"b": "2", "a": "1"})

	r := NewReader(w.Bytes())
	if v, err := r.ReadUint8(); err != nil || v != 7 {
		t.Fatalf("ReadUint8: got %d, %v", v, err)
	}
	if v, err := r.ReadUint64(); err != nil || v != 1234567890123 {
		t.Fatalf("ReadUint64: got %d, %v", v, err)
	}
	if b, err := r.ReadBytes(); err != nil || string(b) != "hello" {
		t.Fatalf("ReadBytes: got %q, %v", b, err)
	}
	if s, err := r.ReadString(); err != nil || s != "dytallix" {
		t.Fatalf("ReadString: got %q, %v", s, err)
	}
	if b, err := r.ReadBool(); err != nil || !b {
		t.Fatalf("ReadBool: got %v, %v", b, err)
	}
	m, err := r.ReadSortedStringMap()
	if err != nil {
		t.Fatalf("ReadSortedStringMap: %v", err)
	}
	if m["a"] != "1" || m["b"] != "2" {
		t.Fatalf("unexpected map contents: %+v", m)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected no remaining bytes, got %d", r.Remaining())
	}
}

func TestUint128RoundTrip(t *testing.T) {
	cases := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(21_000),
		new(big.Int).Lsh(big.NewInt(1), 127),
		maxUint128,
	}
	for _, c := range cases {
		w := NewWriter()
		if err := w.WriteBigUint128(c); err != nil {
			t.Fatalf("WriteBigUint128(%s): %v", c, err)
		}
		r := NewReader(w.Bytes())
		got, err := r.ReadBigUint128()
		if err != nil {
			t.Fatalf("ReadBigUint128(%s): %v", c, err)
		}
		if got.Cmp(c) != 0 {
			t.Fatalf("round trip mismatch: got %s want %s", got, c)
		}
	}

	overflow := new(big.Int).Add(maxUint128, big.NewInt(1))
	w := NewWriter()
	if err := w.WriteBigUint128(overflow); err == nil {
		t.Fatalf("expected overflow error")
	}

	negative := big.NewInt(-1)
	w2 := NewWriter()
	if err := w2.WriteBigUint128(negative); err == nil {
		t.Fatalf("expected negative value error")
	}
}

func TestMapEncodingIsOrderIndependent(t *testing.T) {
	m1 := map[string]string{"z": "26", "a": "1", "m": "13"}
	m2 := map[string]string{"a": "1", "m": "13", "z": "26"}

	w1 := NewWriter()
	w1.WriteSortedStringMap(m1)
	w2 := NewWriter()
	w2.WriteSortedStringMap(m2)

	if string(w1.Bytes()) != string(w2.Bytes()) {
		t.Fatalf("expected identical encodings regardless of map construction order")
	}
}
