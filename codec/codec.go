// Package codec implements the canonical binary encoding that every hash
// and signature in dytallix commits to: little-endian fixed-width integers,
// length-prefixed byte strings, and deterministic (sorted-key) map
// encoding. The teacher hashed JSON directly; nothing here is adapted from
// an existing teacher codec because the teacher never had one (see
// DESIGN.md), but the overall shape — hash the canonical bytes, have the
// signature cover the hash — follows the teacher's Transaction.Hash/Sign
// pattern.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// Writer accumulates a canonical byte encoding.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteUint128 writes a non-negative big-endian-agnostic 128-bit integer
// encoded as two little-endian uint64 limbs (low limb first), matching the
// u128 balance/fee fields in spec.md §3/§6. Values must fit in 128 bits;
// callers are responsible for range-checking beforehand.
func (w *Writer) WriteUint128(lo, hi uint64) {
	w.WriteUint64(lo)
	w.WriteUint64(hi)
}

// WriteBytes writes a length-prefixed (uvarint-free, fixed uint32) byte
// string.
func (w *Writer) WriteBytes(b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.buf.Write(lenBuf[:])
	w.buf.Write(b)
}

// WriteString writes a length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// WriteBool writes a single-byte boolean.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// WriteSortedStringMap writes a string->string map deterministically: keys
// sorted lexicographically, each entry as (key, value) length-prefixed
// pairs, preceded by an entry count. Used for parameter registries and
// message payload maps where Go's map iteration order is otherwise
// unspecified.
func (w *Writer) WriteSortedStringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.WriteUint64(uint64(len(keys)))
	for _, k := range keys {
		w.WriteString(k)
		w.WriteString(m[k])
	}
}

// Reader decodes a canonical byte encoding produced by Writer.
type Reader struct {
	buf *bytes.Reader
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: bytes.NewReader(b)}
}

func (r *Reader) ReadUint8() (uint8, error) {
	return r.buf.ReadByte()
}

func (r *Reader) ReadUint64() (uint64, error) {
	var b [8]byte
	if _, err := readFull(r.buf, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (r *Reader) ReadUint128() (lo, hi uint64, err error) {
	lo, err = r.ReadUint64()
	if err != nil {
		return 0, 0, err
	}
	hi, err = r.ReadUint64()
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(r.buf, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > 64<<20 {
		return nil, fmt.Errorf("codec: refusing to decode %d-byte field (limit 64MiB)", n)
	}
	out := make([]byte, n)
	if n > 0 {
		if _, err := readFull(r.buf, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.buf.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *Reader) ReadSortedStringMap() (map[string]string, error) {
	n, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, n)
	for i := uint64(0); i < n; i++ {
		k, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// Remaining returns the number of unread bytes, used by callers to assert
// an encoding was fully consumed.
func (r *Reader) Remaining() int {
	return r.buf.Len()
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil {
		return n, err
	}
	if n != len(b) {
		return n, fmt.Errorf("codec: short read: got %d want %d", n, len(b))
	}
	return n, nil
}
