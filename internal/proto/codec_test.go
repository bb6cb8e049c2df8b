package proto

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriterReader(t *testing.T) {
	w := NewWriter(0)
	w.Uint8(0xAB)
	w.Uint32(0x01020304)
	w.Int64(-2)
	if err := w.Bytes8([]byte("id")); err != nil {
		t.Fatalf("Bytes8: %v", err)
	}
	w.Bytes32([]byte("payload"))

	r := NewReader(w.Bytes())
	if v, err := r.Uint8(); err != nil || v != 0xAB {
		t.Fatalf("Uint8: got %x, %v", v, err)
	}
	if v, err := r.Uint32(); err != nil || v != 0x01020304 {
		t.Fatalf("Uint32: got %x, %v", v, err)
	}
	if v, err := r.Int64(); err != nil || v != -2 {
		t.Fatalf("Int64: got %d, %v", v, err)
	}
	if v, err := r.Bytes8(); err != nil || string(v) != "id" {
		t.Fatalf("Bytes8: got %q, %v", v, err)
	}
	if v, err := r.Bytes32(); err != nil || string(v) != "payload" {
		t.Fatalf("Bytes32: got %q, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("Expected reader to be drained, %d bytes left", r.Remaining())
	}
}

func TestWriterBigEndian(t *testing.T) {
	w := NewWriter(12)
	w.Uint32(1)
	w.Uint64(0x0102030405060708)
	want := []byte{0, 0, 0, 1, 1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("Expected % x, got % x", want, w.Bytes())
	}
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{0, 0, 1})
	if _, err := r.Uint32(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("Expected ErrShortBuffer, got %v", err)
	}
	r = NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 1})
	if _, err := r.Bytes32(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("Expected ErrShortBuffer for oversized length, got %v", err)
	}
}

func TestBytes8RejectsLongInput(t *testing.T) {
	w := NewWriter(0)
	if err := w.Bytes8(make([]byte, 300)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("Expected ErrTooLong, got %v", err)
	}
	if len(w.Bytes()) != 0 {
		t.Errorf("Expected nothing written, got %d bytes", len(w.Bytes()))
	}
	if err := w.Bytes8(make([]byte, 255)); err != nil {
		t.Fatalf("Expected 255 bytes to fit, got %v", err)
	}
	v, err := NewReader(w.Bytes()).Bytes8()
	if err != nil || len(v) != 255 {
		t.Errorf("Expected 255 bytes back, got %d, %v", len(v), err)
	}
}
