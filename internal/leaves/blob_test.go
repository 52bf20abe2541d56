package leaves

import (
	"bytes"
	"testing"

	"github.com/gocoredb/coredb/internal/arena"
)

func openBlobTestArena(t *testing.T) *arena.Arena {
	t.Helper()
	a, err := arena.Open(t.TempDir()+"/blob.db", nil)
	if err != nil {
		t.Fatalf("arena.Open: %v", err)
	}
	return a
}

func TestWriteBlobInlineRoundTrip(t *testing.T) {
	a := openBlobTestArena(t)
	data := []byte("hello, small blob")
	ref, err := WriteBlob(a, data)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	got, err := ReadBlob(a, ref)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestWriteBlobBucketedRoundTrip(t *testing.T) {
	a := openBlobTestArena(t)
	data := make([]byte, maxInlineBlob*3+17)
	for i := range data {
		data[i] = byte(i)
	}
	ref, err := WriteBlob(a, data)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	got, err := ReadBlob(a, ref)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("bucketed blob mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestReadBlobAtHandlesOffsetAcrossBuckets(t *testing.T) {
	a := openBlobTestArena(t)
	data := make([]byte, maxInlineBlob*2+100)
	for i := range data {
		data[i] = byte(i % 251)
	}
	ref, err := WriteBlob(a, data)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}

	pos := uint64(maxInlineBlob - 10)
	buf := make([]byte, 50)
	n, err := ReadBlobAt(a, ref, pos, buf)
	if err != nil {
		t.Fatalf("ReadBlobAt: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("short read: got %d, want %d", n, len(buf))
	}
	if !bytes.Equal(buf, data[pos:pos+50]) {
		t.Fatalf("ReadBlobAt mismatch at offset %d", pos)
	}
}

func TestBlobColumnSetFreesOldBlob(t *testing.T) {
	a := openBlobTestArena(t)
	var col BlobColumn
	if err := col.Insert(a, 0, []byte("first"), 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := col.Set(a, 0, []byte("replacement value"), 2); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := col.Get(a, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "replacement value" {
		t.Fatalf("got %q", got)
	}
}

func TestBlobColumnEraseFreesBlob(t *testing.T) {
	a := openBlobTestArena(t)
	var col BlobColumn
	if err := col.Insert(a, 0, []byte("a"), 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := col.Insert(a, 1, []byte("b"), 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := col.Erase(a, 0, 2); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	n, err := col.Len(a)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
	got, err := col.Get(a, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "b" {
		t.Fatalf("got %q, want %q", got, "b")
	}
}
