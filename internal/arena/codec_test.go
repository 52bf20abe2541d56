package arena

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gocoredb/coredb/internal/dbutil"
)

func tempCodec(t *testing.T) (*pageCodec, *os.File) {
	t.Helper()
	dir := t.TempDir()
	f, err := os.OpenFile(filepath.Join(dir, "enc.db"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })

	key := bytes.Repeat([]byte{0x42}, keySize)
	c, err := newPageCodec(f, key)
	if err != nil {
		t.Fatalf("newPageCodec: %v", err)
	}
	return c, f
}

func TestPageRoundTrip(t *testing.T) {
	c, _ := tempCodec(t)

	plain := bytes.Repeat([]byte{0xAA}, pageSize)
	if err := c.writePage(0, plain); err != nil {
		t.Fatalf("writePage: %v", err)
	}

	// force a re-read from disk, bypassing the in-memory cache.
	delete(c.plain, 0)

	got, err := c.loadPage(0)
	if err != nil {
		t.Fatalf("loadPage: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("decrypted page does not match what was written")
	}
}

func TestPageHMACMismatchFails(t *testing.T) {
	c, f := tempCodec(t)

	plain := bytes.Repeat([]byte{0x11}, pageSize)
	if err := c.writePage(0, plain); err != nil {
		t.Fatalf("writePage: %v", err)
	}
	delete(c.plain, 0)

	// Corrupt one ciphertext byte in place.
	if _, err := f.WriteAt([]byte{0xFF}, 0); err != nil {
		t.Fatalf("corrupt write: %v", err)
	}

	_, err := c.loadPage(0)
	if !dbutil.Is(err, dbutil.KindDecryptionFailed) {
		t.Fatalf("expected KindDecryptionFailed, got %v", err)
	}
}

func TestEncryptedSizeBijectionOnPageBoundaries(t *testing.T) {
	for _, pages := range []uint64{0, 1, 2, 10, 1000} {
		n := pages * pageSize
		enc := dataSizeToEncryptedSize(n)
		back := encryptedSizeToDataSize(enc)
		if back != n {
			t.Fatalf("bijection failed for %d pages: %d -> %d -> %d", pages, n, enc, back)
		}
	}
}

func TestNewPageCodecRejectsShortKey(t *testing.T) {
	dir := t.TempDir()
	f, _ := os.OpenFile(filepath.Join(dir, "x.db"), os.O_RDWR|os.O_CREATE, 0o644)
	defer f.Close()

	if _, err := newPageCodec(f, []byte("too short")); err == nil {
		t.Fatalf("expected error for short key")
	}
}
