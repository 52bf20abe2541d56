package arena

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/gocoredb/coredb/internal/dbutil"
)

// pageSize is the page granularity of the encrypted mapping. The spec
// requires "the OS page size, minimum 4 KiB"; we fix it at 4 KiB since Go
// has no portable "OS page size" constant that is also guaranteed to
// divide every platform's real page size evenly, and 4 KiB divides every
// page size in practice (x86, arm64, and the 16 KiB pages of Apple
// Silicon all being multiples of it).
const pageSize = 4096

// ivSize and macSize fix the per-page overhead of the physical layout:
// {ciphertext(pageSize), iv(ivSize), hmac(macSize)}.
const (
	ivSize  = aes.BlockSize // 16
	macSize = sha256.Size   // 32
	keySize = 64            // spec: "a 64-byte key"
)

const physicalPageSize = pageSize + ivSize + macSize

// pageCodec is the optional page-granular AES-CTR+HMAC layer sitting
// between the arena and the raw file (spec §4.2). It is guarded by a
// single spinlock because encrypt/decrypt is short and must not be
// reentered from a fault handler.
//
// page() hands callers a live, writable view of the decrypted page
// cache rather than a throwaway copy, and marks whatever it touches
// dirty; flush re-encrypts and persists every dirty page (spec §4.2,
// "writes re-encrypt and update the HMAC"). A request spanning more
// than one page can't alias non-contiguous page buffers directly, so
// its stitched-together view is tracked as a span and scattered back
// into the per-page cache at flush time.
type pageCodec struct {
	file   *os.File
	encKey []byte // AES-256 key, first 32 bytes of the supplied 64
	macKey []byte // HMAC key, last 32 bytes
	spin   spinlock

	plain map[uint64][]byte   // page index -> decrypted plaintext page
	dirty map[uint64]struct{} // pages touched since the last flush

	spans []codecSpan // outstanding multi-page views, pending scatter
}

// codecSpan is a multi-page view page() handed back to a caller: its
// bytes live only in buf until flush scatters them into the per-page
// cache.
type codecSpan struct {
	offset uint64
	buf    []byte
}

func newPageCodec(f *os.File, key []byte) (*pageCodec, error) {
	if len(key) != keySize {
		return nil, dbutil.New(dbutil.KindInvalidFileFormat, "encryption key must be 64 bytes")
	}
	return &pageCodec{
		file:   f,
		encKey: key[:32],
		macKey: key[32:64],
		plain:  make(map[uint64][]byte),
		dirty:  make(map[uint64]struct{}),
	}, nil
}

// dataSizeToEncryptedSize converts a logical (plaintext) byte count to
// the physical byte count needed to store it, page by page.
func dataSizeToEncryptedSize(n uint64) uint64 {
	pages := (n + pageSize - 1) / pageSize
	return pages * physicalPageSize
}

// encryptedSizeToDataSize is the inverse of dataSizeToEncryptedSize,
// required by spec §8 to be a bijection on page-aligned sizes.
func encryptedSizeToDataSize(n uint64) uint64 {
	pages := n / physicalPageSize
	return pages * pageSize
}

// page returns a writable plaintext view of the bytes [offset,
// offset+size) by decrypting (and caching) whichever physical pages
// cover that range, verifying each page's HMAC on first fault. Every
// page touched is marked dirty, since Translate doesn't distinguish a
// read from a write and a caller may write into the returned bytes;
// flush re-encrypts only what's actually dirty, at the cost of
// occasionally re-encrypting a page that was only read.
//
// A request contained in a single page returns a direct subslice of
// that page's cached buffer, so writes land in the cache immediately.
// A request spanning several pages returns a freshly stitched buffer
// instead (pages aren't contiguous in the cache) and is remembered as
// a span so flush can scatter it back before re-encrypting.
func (c *pageCodec) page(offset, size uint64) ([]byte, error) {
	c.spin.lock()
	defer c.spin.unlock()

	startPage := offset / pageSize
	endPage := (offset + size - 1) / pageSize

	if startPage == endPage {
		plain, err := c.loadPage(startPage)
		if err != nil {
			return nil, err
		}
		c.dirty[startPage] = struct{}{}
		lo := offset - startPage*pageSize
		return plain[lo : lo+size], nil
	}

	out := make([]byte, size)
	for p := startPage; p <= endPage; p++ {
		plain, err := c.loadPage(p)
		if err != nil {
			return nil, err
		}
		c.dirty[p] = struct{}{}
		pageStart := p * pageSize
		loFill := uint64(0)
		if offset > pageStart {
			loFill = offset - pageStart
		}
		hiFill := pageSize
		if end := offset + size; end < pageStart+pageSize {
			hiFill = int(end - pageStart)
		}
		copy(out[pageStart+loFill-offset:], plain[loFill:hiFill])
	}
	c.spans = append(c.spans, codecSpan{offset: offset, buf: out})
	return out, nil
}

// scatter copies a multi-page span's bytes back into the per-page
// cache it was stitched from, so flush re-encrypts pages that reflect
// whatever the caller wrote into the span.
func (c *pageCodec) scatter(sp codecSpan) {
	size := uint64(len(sp.buf))
	startPage := sp.offset / pageSize
	endPage := (sp.offset + size - 1) / pageSize
	for p := startPage; p <= endPage; p++ {
		plain := c.plain[p]
		pageStart := p * pageSize
		loFill := uint64(0)
		if sp.offset > pageStart {
			loFill = sp.offset - pageStart
		}
		hiFill := pageSize
		if end := sp.offset + size; end < pageStart+pageSize {
			hiFill = int(end - pageStart)
		}
		copy(plain[loFill:hiFill], sp.buf[pageStart+loFill-sp.offset:])
	}
}

// loadPage decrypts page index p, verifying its HMAC, caching the result.
func (c *pageCodec) loadPage(p uint64) ([]byte, error) {
	if plain, ok := c.plain[p]; ok {
		return plain, nil
	}

	physBuf := make([]byte, physicalPageSize)
	n, err := c.file.ReadAt(physBuf, int64(p*physicalPageSize))
	if err != nil && err != io.EOF {
		return nil, dbutil.Wrap(dbutil.KindDecryptionFailed, "read physical page", err)
	}
	written := false
	for _, b := range physBuf[:n] {
		if b != 0 {
			written = true
			break
		}
	}
	if n < physicalPageSize || !written {
		// Never-written page (past the end of the file, or still the zero
		// bytes left by extending the file): plaintext is all zero.
		plain := make([]byte, pageSize)
		c.plain[p] = plain
		return plain, nil
	}

	cipherText := physBuf[:pageSize]
	iv := physBuf[pageSize : pageSize+ivSize]
	mac := physBuf[pageSize+ivSize:]

	mac2 := hmac.New(sha256.New, c.macKey)
	mac2.Write(iv)
	mac2.Write(cipherText)
	expected := mac2.Sum(nil)
	if !hmac.Equal(expected, mac) {
		return nil, dbutil.New(dbutil.KindDecryptionFailed, "page HMAC mismatch")
	}

	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return nil, dbutil.Wrap(dbutil.KindDecryptionFailed, "new AES cipher", err)
	}
	plain := make([]byte, pageSize)
	cipher.NewCTR(block, iv).XORKeyStream(plain, cipherText)

	c.plain[p] = plain
	return plain, nil
}

// writePage re-encrypts the given plaintext page, updates its HMAC, and
// persists it to disk.
func (c *pageCodec) writePage(p uint64, plain []byte) error {
	c.spin.lock()
	defer c.spin.unlock()
	return c.writePageLocked(p, plain)
}

// writePageLocked is writePage's body, for callers that already hold
// the spinlock (flush, across every dirty page in one critical
// section).
func (c *pageCodec) writePageLocked(p uint64, plain []byte) error {
	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return dbutil.Wrap(dbutil.KindDecryptionFailed, "new AES cipher", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return dbutil.Wrap(dbutil.KindArenaGrowthFailed, "generate page IV", err)
	}

	cipherText := make([]byte, pageSize)
	cipher.NewCTR(block, iv).XORKeyStream(cipherText, plain)

	mac := hmac.New(sha256.New, c.macKey)
	mac.Write(iv)
	mac.Write(cipherText)
	tag := mac.Sum(nil)

	physBuf := make([]byte, physicalPageSize)
	copy(physBuf, cipherText)
	copy(physBuf[pageSize:], iv)
	copy(physBuf[pageSize+ivSize:], tag)

	if _, err := c.file.WriteAt(physBuf, int64(p*physicalPageSize)); err != nil {
		return dbutil.Wrap(dbutil.KindArenaGrowthFailed, "write physical page", err)
	}

	cached := make([]byte, pageSize)
	copy(cached, plain)
	c.plain[p] = cached
	return nil
}

// flush scatters every outstanding multi-page view back into the
// per-page cache, then re-encrypts and persists every page touched
// since the last flush (spec §4.2, "writes re-encrypt and update the
// HMAC"). Pages are written in index order so a crash mid-flush
// leaves a prefix of pages consistently re-encrypted rather than a
// scattered subset.
func (c *pageCodec) flush() error {
	c.spin.lock()
	defer c.spin.unlock()

	for _, sp := range c.spans {
		c.scatter(sp)
	}
	c.spans = nil

	pages := make([]uint64, 0, len(c.dirty))
	for p := range c.dirty {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })

	for _, p := range pages {
		if err := c.writePageLocked(p, c.plain[p]); err != nil {
			return err
		}
		delete(c.dirty, p)
	}
	return nil
}

// spinlock is a short-hold, non-reentrant mutex wrapper: named for the
// brief, bounded critical sections it guards (decrypt/re-encrypt a
// handful of 4 KiB pages), not for busy-waiting — it parks on
// sync.Mutex like any other lock in this package (spec §4.2/§5).
type spinlock struct {
	mu sync.Mutex
}

func (s *spinlock) lock()   { s.mu.Lock() }
func (s *spinlock) unlock() { s.mu.Unlock() }
