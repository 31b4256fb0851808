// Package store implements the public Variable Store surface (spec §4.7):
// Get, Write, Delete and UsedBytes over a Block of two flash pages. This is
// where the write engine (§4.5) and roll engine (§4.6) live; package flash
// below it only knows about one page at a time.
package store

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/grissiom/fvs/flash"
	"github.com/grissiom/fvs/word"
)

// Logger is the optional trace hook described in SPEC_FULL §4, standing in
// for the original C project's fvs_verbose/fvs_debug macros: nil by
// default, and a Block never calls it on a hot path it wasn't given.
type Logger func(format string, args ...any)

// Block is one Variable Store instance: a pair of equal-size flash pages
// driven through a single HAL (spec §3 "Block", §6 block_init).
//
// A Block is not safe for concurrent use. The spec pushes mutual exclusion
// onto the caller (§5); the embedded mutex here only guards against the
// most common mistake of calling into the same Block from two goroutines,
// the way the teacher's Pager guards its single-writer invariant with a
// mutex it technically doesn't need for a single in-process caller either.
type Block struct {
	mu    sync.Mutex
	hal   flash.ReadWriter
	pages [2]flash.Page
	width word.Width
	log   Logger

	active int // index into pages, or -1 if neither page is active yet
}

// New constructs a Block over two pages of pageSize bytes at page0Base and
// page1Base (spec §6's block_init). Both bases must be aligned to the
// underlying flash page boundary; that alignment is the caller's
// responsibility, same as in the spec.
//
// New also performs boot-time recovery (spec §7): it inspects both pages'
// status words and, if a roll crashed mid-flight leaving both pages
// active, erases the losing page before returning.
func New(hal flash.ReadWriter, page0Base, page1Base, pageSize uint32, w word.Width) (*Block, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("store: invalid word width %d", w.Size())
	}
	if int(pageSize) <= flash.HeaderSize(w) {
		return nil, fmt.Errorf("store: page size %d too small to hold a header (%d bytes)", pageSize, flash.HeaderSize(w))
	}

	b := &Block{
		hal: hal,
		pages: [2]flash.Page{
			flash.NewPage(page0Base, pageSize, w),
			flash.NewPage(page1Base, pageSize, w),
		},
		width: w,
	}
	if err := b.recover(); err != nil {
		return nil, err
	}
	return b, nil
}

// SetLogger installs the optional trace hook, called at record creation,
// commit, tombstone, and roll start/end.
func (b *Block) SetLogger(l Logger) {
	b.log = l
}

func (b *Block) trace(format string, args ...any) {
	if b.log != nil {
		b.log(format, args...)
	}
}

// recover runs the boot-time recovery rule of spec §7.
func (b *Block) recover() error {
	idx, eraseOther, err := flash.SelectActive(b.hal, b.pages, b.width)
	if err != nil {
		return fmt.Errorf("recovering active page: %w", err)
	}
	b.active = idx
	if idx == -1 || !eraseOther {
		return nil
	}
	other := b.pages[1-idx]
	if err := b.hal.ErasePage(other.Base); err != nil {
		return b.halErr(err)
	}
	b.trace("fvs: recovery erased losing page %#x, active=%#x", other.Base, b.pages[idx].Base)
	return nil
}

func (b *Block) halErr(err error) error {
	return fmt.Errorf("%w: %v", flash.ErrHAL, err)
}

// validateKey enforces the id/size constraints of spec §3.
func (b *Block) validateKey(id, size uint32) error {
	if id == 0 || id == b.width.Erased() {
		return fmt.Errorf("store: id %#x is reserved (0 and ~0 are not valid ids)", id)
	}
	if size%uint32(b.width.Size()) != 0 {
		return fmt.Errorf("store: size %d must be a multiple of the word width (%d)", size, b.width.Size())
	}
	return nil
}

// ensureActive activates page 0 on first use (spec §4.5: "If there is no
// active page, the first page is selected and marked active").
func (b *Block) ensureActive() error {
	if b.active != -1 {
		return nil
	}
	if err := b.pages[0].Activate(b.hal); err != nil {
		return b.halErr(err)
	}
	b.active = 0
	return nil
}

// IsUsed reports whether the block has an active page (spec §4.7).
func (b *Block) IsUsed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active != -1
}

// UsedBytes returns the sum of live payload bytes in the active page, or 0
// if there is no active page (spec §4.7).
func (b *Block) UsedBytes() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == -1 {
		return 0, nil
	}
	page := b.pages[b.active]
	n, err := flash.UsedBytes(page.ReadUsable(b.hal), b.width)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RawPages returns full copies of both physical pages (records, status
// word, and all), for internal/snapshot to export as a fixture. The page
// order here is fixed (page 0, then page 1) regardless of which is
// currently active — Snapshot callers must consult IsUsed/recovery logic
// themselves if they only want the live one.
func (b *Block) RawPages() (pageSize uint32, page0, page1 []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	page0 = make([]byte, b.pages[0].Size)
	b.hal.ReadAt(b.pages[0].Base, page0)
	page1 = make([]byte, b.pages[1].Size)
	b.hal.ReadAt(b.pages[1].Base, page1)
	return b.pages[0].Size, page0, page1
}

// Get implements the allocate-or-find operation of spec §4.5.1: it returns
// the payload of (id, size), staging a fresh reserved record (and rolling
// first, if needed) the first time (id, size) is requested.
//
// The returned slice is a copy of the current on-flash bytes, not a live
// view — flash in this module is addressed through a Flash/Reader pair
// rather than a raw pointer, so "return a pointer to the payload" becomes
// "return its current contents" in Go. A freshly allocated record reads as
// all-0xFF, matching the erased state a caller would see from a real
// pointer into unprogrammed flash.
func (b *Block) Get(id, size uint32) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.validateKey(id, size); err != nil {
		return nil, err
	}
	if err := b.ensureActive(); err != nil {
		return nil, err
	}

	_, payload, err := b.findOrAllocate(id, size)
	return payload, err
}

// findOrAllocate is the core of Get: scan the active page for (id, size);
// if absent, stage it at the tail, rolling first if the tail has no room
// but compaction would free enough (spec §4.5.1 steps 2–4).
func (b *Block) findOrAllocate(id, size uint32) (addr uint32, payload []byte, err error) {
	headerSize := flash.HeaderSize(b.width)
	recLen := headerSize + int(size)

	for {
		page := b.pages[b.active]
		buf := page.ReadUsable(b.hal)

		off, ok, err := flash.Find(buf, id, size, b.width)
		if err != nil {
			return 0, nil, err
		}
		if ok {
			addr := page.Base + uint32(off)
			payload := make([]byte, size)
			b.hal.ReadAt(addr+uint32(headerSize), payload)
			return addr, payload, nil
		}

		tail, err := flash.Tail(buf, b.width)
		if err != nil {
			return 0, nil, err
		}
		if recLen <= page.Usable-tail {
			addr := page.Base + uint32(tail)
			if err := flash.StageHeader(b.hal, page.Base, addr, id, size, b.width); err != nil {
				return 0, nil, b.halErr(err)
			}
			b.trace("fvs: stage id=%d size=%d @%#x", id, size, addr)
			payload := make([]byte, size)
			b.hal.ReadAt(addr+uint32(headerSize), payload)
			return addr, payload, nil
		}

		compacted, err := flash.ReservedOrLiveBytesIncludingHeaders(buf, b.width)
		if err != nil {
			return 0, nil, err
		}
		if compacted+recLen > page.Usable {
			return 0, nil, flash.ErrOutOfSpace
		}
		if err := b.roll(); err != nil {
			return 0, nil, err
		}
		// Retry on the newly-active (just-compacted) page.
	}
}

// Write implements the update operation of spec §4.5.2.
func (b *Block) Write(id, size uint32, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.validateKey(id, size); err != nil {
		return err
	}
	if uint32(len(data)) != size {
		return fmt.Errorf("store: data length %d does not match declared size %d", len(data), size)
	}
	if err := b.ensureActive(); err != nil {
		return err
	}

	headerSize := flash.HeaderSize(b.width)
	page := b.pages[b.active]
	buf := page.ReadUsable(b.hal)

	off, ok, err := flash.Find(buf, id, size, b.width)
	if err != nil {
		return err
	}
	if !ok {
		return flash.ErrNotFound
	}

	addr := page.Base + uint32(off)
	h := flash.DecodeHeader(buf, off, b.width)

	if h.IsReserved(b.width) {
		if err := flash.FillAndCommit(b.hal, page.Base, addr, data, b.width); err != nil {
			return b.halErr(err)
		}
		b.trace("fvs: commit id=%d size=%d @%#x", id, size, addr)
		return nil
	}

	existing := buf[off+headerSize : off+headerSize+int(size)]
	if bytes.Equal(existing, data) {
		return nil // idempotent: no flash programmed (spec P5).
	}

	tail, err := flash.Tail(buf, b.width)
	if err != nil {
		return err
	}
	recLen := headerSize + int(size)

	if recLen <= page.Usable-tail {
		newAddr := page.Base + uint32(tail)
		if err := flash.StageHeader(b.hal, page.Base, newAddr, id, size, b.width); err != nil {
			return b.halErr(err)
		}
		if err := flash.FillAndCommit(b.hal, page.Base, newAddr, data, b.width); err != nil {
			return b.halErr(err)
		}
		if err := flash.Tombstone(b.hal, page.Base, addr); err != nil {
			return b.halErr(err)
		}
		b.trace("fvs: rewrite id=%d size=%d old@%#x new@%#x", id, size, addr, newAddr)
		return nil
	}

	// Out of tail space: roll first, while (id, size) is still live, so it
	// survives onto the compacted page, then apply the same
	// stage+fill+tombstone ordering as the in-page rewrite above (spec
	// §4.5.2 step 4) there. Tombstoning before the roll would be wrong: a
	// roll only carries forward live records, so a crash between that
	// tombstone and the roll finishing would drop (id, size) from both
	// pages, with no copy left anywhere.
	if err := b.roll(); err != nil {
		return err
	}

	rolledPage := b.pages[b.active]
	rolledBuf := rolledPage.ReadUsable(b.hal)
	rolledOff, ok, err := flash.Find(rolledBuf, id, size, b.width)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("store: id=%d size=%d vanished across roll", id, size)
	}
	oldAddr := rolledPage.Base + uint32(rolledOff)

	rolledTail, err := flash.Tail(rolledBuf, b.width)
	if err != nil {
		return err
	}
	if recLen > rolledPage.Usable-rolledTail {
		return flash.ErrOutOfSpace
	}
	newAddr := rolledPage.Base + uint32(rolledTail)

	if err := flash.StageHeader(b.hal, rolledPage.Base, newAddr, id, size, b.width); err != nil {
		return b.halErr(err)
	}
	if err := flash.FillAndCommit(b.hal, rolledPage.Base, newAddr, data, b.width); err != nil {
		return b.halErr(err)
	}
	if err := flash.Tombstone(b.hal, rolledPage.Base, oldAddr); err != nil {
		return b.halErr(err)
	}
	b.trace("fvs: rolled rewrite id=%d size=%d old@%#x new@%#x", id, size, oldAddr, newAddr)
	return nil
}

// Delete implements spec §4.5.3: tombstone (id, size) if present. Idempotent.
func (b *Block) Delete(id, size uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.validateKey(id, size); err != nil {
		return err
	}
	if err := b.ensureActive(); err != nil {
		return err
	}

	page := b.pages[b.active]
	buf := page.ReadUsable(b.hal)
	off, ok, err := flash.Find(buf, id, size, b.width)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	addr := page.Base + uint32(off)
	if err := flash.Tombstone(b.hal, page.Base, addr); err != nil {
		return b.halErr(err)
	}
	b.trace("fvs: delete id=%d size=%d @%#x", id, size, addr)
	return nil
}

// roll implements the compaction protocol of spec §4.6: copy live records
// from the active page to the spare, activate the spare, erase the old
// active page.
func (b *Block) roll() error {
	srcIdx := b.active
	dstIdx := 1 - srcIdx
	src := b.pages[srcIdx]
	dst := b.pages[dstIdx]
	w := b.width

	b.trace("fvs: roll start src=%#x dst=%#x", src.Base, dst.Base)

	if !dst.IsSpare(b.hal) {
		// An earlier roll interrupted before activating dst left it
		// partly programmed; erase it before copying into it.
		if err := b.hal.ErasePage(dst.Base); err != nil {
			return b.halErr(err)
		}
	}

	buf := src.ReadUsable(b.hal)
	srcOff, dstOff := 0, 0
	for srcOff+flash.HeaderSize(w) <= len(buf) {
		h := flash.DecodeHeader(buf, srcOff, w)
		if h.IsEndOfLog(w) || h.Size == w.Erased() {
			break
		}
		recLen := flash.RecordLen(h.Size, w)

		if h.IsLive(w) {
			dstAddr := dst.Base + uint32(dstOff)
			payload := buf[srcOff+flash.HeaderSize(w) : srcOff+recLen]
			if err := flash.StageHeader(b.hal, dst.Base, dstAddr, h.ID, h.Size, w); err != nil {
				return b.halErr(err)
			}
			if err := flash.FillAndCommit(b.hal, dst.Base, dstAddr, payload, w); err != nil {
				return b.halErr(err)
			}
			dstOff += recLen
		}
		// Tombstones and reserved-but-uncommitted records are discarded:
		// the former are already dead, the latter are unfinished writes.
		srcOff += recLen
	}

	if err := dst.Activate(b.hal); err != nil {
		return b.halErr(err)
	}
	if err := b.hal.ErasePage(src.Base); err != nil {
		return b.halErr(err)
	}
	b.active = dstIdx
	b.trace("fvs: roll done dst=%#x used=%d", dst.Base, dstOff)
	return nil
}
