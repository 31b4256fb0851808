package flash

import "github.com/grissiom/fvs/word"

// Page describes one physical flash page within a Block: its HAL address,
// its physical size, and the usable record region derived from it.
//
// The last HeaderSize(w) bytes of the page are reserved for the page-status
// word (spec §3); records never occupy that reserved region, which both
// bounds the scanner and guarantees the status word survives a full page of
// records.
type Page struct {
	Base   uint32
	Size   uint32
	Usable int
}

// NewPage derives the usable record region for a page of the given physical
// size and word width.
func NewPage(base, size uint32, w word.Width) Page {
	return Page{Base: base, Size: size, Usable: int(size) - HeaderSize(w)}
}

// statusOffset is the byte offset of the page-status word, immediately past
// the usable region.
func (p Page) statusOffset() int {
	return p.Usable
}

// StatusAddr is the HAL address of the page-status word.
func (p Page) StatusAddr() uint32 {
	return p.Base + uint32(p.statusOffset())
}

// ReadUsable copies the page's usable region into a freshly allocated
// buffer for scanning. Exported: the write and roll engines in package
// store drive the scanner directly over this snapshot.
func (p Page) ReadUsable(r Reader) []byte {
	buf := make([]byte, p.Usable)
	r.ReadAt(p.Base, buf)
	return buf
}

// readStatus reads the page-status word.
func (p Page) readStatus(r Reader, w word.Width) uint32 {
	buf := make([]byte, w.Size())
	r.ReadAt(p.StatusAddr(), buf)
	return w.Read(buf)
}

// pageStatusActive is the on-flash value of an active page's status word
// (spec §3/§4.4). A spare page's status word reads erased, like every other
// byte in the page.
const pageStatusActive = 0

// IsActive reports whether the page's status word reads as active (0).
func (p Page) IsActive(r Reader, w word.Width) bool {
	return p.readStatus(r, w) == pageStatusActive
}

// Activate programs the page's status word to 0 (active), inside its own
// begin/end envelope.
func (p Page) Activate(hal Flash) error {
	if err := hal.BeginWrite(p.Base); err != nil {
		return err
	}
	err := hal.ProgramWord(p.StatusAddr(), pageStatusActive)
	if endErr := hal.EndWrite(p.Base); err == nil {
		err = endErr
	}
	return err
}

// IsSpare reports whether every byte of the page — records, status word,
// and all — reads as erased. Used by the roll engine to confirm a
// destination page is ready before copying records into it.
func (p Page) IsSpare(r Reader) bool {
	buf := make([]byte, p.Size)
	r.ReadAt(p.Base, buf)
	for _, b := range buf {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// scanResult is the outcome of a linear walk of a page's record log.
type scanResult struct {
	// tail is the byte offset of the first header whose id == ~0, i.e.
	// the offset at which a new record would be staged.
	tail int
	// match, if found, is the byte offset of the first record matching
	// the queried (id, size). matchOK is false if no such record exists.
	match   int
	matchOK bool
	// usedBytes sums payload sizes over live records.
	usedBytes int
	// liveBytesWithHeaders sums sizeof(header)+size over live records.
	liveBytesWithHeaders int
	// tombstonedBytesWithHeaders sums sizeof(header)+size over tombstoned
	// records.
	tombstonedBytesWithHeaders int
}

// scan walks buf (a page's usable region, as returned by ReadUsable) from
// offset 0, classifying headers until it reaches the tail (spec §4.3). It
// never reads past len(buf) (invariant: scanner must not dereference beyond
// base+usable_size). queryID/querySize select which record scan reports as
// the match; pass w.Erased() for queryID to disable matching (find-tail
// only).
func scan(buf []byte, queryID, querySize uint32, w word.Width) (scanResult, error) {
	var res scanResult
	off := 0
	for {
		if off+HeaderSize(w) > len(buf) {
			// No room for another header before the usable end: the
			// log fills the page up to here.
			res.tail = off
			return res, nil
		}
		h := DecodeHeader(buf, off, w)
		if h.IsEndOfLog(w) {
			res.tail = off
			return res, nil
		}
		if h.Size == w.Erased() {
			// A crash between programming id and size leaves size
			// still erased. The spec recommends treating this as
			// the tail (conservative, whole region is erased
			// anyway) rather than as corruption.
			res.tail = off
			return res, nil
		}
		recLen := recordLen(h.Size, w)
		if off+recLen > len(buf) {
			return res, ErrCorruption
		}
		if !res.matchOK && h.ID == queryID && h.Size == querySize && !h.IsTombstoned() {
			res.match = off
			res.matchOK = true
		}
		if h.IsLive(w) {
			res.usedBytes += int(h.Size)
			res.liveBytesWithHeaders += recLen
		} else if h.IsTombstoned() {
			res.tombstonedBytesWithHeaders += recLen
		}
		off = next(off, h.Size, w)
	}
}

// Find returns the byte offset of the live-or-reserved record matching
// (id, size), if any.
func Find(buf []byte, id, size uint32, w word.Width) (offset int, ok bool, err error) {
	res, err := scan(buf, id, size, w)
	if err != nil {
		return 0, false, err
	}
	return res.match, res.matchOK, nil
}

// Tail returns the byte offset of the first free header slot in buf.
func Tail(buf []byte, w word.Width) (int, error) {
	res, err := scan(buf, w.Erased(), w.Erased(), w)
	if err != nil {
		return 0, err
	}
	return res.tail, nil
}

// UsedBytes sums payload sizes over live records in buf.
func UsedBytes(buf []byte, w word.Width) (int, error) {
	res, err := scan(buf, w.Erased(), w.Erased(), w)
	if err != nil {
		return 0, err
	}
	return res.usedBytes, nil
}

// LiveBytesIncludingHeaders sums sizeof(header)+size over live records in
// buf. Reserved-but-uncommitted records are excluded, because this is the
// figure the roll engine itself copies forward — a roll discards tombstones
// and reserved-but-uncommitted records alike (spec §4.6 step 1).
func LiveBytesIncludingHeaders(buf []byte, w word.Width) (int, error) {
	res, err := scan(buf, w.Erased(), w.Erased(), w)
	if err != nil {
		return 0, err
	}
	return res.liveBytesWithHeaders, nil
}

// ReservedOrLiveBytesIncludingHeaders sums sizeof(header)+size over every
// record before the tail except tombstones — live and reserved alike.
//
// This, not LiveBytesIncludingHeaders, is what Get's roll-trigger decision
// (spec §4.5.1 step 3) uses. The write engine rolls on tail exhaustion
// without this check, while the record it is rewriting is still live, and
// reports ErrOutOfSpace if the compacted page still has no room. Get instead
// decides *whether to roll at all*, and a page entirely full of
// allocated-but-never-written reservations (e.g. a freshly filled block
// that was only ever Get, never Write) has zero live bytes — with the
// live-only sum Get would roll there, discarding every pending reservation
// just to make room for its own new one. Counting reserved records as
// occupied (and only tombstones as reclaimable) keeps Get's decision
// conservative: it only rolls when tombstones alone free enough room. When
// it does roll, reserved records are discarded along with the tombstones,
// as in every roll.
func ReservedOrLiveBytesIncludingHeaders(buf []byte, w word.Width) (int, error) {
	res, err := scan(buf, w.Erased(), w.Erased(), w)
	if err != nil {
		return 0, err
	}
	return res.tail - res.tombstonedBytesWithHeaders, nil
}
