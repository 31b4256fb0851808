package flash

import "github.com/grissiom/fvs/word"

// headerFields is the number of native words in a record header: id, size,
// status (spec §3).
const headerFields = 3

// HeaderSize returns sizeof(header) in bytes for the given word width.
func HeaderSize(w word.Width) int {
	return headerFields * w.Size()
}

// Header is the decoded, in-RAM form of an on-flash record header.
type Header struct {
	ID     uint32
	Size   uint32
	Status uint32
}

// DecodeHeader reads a header starting at mem[off:].
func DecodeHeader(mem []byte, off int, w word.Width) Header {
	sz := w.Size()
	return Header{
		ID:     w.Read(mem[off:]),
		Size:   w.Read(mem[off+sz:]),
		Status: w.Read(mem[off+2*sz:]),
	}
}

// IsEndOfLog reports whether h is the implicit end-of-log sentinel: an
// erased header whose id word is still ~0.
func (h Header) IsEndOfLog(w word.Width) bool {
	return h.ID == w.Erased()
}

// IsTombstoned reports whether h has been logically deleted.
func (h Header) IsTombstoned() bool {
	return h.ID == 0
}

// IsLive reports whether h is a committed, non-deleted record.
func (h Header) IsLive(w word.Width) bool {
	return h.ID != 0 && h.ID != w.Erased() && h.Status == statusWritten
}

// IsReserved reports whether h has a committed header but an uncommitted
// payload (allocated by Get, never filled by Write).
func (h Header) IsReserved(w word.Width) bool {
	return h.ID != 0 && h.ID != w.Erased() && h.Status == w.Erased()
}

// statusWritten is the on-flash value of a committed record's status word.
// The spec standardizes EMPTY=~0, WRITTEN=0 (spec §9's open question); the
// erased-value form of EMPTY lives on word.Width.Erased().
const statusWritten = 0

// recordLen returns sizeof(header)+size, i.e. the number of bytes the
// record occupies on flash.
func recordLen(size uint32, w word.Width) int {
	return HeaderSize(w) + int(size)
}

// RecordLen is the exported form of recordLen, used by the roll engine in
// package store to advance through a page's record log.
func RecordLen(size uint32, w word.Width) int {
	return recordLen(size, w)
}

// next returns the offset immediately after the record whose header sits at
// off and whose payload is size bytes.
func next(off int, size uint32, w word.Width) int {
	return off + recordLen(size, w)
}

// StageHeader programs a fresh reserved header — id, then size, then
// status=EMPTY, in that order — inside one begin/end envelope. The ordering
// matters: a crash between any two of the three writes leaves a header a
// later scan can classify unambiguously (spec §4.2).
func StageHeader(hal Flash, pageBase, addr uint32, id, size uint32, w word.Width) error {
	if err := hal.BeginWrite(pageBase); err != nil {
		return err
	}

	sz := uint32(w.Size())
	err := hal.ProgramWord(addr, id)
	if err == nil {
		err = hal.ProgramWord(addr+sz, size)
	}
	if err == nil {
		err = hal.ProgramWord(addr+2*sz, w.Erased())
	}
	if endErr := hal.EndWrite(pageBase); err == nil {
		err = endErr
	}
	return err
}

// FillAndCommit streams data into the payload slot immediately after the
// header at addr, then commits the record by programming status=WRITTEN.
// Both writes happen inside one begin/end envelope (spec §4.5.2 step 2).
func FillAndCommit(hal Flash, pageBase, addr uint32, data []byte, w word.Width) error {
	if err := hal.BeginWrite(pageBase); err != nil {
		return err
	}

	var err error
	if len(data) > 0 {
		err = hal.ProgramBytes(addr+uint32(HeaderSize(w)), data)
	}
	if err == nil {
		err = hal.ProgramWord(addr+uint32(2*w.Size()), statusWritten)
	}
	if endErr := hal.EndWrite(pageBase); err == nil {
		err = endErr
	}
	return err
}

// Tombstone marks the record at addr deleted by programming id=0. This is
// always legal: any valid id has at least one set bit that can be driven to
// zero (spec §4.2).
func Tombstone(hal Flash, pageBase, addr uint32) error {
	if err := hal.BeginWrite(pageBase); err != nil {
		return err
	}

	err := hal.ProgramWord(addr, 0)
	if endErr := hal.EndWrite(pageBase); err == nil {
		err = endErr
	}
	return err
}
