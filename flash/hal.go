package flash

// Flash is the write-side HAL contract the core depends on (spec §6). It is
// the only boundary between the VS and a concrete flash driver; nothing in
// this module talks to hardware directly.
//
// Implementations must honour the erased-state-to-programmed-state
// constraint: ProgramWord and ProgramBytes may only transition bits from 1
// to 0. Driving a bit 0->1 outside of ErasePage is undefined on real
// hardware and must be reported as an error by a faithful simulator.
type Flash interface {
	// BeginWrite enters programming mode for the page starting at
	// pageBase. Must be paired with EndWrite.
	BeginWrite(pageBase uint32) error

	// EndWrite leaves programming mode for the page starting at pageBase.
	EndWrite(pageBase uint32) error

	// ProgramWord programs one native word at addr. addr must be aligned
	// to the word width and must fall within a begin/end envelope for its
	// page.
	ProgramWord(addr uint32, value uint32) error

	// ProgramBytes programs len(src) bytes at addr, equivalent to a
	// sequence of ProgramWord calls. len(src) must be a multiple of the
	// word width.
	ProgramBytes(addr uint32, src []byte) error

	// ErasePage erases the whole page starting at pageBase back to the
	// all-ones erased state.
	ErasePage(pageBase uint32) error
}

// Reader is the read-side of a flash region. On real hardware flash is
// memory-mapped, so reads are plain pointer dereferences with no HAL call
// and no error path; this interface mirrors that — ReadAt never fails.
type Reader interface {
	// ReadAt copies len(dst) bytes starting at addr into dst.
	ReadAt(addr uint32, dst []byte)
}

// ReadWriter is the full surface a Block needs from one flash device: the
// write-side HAL contract plus memory-mapped reads.
type ReadWriter interface {
	Flash
	Reader
}
