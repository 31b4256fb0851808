// Package simhal implements a simulated flash device for tests and the
// fvsctl demo CLI — there being no real MCU flash to drive in this
// environment, the way the teacher's storage.MemFile stands in for a real
// file for Pager's unit tests.
//
// Flash enforces the same bit-transition rule real NOR flash imposes
// (program may only drive bits 1->0) and can be told to fail the Nth
// mutating call to simulate a power cut, which is how this module's tests
// exercise spec §8's crash-safety property P4.
package simhal

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/grissiom/fvs/word"
)

// ErrNotWriting is returned by ProgramWord/ProgramBytes when called outside
// any open BeginWrite/EndWrite envelope.
var ErrNotWriting = errors.New("simhal: program called outside a begin/end envelope")

// ErrBadTransition is returned when a program call would require a bit to
// go from 0 to 1, which is impossible without an erase on real flash.
var ErrBadTransition = errors.New("simhal: program requires an erased (0->1) bit transition")

// ErrInjected is returned by the call fault injection has armed to fail.
var ErrInjected = errors.New("simhal: injected fault")

// Flash is an in-memory simulated flash device over one contiguous byte
// arena, sized to hold every page a Block addresses within it.
type Flash struct {
	mem      []byte
	width    word.Width
	pageSize uint32
	writing  map[uint32]bool

	failAfter int // 0 disables injection; N fails the N-th mutating call
	calls     int
}

// New creates a simulated flash arena of size bytes, initialized to the
// erased state (all 0xFF), for native words of width w. pageSize is the
// physical page size ErasePage erases — every page a Block addresses
// within this arena must share it, same as the spec's fixed-geometry
// Block assumes.
func New(size uint32, pageSize uint32, w word.Width) *Flash {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &Flash{mem: mem, width: w, pageSize: pageSize, writing: make(map[uint32]bool)}
}

// NewFromImage wraps an existing byte slice as the flash arena, e.g. one
// loaded from a saved fixture (see SaveTo/LoadFrom).
func NewFromImage(mem []byte, pageSize uint32, w word.Width) *Flash {
	return &Flash{mem: mem, width: w, pageSize: pageSize, writing: make(map[uint32]bool)}
}

// FailAfter arms fault injection: the N-th mutating call (ProgramWord,
// ProgramBytes, or ErasePage) from now on fails with ErrInjected instead of
// applying, simulating a power cut mid-operation. N==0 disarms it.
func (f *Flash) FailAfter(n int) {
	f.failAfter = n
	f.calls = 0
}

// Calls returns how many mutating calls have been made since the flash was
// created or fault injection was last armed.
func (f *Flash) Calls() int {
	return f.calls
}

// Image returns a copy of the raw backing arena, suitable for
// snapshotting or handing to NewFromImage to simulate a reboot.
func (f *Flash) Image() []byte {
	out := make([]byte, len(f.mem))
	copy(out, f.mem)
	return out
}

func (f *Flash) tick() error {
	f.calls++
	if f.failAfter > 0 && f.calls == f.failAfter {
		return ErrInjected
	}
	return nil
}

// BeginWrite opens a programming envelope for pageBase.
func (f *Flash) BeginWrite(pageBase uint32) error {
	f.writing[pageBase] = true
	return nil
}

// EndWrite closes the programming envelope for pageBase.
func (f *Flash) EndWrite(pageBase uint32) error {
	delete(f.writing, pageBase)
	return nil
}

func (f *Flash) anyOpenEnvelope() bool {
	return len(f.writing) > 0
}

// ProgramWord programs one native word at addr.
func (f *Flash) ProgramWord(addr uint32, value uint32) error {
	buf := make([]byte, f.width.Size())
	f.width.Put(buf, value)
	return f.program(addr, buf)
}

// ProgramBytes programs len(src) bytes at addr, equivalent to a sequence of
// ProgramWord calls.
func (f *Flash) ProgramBytes(addr uint32, src []byte) error {
	if len(src)%f.width.Size() != 0 {
		return fmt.Errorf("simhal: program length %d is not a multiple of the word width %d", len(src), f.width.Size())
	}
	return f.program(addr, src)
}

func (f *Flash) program(addr uint32, src []byte) error {
	if !f.anyOpenEnvelope() {
		return ErrNotWriting
	}
	if int(addr)+len(src) > len(f.mem) {
		return fmt.Errorf("simhal: program at %#x len %d out of bounds", addr, len(src))
	}
	for i, nb := range src {
		ob := f.mem[int(addr)+i]
		if nb&^ob != 0 {
			return fmt.Errorf("%w: at %#x byte %d: %#02x -> %#02x", ErrBadTransition, addr, i, ob, nb)
		}
	}
	if err := f.tick(); err != nil {
		return err
	}
	copy(f.mem[int(addr):int(addr)+len(src)], src)
	return nil
}

// ErasePage erases the page starting at pageBase back to 0xFF.
func (f *Flash) ErasePage(pageBase uint32) error {
	if int(pageBase)+int(f.pageSize) > len(f.mem) {
		return fmt.Errorf("simhal: erase at %#x len %d out of bounds", pageBase, f.pageSize)
	}
	if err := f.tick(); err != nil {
		return err
	}
	for i := int(pageBase); i < int(pageBase)+int(f.pageSize); i++ {
		f.mem[i] = 0xFF
	}
	return nil
}

// ReadAt copies len(dst) bytes starting at addr into dst (memory-mapped
// read side, never fails).
func (f *Flash) ReadAt(addr uint32, dst []byte) {
	copy(dst, f.mem[int(addr):int(addr)+len(dst)])
}

// SaveTo atomically persists the flash arena to path, so a fixture can be
// reloaded by a later process to simulate a reboot (spec §8 scenario 6).
// The write is atomic (rename-into-place via natefinch/atomic) so a crash
// mid-save can never corrupt the fixture itself — the crash this module
// simulates happens inside the arena's own bytes, not in the file holding
// them.
func (f *Flash) SaveTo(path string) error {
	return atomic.WriteFile(path, bytes.NewReader(f.mem))
}

// LoadFrom reloads a fixture written by SaveTo, reconstructing a Flash with
// any in-flight begin/write envelopes closed — a reboot drops them, just as
// a real power cycle would.
func LoadFrom(path string, pageSize uint32, w word.Width) (*Flash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("simhal: loading fixture %s: %w", path, err)
	}
	return NewFromImage(data, pageSize, w), nil
}
