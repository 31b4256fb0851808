// Package word implements the fixed-width native-word arithmetic that the
// on-flash record layout is built from (spec §3: "native word W").
//
// A real MCU's flash is programmed in units of one native word, typically
// 16 or 32 bits wide. Rather than parameterising the whole module on a Go
// generic type, a value's width travels alongside it as a small Width enum
// and every native word is carried as a plain uint32, masked to that width —
// the same pattern the teacher uses for its fixed-size page header fields
// (storage/page.go), just with a runtime-selectable field width instead of a
// compile-time one.
package word

import "encoding/binary"

// Width is the byte width of one native word.
type Width int

const (
	Width16 Width = 2
	Width32 Width = 4
)

// Size returns sizeof(W) in bytes.
func (w Width) Size() int {
	return int(w)
}

// Valid reports whether w is a supported native word width.
func (w Width) Valid() bool {
	return w == Width16 || w == Width32
}

// Erased returns the erased-flash value of a word of this width: all bits
// set, i.e. ~0 truncated to w bytes.
func (w Width) Erased() uint32 {
	switch w {
	case Width16:
		return 0xFFFF
	case Width32:
		return 0xFFFFFFFF
	default:
		panic("word: invalid width")
	}
}

// Read decodes one native word from the start of b.
func (w Width) Read(b []byte) uint32 {
	switch w {
	case Width16:
		return uint32(binary.LittleEndian.Uint16(b))
	case Width32:
		return binary.LittleEndian.Uint32(b)
	default:
		panic("word: invalid width")
	}
}

// Put encodes v as one native word at the start of b.
func (w Width) Put(b []byte, v uint32) {
	switch w {
	case Width16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case Width32:
		binary.LittleEndian.PutUint32(b, v)
	default:
		panic("word: invalid width")
	}
}
