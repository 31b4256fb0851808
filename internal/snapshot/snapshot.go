// Package snapshot exports a point-in-time copy of a Block's two pages as a
// single snappy-compressed blob, for test fixtures, bug reports, and the
// fvsctl dump subcommand.
//
// This is a host-side concern only: the on-flash record format never sees
// snappy, compression happens entirely outside the crash-safety-critical
// path. Grounded in the teacher's storage/pager.go use of
// klauspost/compress/snappy to compress record payloads before they hit
// disk; here the same library compresses an entire block image instead of
// one record.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
)

// magic identifies a snapshot blob; version allows the format to evolve.
const (
	magic   = "FVSSNAP1"
	version = 1
)

// Snapshot is the decoded form of an exported block image: both raw pages,
// plus the geometry needed to reopen them as a Block.
type Snapshot struct {
	PageSize uint32
	Page0    []byte
	Page1    []byte
}

// Export serializes a Snapshot to a snappy-compressed blob.
//
// Layout (before compression): magic, version, pageSize, len(page0), page0,
// len(page1), page1 — all integers little-endian uint32, matching the
// word.Width byte order used throughout this module.
func Export(s Snapshot) ([]byte, error) {
	var raw bytes.Buffer
	raw.WriteString(magic)
	if err := binary.Write(&raw, binary.LittleEndian, uint32(version)); err != nil {
		return nil, fmt.Errorf("snapshot: encoding header: %w", err)
	}
	if err := binary.Write(&raw, binary.LittleEndian, s.PageSize); err != nil {
		return nil, fmt.Errorf("snapshot: encoding page size: %w", err)
	}
	if err := writeChunk(&raw, s.Page0); err != nil {
		return nil, err
	}
	if err := writeChunk(&raw, s.Page1); err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw.Bytes()), nil
}

func writeChunk(buf *bytes.Buffer, chunk []byte) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(chunk))); err != nil {
		return fmt.Errorf("snapshot: encoding chunk length: %w", err)
	}
	buf.Write(chunk)
	return nil
}

// Import decodes a blob produced by Export.
func Import(blob []byte) (Snapshot, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: snappy decode: %w", err)
	}
	r := bytes.NewReader(raw)

	gotMagic := make([]byte, len(magic))
	if _, err := io.ReadFull(r, gotMagic); err != nil || string(gotMagic) != magic {
		return Snapshot{}, fmt.Errorf("snapshot: not a snapshot blob (bad magic)")
	}
	var v, pageSize uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: reading version: %w", err)
	}
	if v != version {
		return Snapshot{}, fmt.Errorf("snapshot: unsupported version %d", v)
	}
	if err := binary.Read(r, binary.LittleEndian, &pageSize); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: reading page size: %w", err)
	}
	page0, err := readChunk(r)
	if err != nil {
		return Snapshot{}, err
	}
	page1, err := readChunk(r)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{PageSize: pageSize, Page0: page0, Page1: page1}, nil
}

func readChunk(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("snapshot: reading chunk length: %w", err)
	}
	chunk := make([]byte, n)
	if _, err := io.ReadFull(r, chunk); err != nil {
		return nil, fmt.Errorf("snapshot: reading chunk: %w", err)
	}
	return chunk, nil
}
