// Package container implements the `.arxmod` module file format: an
// 80-byte header, a table of contents, and six named, 16-byte-aligned
// sections (spec.md §4.3, §6).
package container

import (
	"bytes"
	"encoding/binary"

	"github.com/arxlang/arx/internal/arxerr"
)

// Magic is the fixed 8-byte file signature.
var Magic = [8]byte{'A', 'R', 'X', 'M', 'O', 'D', 0, 0}

// Flag bits for Header.Flags (spec.md §6: "exactly one set").
const (
	FlagLibrary    uint32 = 1 << 0
	FlagExecutable uint32 = 1 << 1
)

// HeaderSize is the fixed, versioned header size spec.md §6 pins at 80.
const HeaderSize = 80

// TOCEntrySize is the fixed per-entry size spec.md §3 pins at 32. To fit
// a 16-byte name alongside offset/size/flags/reserved in exactly 32 bytes,
// offset and size are persisted as u32 rather than u64 (see SPEC_FULL.md
// §E.12): a single module's data region is capped at 4 GiB, which a
// bytecode module never approaches.
const TOCEntrySize = 32

// Section names, each padded/truncated to 16 bytes in the TOC.
const (
	SectionCode    = "CODE"
	SectionStrings = "STRINGS"
	SectionClasses = "CLASSES"
	SectionApp     = "APP"
	SectionSymbols = "SYMBOLS"
	SectionDebug   = "DEBUG"
)

// Header is the fixed 80-byte module header (spec.md §6).
type Header struct {
	Version     uint32
	Flags       uint32
	HeaderSize  uint64
	TOCOffset   uint64
	TOCSize     uint64
	DataOffset  uint64
	DataSize    uint64
	AppNameLen  uint64
	AppDataSize uint64
	EntryPoint  uint64
}

// MarshalBinary packs the header into its 80-byte wire form.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	binary.LittleEndian.PutUint64(buf[16:24], h.HeaderSize)
	binary.LittleEndian.PutUint64(buf[24:32], h.TOCOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.TOCSize)
	binary.LittleEndian.PutUint64(buf[40:48], h.DataOffset)
	binary.LittleEndian.PutUint64(buf[48:56], h.DataSize)
	binary.LittleEndian.PutUint64(buf[56:64], h.AppNameLen)
	binary.LittleEndian.PutUint64(buf[64:72], h.AppDataSize)
	binary.LittleEndian.PutUint64(buf[72:80], h.EntryPoint)
	return buf, nil
}

// UnmarshalBinary validates magic/version/header-size and populates h from
// an 80-byte buffer. Per spec.md §4.3, "the reader validates magic,
// version, and header size before trusting the TOC; if any fails, the
// whole file is rejected" — this is the single gate every other read path
// depends on.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderSize {
		return arxerr.Newf(arxerr.KindLoadError, "header truncated: %d bytes, want %d", len(buf), HeaderSize)
	}
	if !bytes.Equal(buf[0:8], Magic[:]) {
		return arxerr.Newf(arxerr.KindLoadError, "bad magic %q", buf[0:8])
	}
	h.Version = binary.LittleEndian.Uint32(buf[8:12])
	if h.Version != 1 {
		return arxerr.Newf(arxerr.KindLoadError, "unsupported version %d", h.Version)
	}
	h.Flags = binary.LittleEndian.Uint32(buf[12:16])
	h.HeaderSize = binary.LittleEndian.Uint64(buf[16:24])
	if h.HeaderSize != HeaderSize {
		return arxerr.Newf(arxerr.KindLoadError, "oversized/undersized header: %d", h.HeaderSize)
	}
	h.TOCOffset = binary.LittleEndian.Uint64(buf[24:32])
	h.TOCSize = binary.LittleEndian.Uint64(buf[32:40])
	h.DataOffset = binary.LittleEndian.Uint64(buf[40:48])
	h.DataSize = binary.LittleEndian.Uint64(buf[48:56])
	h.AppNameLen = binary.LittleEndian.Uint64(buf[56:64])
	h.AppDataSize = binary.LittleEndian.Uint64(buf[64:72])
	h.EntryPoint = binary.LittleEndian.Uint64(buf[72:80])
	return nil
}

// TOCEntry is one 32-byte table-of-contents record (spec.md §3).
type TOCEntry struct {
	Name     string // truncated/padded to 16 bytes on write
	Offset   uint32 // relative to Header.DataOffset
	Size     uint32
	Flags    uint32
	Reserved uint32
}

func (e TOCEntry) marshal() []byte {
	buf := make([]byte, TOCEntrySize)
	name := []byte(e.Name)
	if len(name) > 16 {
		name = name[:16]
	}
	copy(buf[0:16], name)
	binary.LittleEndian.PutUint32(buf[16:20], e.Offset)
	binary.LittleEndian.PutUint32(buf[20:24], e.Size)
	binary.LittleEndian.PutUint32(buf[24:28], e.Flags)
	binary.LittleEndian.PutUint32(buf[28:32], e.Reserved)
	return buf
}

func unmarshalTOCEntry(buf []byte) TOCEntry {
	name := bytes.TrimRight(buf[0:16], "\x00")
	return TOCEntry{
		Name:     string(name),
		Offset:   binary.LittleEndian.Uint32(buf[16:20]),
		Size:     binary.LittleEndian.Uint32(buf[20:24]),
		Flags:    binary.LittleEndian.Uint32(buf[24:28]),
		Reserved: binary.LittleEndian.Uint32(buf[28:32]),
	}
}

// align16 rounds n up to the next multiple of 16, the section alignment
// spec.md §6 requires.
func align16(n int) int {
	if rem := n % 16; rem != 0 {
		n += 16 - rem
	}
	return n
}
