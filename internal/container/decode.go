package container

import (
	"github.com/arxlang/arx/internal/arxerr"
	"github.com/arxlang/arx/internal/codegen"
	"github.com/arxlang/arx/internal/instr"
)

func errLoadf(format string, args ...interface{}) error {
	return arxerr.Newf(arxerr.KindLoadError, format, args...)
}

// Module is the fully decoded contents of an .arxmod file — everything
// the loader needs to hydrate VM tables (spec.md §4.5), read back out of
// the byte format Build wrote.
type Module struct {
	Header       Header
	TOC          []TOCEntry
	Instructions []instr.Instruction
	Strings      []string
	Classes      []codegen.ClassManifest
	AppName      string
}

// Read parses and validates an .arxmod byte buffer, returning either a
// fully-populated Module or an error — never a partially-populated one
// (spec.md §4.3: "if any fails, the whole file is rejected (no partial
// loads)").
func Read(data []byte) (*Module, error) {
	var h Header
	if err := h.UnmarshalBinary(data); err != nil {
		return nil, err
	}

	if h.TOCOffset+h.TOCSize > uint64(len(data)) {
		return nil, errLoadf("TOC out of bounds: offset %d size %d file len %d", h.TOCOffset, h.TOCSize, len(data))
	}
	if h.TOCSize%TOCEntrySize != 0 {
		return nil, errLoadf("TOC size %d not a multiple of %d", h.TOCSize, TOCEntrySize)
	}
	if h.DataOffset+h.DataSize > uint64(len(data)) {
		return nil, errLoadf("data region out of bounds: offset %d size %d file len %d", h.DataOffset, h.DataSize, len(data))
	}

	tocBuf := data[h.TOCOffset : h.TOCOffset+h.TOCSize]
	n := int(h.TOCSize) / TOCEntrySize
	toc := make([]TOCEntry, n)
	sections := make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		entry := unmarshalTOCEntry(tocBuf[i*TOCEntrySize : (i+1)*TOCEntrySize])
		toc[i] = entry

		start := uint64(entry.Offset)
		end := start + uint64(entry.Size)
		if start > h.DataSize || end > h.DataSize {
			return nil, errLoadf("section %q out of bounds: offset %d size %d data size %d",
				entry.Name, entry.Offset, entry.Size, h.DataSize)
		}
		absStart := h.DataOffset + start
		absEnd := h.DataOffset + end
		sections[entry.Name] = data[absStart:absEnd]
	}

	instructions, err := decodeCode(sections[SectionCode])
	if err != nil {
		return nil, err
	}
	strs, err := decodeStrings(sections[SectionStrings])
	if err != nil {
		return nil, err
	}
	classes, err := decodeClasses(sections[SectionClasses])
	if err != nil {
		return nil, err
	}

	appBytes := sections[SectionApp]
	appName := ""
	if int(h.AppNameLen) <= len(appBytes) {
		appName = string(appBytes[:h.AppNameLen])
	}

	for _, ins := range instructions {
		if (ins.Op == instr.JMP || ins.Op == instr.JPC) && (ins.Operand < 0 || int(ins.Operand) > len(instructions)) {
			return nil, errLoadf("jump target %d out of range (CODE has %d instructions)", ins.Operand, len(instructions))
		}
	}
	// LIT's operand doubles as a string-table index only when the literal
	// is a string constant (spec.md §3); a plain integer literal operand
	// routinely exceeds len(strs), so this can't be validated here without
	// the type info codegen already consumed — left to the VM's runtime
	// bounds check (spec.md §7 StringTableFull/MemoryAccess) instead.

	return &Module{
		Header:       h,
		TOC:          toc,
		Instructions: instructions,
		Strings:      strs,
		Classes:      classes,
		AppName:      appName,
	}, nil
}
