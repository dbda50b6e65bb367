package container

import (
	"bytes"
	"encoding/binary"

	"github.com/arxlang/arx/internal/codegen"
	"github.com/arxlang/arx/internal/instr"
	"github.com/arxlang/arx/internal/linker"
)

// Fixed-width name field sizes used inside the CLASSES section (spec.md
// §3: class name ≤31 bytes, parameter-types signature ≤63 bytes, return
// type ≤31 bytes; method/field names aren't bounded explicitly, so this
// gives them the same headroom as a class name).
const (
	classNameWidth  = 32
	methodNameWidth = 32
	fieldNameWidth  = 32
	paramTypesWidth = 64
	returnTypeWidth = 32
)

const (
	classEntrySize  = classNameWidth + 8 + 8 + 4 + 4 + 8 + 4  // name,class_id,parent_id,field_count,method_count,instance_size,flags
	methodEntrySize = methodNameWidth + 8 + 4 + paramTypesWidth + returnTypeWidth + 8 + 4
	fieldEntrySize  = fieldNameWidth + 4 + 8
)

func putFixed(buf []byte, s string, width int) {
	b := []byte(s)
	if len(b) > width {
		b = b[:width]
	}
	copy(buf[:width], b)
	for i := len(b); i < width; i++ {
		buf[i] = 0
	}
}

func getFixed(buf []byte, width int) string {
	return string(bytes.TrimRight(buf[:width], "\x00"))
}

// encodeCode packs the instruction vector, 9 bytes each (spec.md §6:
// "1-byte opcode/level, 8-byte operand").
func encodeCode(instructions []instr.Instruction) []byte {
	buf := make([]byte, 0, len(instructions)*9)
	for _, ins := range instructions {
		var rec [9]byte
		rec[0] = ins.PackOpByte()
		binary.LittleEndian.PutUint64(rec[1:9], uint64(ins.Operand))
		buf = append(buf, rec[:]...)
	}
	return buf
}

// decodeCode is encodeCode's inverse.
func decodeCode(data []byte) ([]instr.Instruction, error) {
	if len(data)%9 != 0 {
		return nil, errLoadf("CODE section size %d not a multiple of 9", len(data))
	}
	out := make([]instr.Instruction, 0, len(data)/9)
	for i := 0; i < len(data); i += 9 {
		op, level := instr.UnpackOpByte(data[i])
		operand := int64(binary.LittleEndian.Uint64(data[i+1 : i+9]))
		out = append(out, instr.Instruction{Op: op, Level: level, Operand: operand})
	}
	return out, nil
}

// encodeStrings packs the literal table as count:u32 then (length:u32,
// bytes) per entry (spec.md §6 "implementer's choice as long as the
// reader matches").
func encodeStrings(strs []string) []byte {
	buf := make([]byte, 4, 4+len(strs)*8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(strs)))
	for _, s := range strs {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, s...)
	}
	return buf
}

func decodeStrings(data []byte) ([]string, error) {
	if len(data) < 4 {
		if len(data) == 0 {
			return nil, nil
		}
		return nil, errLoadf("STRINGS section truncated")
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	pos := 4
	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(data) {
			return nil, errLoadf("STRINGS section truncated at entry %d", i)
		}
		l := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+l > len(data) {
			return nil, errLoadf("STRINGS section truncated at entry %d body", i)
		}
		out = append(out, string(data[pos:pos+l]))
		pos += l
	}
	return out, nil
}

// encodeClasses packs class entries, then every method entry in
// class-order, then every field entry in class-order (spec.md §6).
func encodeClasses(classes []codegen.ClassManifest) []byte {
	var buf bytes.Buffer

	var classCount [4]byte
	binary.LittleEndian.PutUint32(classCount[:], uint32(len(classes)))
	buf.Write(classCount[:])

	for _, cls := range classes {
		rec := make([]byte, classEntrySize)
		off := 0
		putFixed(rec[off:off+classNameWidth], cls.Name, classNameWidth)
		off += classNameWidth
		binary.LittleEndian.PutUint64(rec[off:off+8], cls.ClassID)
		off += 8
		binary.LittleEndian.PutUint64(rec[off:off+8], cls.ParentClassID)
		off += 8
		binary.LittleEndian.PutUint32(rec[off:off+4], uint32(cls.FieldCount))
		off += 4
		binary.LittleEndian.PutUint32(rec[off:off+4], uint32(cls.MethodCount))
		off += 4
		binary.LittleEndian.PutUint64(rec[off:off+8], uint64(cls.InstanceSize))
		off += 8
		binary.LittleEndian.PutUint32(rec[off:off+4], cls.Flags)
		buf.Write(rec)
	}

	for _, cls := range classes {
		for _, m := range cls.Methods {
			rec := make([]byte, methodEntrySize)
			off := 0
			putFixed(rec[off:off+methodNameWidth], m.Name, methodNameWidth)
			off += methodNameWidth
			binary.LittleEndian.PutUint64(rec[off:off+8], m.MethodID)
			off += 8
			binary.LittleEndian.PutUint32(rec[off:off+4], uint32(m.ParamCount))
			off += 4
			putFixed(rec[off:off+paramTypesWidth], m.ParamTypes, paramTypesWidth)
			off += paramTypesWidth
			putFixed(rec[off:off+returnTypeWidth], m.ReturnType, returnTypeWidth)
			off += returnTypeWidth
			binary.LittleEndian.PutUint64(rec[off:off+8], uint64(m.Offset))
			off += 8
			binary.LittleEndian.PutUint32(rec[off:off+4], m.Flags)
			buf.Write(rec)
		}
	}

	for _, cls := range classes {
		for _, f := range cls.Fields {
			rec := make([]byte, fieldEntrySize)
			off := 0
			putFixed(rec[off:off+fieldNameWidth], f.Name, fieldNameWidth)
			off += fieldNameWidth
			binary.LittleEndian.PutUint32(rec[off:off+4], uint32(f.TypeID))
			off += 4
			binary.LittleEndian.PutUint64(rec[off:off+8], uint64(f.Offset))
			buf.Write(rec)
		}
	}

	return buf.Bytes()
}

func decodeClasses(data []byte) ([]codegen.ClassManifest, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < 4 {
		return nil, errLoadf("CLASSES section truncated")
	}
	classCount := int(binary.LittleEndian.Uint32(data[0:4]))
	pos := 4

	classes := make([]codegen.ClassManifest, classCount)
	for i := 0; i < classCount; i++ {
		if pos+classEntrySize > len(data) {
			return nil, errLoadf("CLASSES section truncated at class entry %d", i)
		}
		rec := data[pos : pos+classEntrySize]
		off := 0
		name := getFixed(rec[off:off+classNameWidth], classNameWidth)
		off += classNameWidth
		classID := binary.LittleEndian.Uint64(rec[off : off+8])
		off += 8
		parentID := binary.LittleEndian.Uint64(rec[off : off+8])
		off += 8
		fieldCount := binary.LittleEndian.Uint32(rec[off : off+4])
		off += 4
		methodCount := binary.LittleEndian.Uint32(rec[off : off+4])
		off += 4
		instanceSize := binary.LittleEndian.Uint64(rec[off : off+8])
		off += 8
		flags := binary.LittleEndian.Uint32(rec[off : off+4])

		classes[i] = codegen.ClassManifest{
			Name: name, ClassID: classID, ParentClassID: parentID,
			FieldCount: int(fieldCount), MethodCount: int(methodCount),
			InstanceSize: int64(instanceSize), Flags: flags,
		}
		pos += classEntrySize
	}

	for i := range classes {
		methods := make([]codegen.MethodManifest, classes[i].MethodCount)
		for j := range methods {
			if pos+methodEntrySize > len(data) {
				return nil, errLoadf("CLASSES section truncated at method entry (class %d, method %d)", i, j)
			}
			rec := data[pos : pos+methodEntrySize]
			off := 0
			name := getFixed(rec[off:off+methodNameWidth], methodNameWidth)
			off += methodNameWidth
			methodID := binary.LittleEndian.Uint64(rec[off : off+8])
			off += 8
			paramCount := binary.LittleEndian.Uint32(rec[off : off+4])
			off += 4
			paramTypes := getFixed(rec[off:off+paramTypesWidth], paramTypesWidth)
			off += paramTypesWidth
			returnType := getFixed(rec[off:off+returnTypeWidth], returnTypeWidth)
			off += returnTypeWidth
			offset := binary.LittleEndian.Uint64(rec[off : off+8])
			off += 8
			flags := binary.LittleEndian.Uint32(rec[off : off+4])

			methods[j] = codegen.MethodManifest{
				Name: name, MethodID: methodID, ParamCount: int(paramCount),
				ParamTypes: paramTypes, ReturnType: returnType,
				Offset: int64(offset), Flags: flags,
			}
			pos += methodEntrySize
		}
		classes[i].Methods = methods
	}

	for i := range classes {
		fields := make([]codegen.FieldManifest, classes[i].FieldCount)
		for j := range fields {
			if pos+fieldEntrySize > len(data) {
				return nil, errLoadf("CLASSES section truncated at field entry (class %d, field %d)", i, j)
			}
			rec := data[pos : pos+fieldEntrySize]
			off := 0
			name := getFixed(rec[off:off+fieldNameWidth], fieldNameWidth)
			off += fieldNameWidth
			typeID := binary.LittleEndian.Uint32(rec[off : off+4])
			off += 4
			offset := binary.LittleEndian.Uint64(rec[off : off+8])

			fields[j] = codegen.FieldManifest{Name: name, TypeID: int32(typeID), Offset: int64(offset)}
			pos += fieldEntrySize
		}
		classes[i].Fields = fields
	}

	return classes, nil
}

// Build encodes a linked module into its full .arxmod byte representation
// (spec.md §4.3 "Finalization").
func Build(appName string, linked *linker.Linked) ([]byte, error) {
	code := encodeCode(linked.Instructions)
	strs := encodeStrings(linked.Strings)
	classes := encodeClasses(linked.Classes)
	app := []byte(appName)

	type sec struct {
		name string
		data []byte
	}
	sections := []sec{
		{SectionCode, code},
		{SectionStrings, strs},
		{SectionClasses, classes},
		{SectionApp, app},
		{SectionSymbols, nil},
		{SectionDebug, nil},
	}

	tocOffset := uint64(HeaderSize)
	tocSize := uint64(len(sections) * TOCEntrySize)
	dataOffset := align16(int(tocOffset + tocSize))

	var data bytes.Buffer
	var toc []TOCEntry
	for _, s := range sections {
		padded := align16(len(s.data))
		entry := TOCEntry{Name: s.name, Offset: uint32(data.Len()), Size: uint32(len(s.data))}
		toc = append(toc, entry)
		data.Write(s.data)
		if pad := padded - len(s.data); pad > 0 {
			data.Write(make([]byte, pad))
		}
	}

	flags := FlagLibrary
	var entryPoint uint64
	if linked.Executable {
		flags = FlagExecutable
		entryPoint = uint64(linked.EntryPoint)
	}

	h := Header{
		Version:     1,
		Flags:       flags,
		HeaderSize:  HeaderSize,
		TOCOffset:   tocOffset,
		TOCSize:     tocSize,
		DataOffset:  uint64(dataOffset),
		DataSize:    uint64(data.Len()),
		AppNameLen:  uint64(len(app)),
		AppDataSize: 0,
		EntryPoint:  entryPoint,
	}

	headerBytes, _ := h.MarshalBinary()

	var out bytes.Buffer
	out.Write(headerBytes)
	for _, e := range toc {
		out.Write(e.marshal())
	}
	if pad := dataOffset - out.Len(); pad > 0 {
		out.Write(make([]byte, pad))
	}
	out.Write(data.Bytes())

	return out.Bytes(), nil
}
