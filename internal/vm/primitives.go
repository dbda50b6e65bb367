// Primitives grouped by category, one function per VM intrinsic — the
// same shape kristofer-smog/pkg/vm/primitives.go uses for its builtins,
// narrowed here to ARX's in-scope intrinsic surface: string ops, I/O, and
// object ops (spec.md §3, §4.4). Everything else OPR can select (arithmetic,
// comparison, logical, shifts) stays inline in opr.go since those aren't
// named as a distinct "primitive" surface in SPEC_FULL.md §C.3's grouping.
package vm

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/arxlang/arx/internal/arxerr"
)

// --- I/O primitives ---

// primOutString implements OUTSTRING (spec.md §4.4): prefer the
// STRING-object path, fall back to a literal-table id. Every call appends
// a trailing newline (SPEC_FULL.md §E.6), matching the writeln name codegen
// always lowers it from.
func (v *VM) primOutString() error {
	s, err := v.popString()
	if err != nil {
		return err
	}
	if _, werr := v.stdout.Write(s); werr != nil {
		return werr
	}
	_, werr := v.stdout.Write([]byte("\n"))
	return werr
}

func (v *VM) primOutInt() error {
	a, err := v.pop()
	if err != nil {
		return err
	}
	_, werr := fmt.Fprintf(v.stdout, "%d\n", a)
	return werr
}

func (v *VM) primOutChar() error {
	a, err := v.pop()
	if err != nil {
		return err
	}
	_, werr := v.stdout.Write([]byte{byte(a)})
	return werr
}

// primOut implements OUT: print a value whose string-ness codegen couldn't
// decide at compile time (a method-call or identifier result passed to
// writeln — spec.md has no type checker, so compileWriteln can't commit to
// OUTSTRING vs OUTINT for those). It reuses stringBytes's zone test: a
// value at or above ObjectHeapStart that's tagged as a STRING object is
// printed as one; everything else prints as a decimal integer. An int
// result at or above ObjectHeapStart still prints as text if the slot it
// names happens to hold the STRING tag.
func (v *VM) primOut() error {
	val, err := v.pop()
	if err != nil {
		return err
	}
	if val >= ObjectHeapStart {
		if s, ok := readString(v.memory, val); ok {
			if _, werr := v.stdout.Write(s); werr != nil {
				return werr
			}
			_, werr := v.stdout.Write([]byte("\n"))
			return werr
		}
	}
	_, werr := fmt.Fprintf(v.stdout, "%d\n", val)
	return werr
}

func (v *VM) primInInt() error {
	line, err := v.stdin.ReadString('\n')
	if err != nil && line == "" {
		return v.push(0)
	}
	n, _ := strconv.ParseInt(trimNewline(line), 10, 64)
	return v.push(n)
}

func (v *VM) primInChar() error {
	b, err := v.stdin.ReadByte()
	if err != nil {
		return v.push(0)
	}
	return v.push(int64(b))
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// --- string primitives ---

// stringBytes reads the byte contents of a string value, which (spec.md
// §E.7) is either a literal-table index (< ObjectHeapStart) or a heap
// STRING object's address (>= ObjectHeapStart) — the two representations
// OUTSTRING's spec.md §4.4 description already requires a reader to
// distinguish between.
func (v *VM) stringBytes(val int64) ([]byte, error) {
	if val >= ObjectHeapStart {
		if s, ok := readString(v.memory, val); ok {
			return s, nil
		}
		return nil, ErrMemoryAccess
	}
	if val < 0 || int(val) >= len(v.strings) {
		return nil, arxerr.Wrapf(arxerr.KindStringTableFull, ErrStringTableFull, "string literal id %d out of range", val)
	}
	return []byte(v.strings[val]), nil
}

func (v *VM) popString() ([]byte, error) {
	val, err := v.pop()
	if err != nil {
		return nil, err
	}
	return v.stringBytes(val)
}

// primStrConcat implements STR_CONCAT: "pop two string-object addresses
// (right then left)" (spec.md §4.4).
func (v *VM) primStrConcat() error {
	right, err := v.popString()
	if err != nil {
		return err
	}
	left, err := v.popString()
	if err != nil {
		return err
	}
	combined := append(append([]byte{}, left...), right...)
	addr, err := v.om.allocateString(v.memory, 0, combined, v.stepCount)
	if err != nil {
		return err
	}
	return v.push(addr)
}

func (v *VM) primStrLen() error {
	s, err := v.popString()
	if err != nil {
		return err
	}
	return v.push(int64(len(s)))
}

func (v *VM) primStrEq() error {
	right, err := v.popString()
	if err != nil {
		return err
	}
	left, err := v.popString()
	if err != nil {
		return err
	}
	if bytes.Equal(left, right) {
		return v.push(1)
	}
	return v.push(0)
}

func (v *VM) primStrCmp() error {
	right, err := v.popString()
	if err != nil {
		return err
	}
	left, err := v.popString()
	if err != nil {
		return err
	}
	return v.push(int64(bytes.Compare(left, right)))
}

func (v *VM) primIntToStr() error {
	n, err := v.pop()
	if err != nil {
		return err
	}
	addr, err := v.om.allocateString(v.memory, 0, []byte(strconv.FormatInt(n, 10)), v.stepCount)
	if err != nil {
		return err
	}
	return v.push(addr)
}

func (v *VM) primStrToInt() error {
	s, err := v.popString()
	if err != nil {
		return err
	}
	n, _ := strconv.ParseInt(string(s), 10, 64)
	return v.push(n)
}

// --- object primitives ---

func (v *VM) primObjNew() error {
	classID, err := v.pop()
	if err != nil {
		return err
	}
	entry, ok := v.reg.byClassID(uint64(classID))
	if !ok {
		return arxerr.Newf(arxerr.KindInvalidAddress, "OBJ_NEW: unknown class_id %d", classID)
	}
	obj, err := v.om.allocate(v.memory, uint64(classID), entry.manifest.InstanceSize, v.stepCount)
	if err != nil {
		return err
	}
	return v.push(obj.memoryAddress)
}

func (v *VM) primObjGetField() error {
	offset, err := v.pop()
	if err != nil {
		return err
	}
	addr, err := v.pop()
	if err != nil {
		return err
	}
	val, err := v.readMemory(addr + offset)
	if err != nil {
		return err
	}
	return v.push(val)
}

func (v *VM) primObjSetField() error {
	offset, err := v.pop()
	if err != nil {
		return err
	}
	val, err := v.pop()
	if err != nil {
		return err
	}
	addr, err := v.pop()
	if err != nil {
		return err
	}
	return v.writeMemory(addr+offset, val)
}

func (v *VM) primObjSelf() error {
	return v.push(v.currentSelf)
}
