package codegen

import (
	"github.com/arxlang/arx/internal/ast"
	"github.com/arxlang/arx/internal/instr"
)

// methodPos is the method-position table entry spec.md §3/§9 describes:
// a per-context mapping from method name to its start/end instruction
// index, local to the class's own instruction buffer until merge.
type methodPos struct {
	name  string
	start int
	end   int
}

// classCtx is the per-class code-generation context spec.md §4.1
// describes: "its own instruction buffer, label table, local-variable
// table, method-position table." One is created per ast.Class and
// consumed at merge time; nothing in it survives merge except the copies
// taken by Compile's merge loop.
type classCtx struct {
	class *ast.Class

	instructions []instr.Instruction

	// Label table: label id -> bound instruction index within this
	// context's own instructions. create_label/set_label/resolve_labels
	// (spec.md §4.1 "Control flow").
	nextLabel int
	labels    map[int]int

	// Local-variable table for the method currently being compiled.
	// Reset at the start of every method (spec.md §3: "a local name ->
	// slot-address map for method locals, monotonically increasing from
	// 0").
	locals     map[string]int
	localCount int

	// Field offsets for this class, keyed by name, already accounting for
	// inherited fields (own fields start at the superclass's total field
	// count). fieldOffsetBase is the inherited-field count.
	fields          map[string]fieldInfo
	fieldOrder      []string
	fieldOffsetBase int

	methodPositions []methodPos

	currentMethod *ast.Method
	// currentMethodReturns is the return type of the method being
	// compiled. Nothing reads it: how RET is framed is decided at run time
	// from the callee's manifest.
	currentMethodReturns string
}

type fieldInfo struct {
	offset int64
	typeID int32
}

func newClassCtx(class *ast.Class, fieldOffsetBase int, inherited []FieldManifest) *classCtx {
	ctx := &classCtx{
		class:           class,
		labels:          make(map[int]int),
		fields:          make(map[string]fieldInfo),
		fieldOffsetBase: fieldOffsetBase,
	}
	// Seed with inherited fields first so a subclass method can resolve a
	// superclass field by name (spec.md §4.1 identifier resolution walks
	// "this class's field table", which must include inherited fields).
	// fieldOrder only tracks this class's own declarations: compileClass
	// builds the persisted manifest as inherited-then-own itself.
	for _, f := range inherited {
		ctx.fields[f.Name] = fieldInfo{offset: f.Offset, typeID: f.TypeID}
	}
	for i, f := range class.Fields {
		off := int64(fieldOffsetBase+i) * 8
		ctx.fields[f.Name] = fieldInfo{offset: off, typeID: TypeID(f.Type)}
		ctx.fieldOrder = append(ctx.fieldOrder, f.Name)
	}
	return ctx
}

func (c *classCtx) emit(i instr.Instruction) int {
	c.instructions = append(c.instructions, i)
	return len(c.instructions) - 1
}

func (c *classCtx) pc() int { return len(c.instructions) }

// createLabel allocates a new label id (spec.md §4.1 "create_label
// returns an id").
func (c *classCtx) createLabel() int {
	id := c.nextLabel
	c.nextLabel++
	return id
}

// setLabel binds (upserts) a label id to an instruction index (spec.md
// §4.1 "set_label(id, pc) records the binding (upsert)").
func (c *classCtx) setLabel(id, pc int) {
	c.labels[id] = pc
}

// resolveLabels runs as a final pass over this context's own instruction
// buffer, rewriting every JMP/JPC operand from label-id to bound
// instruction index (spec.md §4.1 "resolve_labels").
func (c *classCtx) resolveLabels() {
	for i := range c.instructions {
		ins := &c.instructions[i]
		if ins.Op == instr.JMP || ins.Op == instr.JPC {
			if target, ok := c.labels[int(ins.Operand)]; ok {
				ins.Operand = int64(target)
			}
		}
	}
}

// startMethodScope resets the local-variable table for a new method body
// (spec.md §3: locals are per-method, monotonically increasing from 0).
func (c *classCtx) startMethodScope(m *ast.Method) {
	c.locals = make(map[string]int)
	c.localCount = 0
	c.currentMethod = m
	c.currentMethodReturns = m.ReturnType
	for _, p := range m.Parameters {
		c.declareLocal(p.Name)
	}
}

// declareLocal allocates a new local slot if name hasn't been seen in the
// current method scope yet, returning its slot index either way.
func (c *classCtx) declareLocal(name string) int {
	if slot, ok := c.locals[name]; ok {
		return slot
	}
	slot := c.localCount
	c.locals[name] = slot
	c.localCount++
	return slot
}

// lookupLocal reports whether name is a declared local/parameter in the
// current method scope.
func (c *classCtx) lookupLocal(name string) (int, bool) {
	slot, ok := c.locals[name]
	return slot, ok
}

// allocTempSlot allocates a compiler-internal scratch local, used e.g. to
// hold a freshly-`new`'d object's address across its constructor call.
func (c *classCtx) allocTempSlot() int {
	slot := c.localCount
	c.localCount++
	return slot
}

// lookupField reports a field's offset/type if name is declared (directly
// or inherited) on this class.
func (c *classCtx) lookupField(name string) (fieldInfo, bool) {
	fi, ok := c.fields[name]
	return fi, ok
}
