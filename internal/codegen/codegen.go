// Package codegen walks an ARX AST and produces a linear instruction
// stream, an interned string table, and a class manifest — the code
// generator's back end described in spec.md §4.1.
//
// Each class is compiled in its own classCtx (instruction buffer, label
// table, local-variable table, method-position table) and merged into the
// module-level buffer with every jump target and method-position entry
// shifted by the class's base offset (spec.md §4.1 "Per-class
// separation"). String literals are interned once, at the module level,
// so they're shared across classes.
package codegen

import (
	"fmt"

	"github.com/arxlang/arx/internal/arxlog"
	"github.com/arxlang/arx/internal/ast"
	"github.com/arxlang/arx/internal/instr"
)

// Module is the code generator's output: the (instructions, strings,
// class_manifest) triple spec.md §4.1 names as the compiler's contract.
type Module struct {
	Name         string
	Instructions []instr.Instruction
	Strings      []string
	Classes      []ClassManifest
	Executable   bool // true iff an App class with a Main procedure exists
}

// Warning is a recoverable CodegenWarning (spec.md §4.1 "Failure
// semantics": "invalid ASTs surface as warnings and best-effort
// emission").
type Warning struct {
	Message string
}

// Compiler holds module-wide state shared across all per-class contexts:
// the string table and the manifests of classes already compiled (needed
// so a subclass can find its superclass's field layout).
type Compiler struct {
	moduleName string
	log        *arxlog.Logger

	strings     []string
	stringIndex map[string]int

	classManifests map[string]ClassManifest // by name, for inheritance lookups
	warnings       []Warning
}

// New creates a Compiler for one module compilation.
func New(moduleName string, log *arxlog.Logger) *Compiler {
	if log == nil {
		log = arxlog.Nop()
	}
	return &Compiler{
		moduleName:     moduleName,
		log:            log,
		stringIndex:    make(map[string]int),
		classManifests: make(map[string]ClassManifest),
	}
}

// Warnings returns accumulated CodegenWarnings after Compile.
func (c *Compiler) Warnings() []Warning { return c.warnings }

func (c *Compiler) warnf(format string, args ...interface{}) {
	c.warnings = append(c.warnings, Warning{Message: fmt.Sprintf(format, args...)})
}

// intern deduplicates a string literal into the module's string table,
// returning its stable id (spec.md §3 "String literal table").
func (c *Compiler) intern(s string) int {
	if id, ok := c.stringIndex[s]; ok {
		return id
	}
	id := len(c.strings)
	c.strings = append(c.strings, s)
	c.stringIndex[s] = id
	return id
}

// Compile compiles every class in mod, in source order, merging each into
// the module-level buffer as it goes.
func (c *Compiler) Compile(mod *ast.Module) (*Module, error) {
	out := &Module{Name: c.moduleName}

	for _, class := range mod.Classes {
		c.log.Debugf("codegen: compiling class %s", class.Name)
		manifest, classInstrs, positions := c.compileClass(class)

		base := len(out.Instructions)
		for _, ins := range classInstrs {
			if ins.Op == instr.JMP || ins.Op == instr.JPC {
				ins.Operand += int64(base)
			}
			out.Instructions = append(out.Instructions, ins)
		}
		for i := range manifest.Methods {
			for _, p := range positions {
				if p.name == manifest.Methods[i].Name {
					manifest.Methods[i].Offset = int64(p.start + base)
				}
			}
		}

		c.classManifests[class.Name] = manifest
		out.Classes = append(out.Classes, manifest)
	}

	if main := findMain(out.Classes); main != nil {
		out.Executable = true
	}

	c.log.Debugf("codegen: done, %d instructions, %d strings, %d classes",
		len(out.Instructions), len(c.strings), len(out.Classes))

	out.Strings = c.strings
	return out, nil
}

// findMain looks for class "App" with a method named "Main" (its
// parameters and return type are not checked)
// (spec.md §3 invariant 6, §8 S6/entry-point-correctness).
func findMain(classes []ClassManifest) *MethodManifest {
	for _, cls := range classes {
		if cls.Name != "App" {
			continue
		}
		for i := range cls.Methods {
			if cls.Methods[i].Name == "Main" {
				return &cls.Methods[i]
			}
		}
	}
	return nil
}

// compileClass compiles one class into its own context and returns the
// manifest (with method Offset left as a *local* index — Compile's merge
// loop fixes it up to the module-global offset), the class's own
// instruction buffer, and its method-position table.
func (c *Compiler) compileClass(class *ast.Class) (ClassManifest, []instr.Instruction, []methodPos) {
	inheritedFieldCount := 0
	var parentID uint64
	var inheritedFields []FieldManifest
	if class.SuperClass != "" {
		if parent, ok := c.classManifests[class.SuperClass]; ok {
			inheritedFieldCount = parent.FieldCount
			parentID = parent.ClassID
			inheritedFields = parent.Fields
		} else {
			c.warnf("class %s extends unknown class %s", class.Name, class.SuperClass)
		}
	}

	ctx := newClassCtx(class, inheritedFieldCount, inheritedFields)

	manifest := ClassManifest{
		Name:          class.Name,
		ClassID:       ClassID(c.moduleName, class.Name),
		ParentClassID: parentID,
		FieldCount:    len(class.Fields) + inheritedFieldCount,
	}
	manifest.InstanceSize = manifest.FieldCount_i64() * 8
	// Fields carries the class's full, resolved field layout (inherited
	// then own) so FieldCount always matches len(Fields): the container
	// format persists exactly FieldCount field records per class (spec.md
	// §6), and a subclass's own fields alone wouldn't round-trip.
	manifest.Fields = append(manifest.Fields, inheritedFields...)
	for _, name := range ctx.fieldOrder {
		fi := ctx.fields[name]
		manifest.Fields = append(manifest.Fields, FieldManifest{Name: name, TypeID: fi.typeID, Offset: fi.offset})
	}

	for _, m := range class.Methods {
		start := ctx.pc()
		ctx.startMethodScope(m)
		c.compileBlock(ctx, m.Body)
		lastIsReturn := len(m.Body.Statements) > 0
		if lastIsReturn {
			_, lastIsReturn = m.Body.Statements[len(m.Body.Statements)-1].(*ast.ReturnStmt)
		}
		if !lastIsReturn {
			ctx.emit(instr.Opr(instr.RET))
		}
		end := ctx.pc()
		ctx.methodPositions = append(ctx.methodPositions, methodPos{name: m.Name, start: start, end: end})

		paramTypes := m.ParamTypesSignature()
		mm := MethodManifest{
			Name:       m.Name,
			MethodID:   MethodID(c.moduleName, class.Name, m.Name, paramTypes, m.ReturnType),
			ParamCount: ParamCount(paramTypes),
			ParamTypes: paramTypes,
			ReturnType: m.ReturnType,
			Offset:     int64(start), // local index; Compile() rewrites to global
		}
		manifest.Methods = append(manifest.Methods, mm)
	}
	manifest.MethodCount = len(manifest.Methods)

	ctx.resolveLabels()
	return manifest, ctx.instructions, ctx.methodPositions
}

// FieldCount_i64 exists only to keep the InstanceSize computation above
// readable without a stray int64() cast inline.
func (m ClassManifest) FieldCount_i64() int64 { return int64(m.FieldCount) }
