package vm

import (
	"bytes"
	"testing"

	"github.com/arxlang/arx/internal/arxerr"
	"github.com/arxlang/arx/internal/codegen"
	"github.com/arxlang/arx/internal/instr"
)

func runProgram(t *testing.T, mod LoadedModule, stdout *bytes.Buffer) *VM {
	t.Helper()
	v := New(WithStdout(stdout))
	v.Load(mod)
	if err := v.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return v
}

func TestArithmeticAndOutInt(t *testing.T) {
	var out bytes.Buffer
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.LIT, 2),
			instr.New(instr.LIT, 3),
			instr.Opr(instr.ADD),
			instr.Opr(instr.OUTINT),
			instr.Opr(instr.RET),
		},
		Executable: true,
	}
	v := runProgram(t, mod, &out)
	if out.String() != "5\n" {
		t.Errorf("got stdout %q, want %q", out.String(), "5\n")
	}
	if v.State() != Halted {
		t.Errorf("got state %v, want Halted", v.State())
	}
}

func TestDivisionByZeroFaults(t *testing.T) {
	var out bytes.Buffer
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.LIT, 1),
			instr.New(instr.LIT, 0),
			instr.Opr(instr.DIV),
		},
		Executable: true,
	}
	v := New(WithStdout(&out))
	v.Load(mod)
	err := v.Run()
	if err == nil {
		t.Fatal("got nil error, want a division-by-zero fault")
	}
	if arxerr.KindOf(err) != arxerr.KindDivisionByZero {
		t.Errorf("got error kind %v, want KindDivisionByZero", arxerr.KindOf(err))
	}
	if v.State() != Faulted {
		t.Errorf("got state %v, want Faulted", v.State())
	}
}

func TestStackUnderflowFaults(t *testing.T) {
	mod := LoadedModule{
		Instructions: []instr.Instruction{instr.Opr(instr.ADD)},
		Executable:   true,
	}
	v := New()
	v.Load(mod)
	err := v.Run()
	if arxerr.KindOf(err) != arxerr.KindStackUnderflow {
		t.Fatalf("got error kind %v, want KindStackUnderflow", arxerr.KindOf(err))
	}
}

func TestHaltOpcodeStopsExecution(t *testing.T) {
	var out bytes.Buffer
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.HALT, 0),
			instr.New(instr.LIT, 99),
			instr.Opr(instr.OUTINT),
		},
		Executable: true,
	}
	v := runProgram(t, mod, &out)
	if out.Len() != 0 {
		t.Errorf("got stdout %q, want empty (HALT should stop before the LIT/OUTINT)", out.String())
	}
	if v.PC() != 0 {
		t.Errorf("got PC %d, want 0 (HALT does not advance pc)", v.PC())
	}
}

func TestLibraryModuleSkipsExecution(t *testing.T) {
	var out bytes.Buffer
	mod := LoadedModule{
		Instructions: []instr.Instruction{instr.Opr(instr.ADD)}, // would fault if executed
		Executable:   false,
	}
	v := runProgram(t, mod, &out)
	if out.String() != "library module loaded\n" {
		t.Errorf("got stdout %q, want the library banner", out.String())
	}
	if v.State() != Halted {
		t.Errorf("got state %v, want Halted", v.State())
	}
}

func TestStepAdvancesOneInstructionAtATime(t *testing.T) {
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.LIT, 1),
			instr.New(instr.LIT, 2),
			instr.Opr(instr.ADD),
		},
		Executable: true,
	}
	v := New()
	v.Load(mod)
	if err := v.Step(); err != nil {
		t.Fatalf("Step 1: %v", err)
	}
	if v.PC() != 1 {
		t.Fatalf("got PC %d after one step, want 1", v.PC())
	}
	if err := v.Step(); err != nil {
		t.Fatalf("Step 2: %v", err)
	}
	if err := v.Step(); err != nil {
		t.Fatalf("Step 3: %v", err)
	}
	if got := v.StackSnapshot(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("got stack %v after ADD, want [3]", got)
	}
}

func TestStringLiteralOutput(t *testing.T) {
	var out bytes.Buffer
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.LIT, 0),
			instr.Opr(instr.OUTSTRING),
			instr.Opr(instr.RET),
		},
		Strings:    []string{"hello"},
		Executable: true,
	}
	v := runProgram(t, mod, &out)
	if out.String() != "hello\n" {
		t.Errorf("got stdout %q, want %q", out.String(), "hello\n")
	}
}

// TestHeapStringConcatAndOutput exercises the dual representation of a
// string value: INT_TO_STR allocates a heap STRING object (address >=
// ObjectHeapStart), distinct from a literal-table index.
func TestHeapStringConcatAndOutput(t *testing.T) {
	var out bytes.Buffer
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.LIT, 0), // literal "count: "
			instr.New(instr.LIT, 7),
			instr.Opr(instr.INT_TO_STR), // heap string "7"
			instr.Opr(instr.STR_CONCAT), // pops right (heap) then left (literal)
			instr.Opr(instr.OUTSTRING),
			instr.Opr(instr.RET),
		},
		Strings:    []string{"count: "},
		Executable: true,
	}
	v := runProgram(t, mod, &out)
	if out.String() != "count: 7\n" {
		t.Errorf("got stdout %q, want %q", out.String(), "count: 7\n")
	}
}

// TestObjectCallMethodWithInheritance builds a two-class module by hand
// (Person with a GetAge function, Student extending it with no methods of
// its own) and checks that calling GetAge on a Student instance dispatches
// by walking the parent_class_id chain.
func TestObjectCallMethodWithInheritance(t *testing.T) {
	var out bytes.Buffer
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.LIT, 200),         // 0: Student class_id
			instr.Opr(instr.OBJ_NEW),           // 1: -> addr
			instr.NewAt(instr.STO, 0, 0),       // 2: mem[1000+0] = addr
			instr.NewAt(instr.LOD, 0, 0),       // 3: addr
			instr.New(instr.LIT, 42),           // 4: value
			instr.New(instr.LIT, 0),            // 5: field offset
			instr.Opr(instr.OBJ_SET_FIELD),      // 6: mem[addr+0] = 42
			instr.NewAt(instr.LOD, 0, 0),       // 7: receiver
			instr.New(instr.LIT, 0),            // 8: selector id ("GetAge")
			instr.New(instr.LIT, 0),            // 9: arg count
			instr.Opr(instr.OBJ_CALL_METHOD),    // 10: dispatch, jumps to offset 13
			instr.Opr(instr.OUTINT),             // 11: print the return value
			instr.Opr(instr.RET),                // 12: top-level return -> Halted
			instr.Opr(instr.OBJ_SELF),           // 13: GetAge body starts here
			instr.New(instr.LIT, 0),            // 14: age field offset
			instr.Opr(instr.OBJ_GET_FIELD),       // 15
			instr.Opr(instr.RET),                // 16: function return
		},
		Strings: []string{"GetAge"},
		Classes: []codegen.ClassManifest{
			{
				Name: "Person", ClassID: 100, ParentClassID: 0,
				FieldCount: 1, MethodCount: 1, InstanceSize: 8,
				Fields:  []codegen.FieldManifest{{Name: "age", Offset: 0}},
				Methods: []codegen.MethodManifest{{Name: "GetAge", ReturnType: "int", Offset: 13}},
			},
			{
				Name: "Student", ClassID: 200, ParentClassID: 100,
				FieldCount: 1, MethodCount: 0, InstanceSize: 8,
				Fields: []codegen.FieldManifest{{Name: "age", Offset: 0}},
			},
		},
		Executable: true,
	}
	v := runProgram(t, mod, &out)
	if out.String() != "42\n" {
		t.Errorf("got stdout %q, want %q (inherited GetAge dispatch)", out.String(), "42\n")
	}
}

func TestObjCallMethodRejectsUnknownSelector(t *testing.T) {
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.LIT, 100),
			instr.Opr(instr.OBJ_NEW),
			instr.New(instr.LIT, 0), // selector "Nope"
			instr.New(instr.LIT, 0),
			instr.Opr(instr.OBJ_CALL_METHOD),
		},
		Strings: []string{"Nope"},
		Classes: []codegen.ClassManifest{
			{Name: "Person", ClassID: 100, FieldCount: 0, InstanceSize: 0},
		},
		Executable: true,
	}
	v := New()
	v.Load(mod)
	err := v.Run()
	if err == nil {
		t.Fatal("got nil error, want rejection of an unresolved selector")
	}
	if arxerr.KindOf(err) != arxerr.KindInvalidAddress {
		t.Errorf("got error kind %v, want KindInvalidAddress", arxerr.KindOf(err))
	}
}

// TestGarbageCollectIsExplicitOnly checks that sweep only runs when
// GarbageCollect is called, never implicitly, and that the object table
// never shrinks (spec.md's append-only object table).
func TestGarbageCollectIsExplicitOnly(t *testing.T) {
	v := New()
	v.Load(LoadedModule{Executable: false})

	obj, err := v.om.allocate(v.memory, 1, 4, 0)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	addr := obj.memoryAddress
	v.memory[addr] = 123

	if v.ObjectCount() != 1 {
		t.Fatalf("got ObjectCount %d, want 1", v.ObjectCount())
	}

	v.ReleaseObject(addr)
	// Not yet collected: memory untouched, table entry still present.
	if v.memory[addr] != 123 {
		t.Fatalf("got memory[%d]=%d, want unchanged before an explicit sweep", addr, v.memory[addr])
	}

	freed := v.GarbageCollect()
	if freed != 4 {
		t.Fatalf("got %d bytes freed, want 4", freed)
	}
	if v.memory[addr] != 0 {
		t.Fatalf("got memory[%d]=%d after sweep, want 0", addr, v.memory[addr])
	}
	if v.ObjectCount() != 1 {
		t.Fatalf("got ObjectCount %d after sweep, want 1 (table is append-only, never shrinks)", v.ObjectCount())
	}
}

func TestReferenceObjectPreventsCollection(t *testing.T) {
	v := New()
	v.Load(LoadedModule{Executable: false})

	obj, err := v.om.allocate(v.memory, 1, 2, 0)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	addr := obj.memoryAddress
	v.ReferenceObject(addr) // refcount now 2
	v.ReleaseObject(addr)   // back to 1, still alive

	freed := v.GarbageCollect()
	if freed != 0 {
		t.Fatalf("got %d bytes freed, want 0 (object still referenced)", freed)
	}
}

// TestNewWithArgsThenMethodCallPreservesLocalsAndPrintsString builds, by
// hand, the exact shape of `var p := new Person('A', 30); writeln(p.getName())`:
// a constructor call whose arguments are written into the same level-0
// window compileNew's temp slot lives in, immediately followed by reloading
// that temp and dispatching a second method call. Before the call-frame
// local window was saved/restored (objCallMethod/ret), init's arguments
// clobbered the temp slot and p ended up holding the constructor's second
// argument instead of the object address. The name field is promoted to a
// heap string (STR_CONCAT with "") so the final print also exercises OPR
// OUT's runtime zone check rather than the compile-time OUTSTRING/OUTINT
// choice, which can't know a method call's result type.
func TestNewWithArgsThenMethodCallPreservesLocalsAndPrintsString(t *testing.T) {
	var out bytes.Buffer
	const (
		personClassID = 300
		nameOffset    = 0
		ageOffset     = 8
	)
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.LIT, personClassID), // 0
			instr.Opr(instr.OBJ_NEW),             // 1 -> addr
			instr.NewAt(instr.STO, 0, 0),          // 2: temp = addr
			instr.NewAt(instr.LOD, 0, 0),          // 3: receiver
			instr.New(instr.LIT, 0),               // 4: name arg ("A")
			instr.New(instr.LIT, 30),              // 5: age arg
			instr.New(instr.LIT, 1),               // 6: selector "init"
			instr.New(instr.LIT, 2),               // 7: arg count
			instr.Opr(instr.OBJ_CALL_METHOD),       // 8: init(...) -> jumps to 15
			instr.NewAt(instr.LOD, 0, 0),           // 9: reload temp (must still be addr)
			instr.New(instr.LIT, 2),                // 10: selector "getName"
			instr.New(instr.LIT, 0),                // 11: arg count
			instr.Opr(instr.OBJ_CALL_METHOD),        // 12: getName() -> jumps to 26
			instr.Opr(instr.OUT),                    // 13: print the (ambiguous) result
			instr.Opr(instr.RET),                    // 14: top-level return -> Halted

			// init(name, age): offset 15
			instr.Opr(instr.OBJ_SELF),             // 15
			instr.NewAt(instr.LOD, 0, 0),          // 16: name arg
			instr.New(instr.LIT, 3),                // 17: "" literal
			instr.Opr(instr.STR_CONCAT),             // 18: promote to heap string
			instr.New(instr.LIT, nameOffset),        // 19
			instr.Opr(instr.OBJ_SET_FIELD),          // 20
			instr.Opr(instr.OBJ_SELF),               // 21
			instr.NewAt(instr.LOD, 0, 1),            // 22: age arg
			instr.New(instr.LIT, ageOffset),         // 23
			instr.Opr(instr.OBJ_SET_FIELD),          // 24
			instr.Opr(instr.RET),                    // 25: procedure return

			// getName(): offset 26
			instr.Opr(instr.OBJ_SELF),              // 26
			instr.New(instr.LIT, nameOffset),        // 27
			instr.Opr(instr.OBJ_GET_FIELD),          // 28
			instr.Opr(instr.RET),                    // 29: function return
		},
		Strings: []string{"A", "init", "getName", ""},
		Classes: []codegen.ClassManifest{
			{
				Name: "Person", ClassID: personClassID, ParentClassID: 0,
				FieldCount: 2, MethodCount: 2, InstanceSize: 16,
				Fields: []codegen.FieldManifest{
					{Name: "name", Offset: nameOffset},
					{Name: "age", Offset: ageOffset},
				},
				Methods: []codegen.MethodManifest{
					{Name: "init", Offset: 15},
					{Name: "getName", ReturnType: "string", Offset: 26},
				},
			},
		},
		Executable: true,
	}
	v := runProgram(t, mod, &out)
	if out.String() != "A\n" {
		t.Errorf("got stdout %q, want %q (constructor temp must survive the init call, and getName's heap-string result must print as text, not an address)", out.String(), "A\n")
	}
}

// TestOutPrintsIntForNonHeapValue checks OPR OUT's other branch: a value
// below ObjectHeapStart prints as a decimal integer.
func TestOutPrintsIntForNonHeapValue(t *testing.T) {
	var out bytes.Buffer
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.LIT, 7),
			instr.Opr(instr.OUT),
			instr.Opr(instr.RET),
		},
		Executable: true,
	}
	v := runProgram(t, mod, &out)
	if out.String() != "7\n" {
		t.Errorf("got stdout %q, want %q", out.String(), "7\n")
	}
}

// TestOutPrintsStringForHeapValue checks OPR OUT's heap-string branch
// directly, independent of the larger end-to-end scenario above.
func TestOutPrintsStringForHeapValue(t *testing.T) {
	var out bytes.Buffer
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.LIT, 5),
			instr.Opr(instr.INT_TO_STR), // heap string "5"
			instr.Opr(instr.OUT),
			instr.Opr(instr.RET),
		},
		Executable: true,
	}
	v := runProgram(t, mod, &out)
	if out.String() != "5\n" {
		t.Errorf("got stdout %q, want %q", out.String(), "5\n")
	}
}

// TestObjectFieldsResolvesInheritedField checks that ObjectFields (the
// -dump introspection path) reports a field declared on a superclass for
// an instance of the subclass, via registry.resolveField.
func TestObjectFieldsResolvesInheritedField(t *testing.T) {
	v := New()
	v.Load(LoadedModule{
		Executable: false,
		Classes: []codegen.ClassManifest{
			{
				Name: "Person", ClassID: 100, FieldCount: 1, InstanceSize: 8,
				Fields: []codegen.FieldManifest{{Name: "age", Offset: 0}},
			},
			{
				Name: "Student", ClassID: 200, ParentClassID: 100, FieldCount: 1, InstanceSize: 8,
				Fields: []codegen.FieldManifest{{Name: "age", Offset: 0}},
			},
		},
	})
	obj, err := v.om.allocate(v.memory, 200, 8, 0)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	v.memory[obj.memoryAddress] = 19

	fields, ok := v.ObjectFields(obj.memoryAddress)
	if !ok {
		t.Fatalf("ObjectFields: got !ok, want a resolvable Student instance")
	}
	if len(fields) != 1 || fields[0].Name != "age" || fields[0].Value != 19 {
		t.Fatalf("got %+v, want a single age=19 field", fields)
	}
	addrs := v.LiveObjectAddresses()
	if len(addrs) != 1 || addrs[0] != obj.memoryAddress {
		t.Fatalf("got %v, want [%d]", addrs, obj.memoryAddress)
	}
}

func TestRunawayProgramAbortsOnStepGuard(t *testing.T) {
	mod := LoadedModule{
		Instructions: []instr.Instruction{
			instr.New(instr.JMP, 0), // infinite self-loop
		},
		Executable: true,
	}
	v := New()
	v.maxSteps = 50
	v.Load(mod)
	err := v.Run()
	if err == nil {
		t.Fatal("got nil error, want the runaway-step guard to trip")
	}
	if arxerr.KindOf(err) != arxerr.KindInvalidInstruction {
		t.Errorf("got error kind %v, want KindInvalidInstruction", arxerr.KindOf(err))
	}
}
