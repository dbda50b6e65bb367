// Package vm implements the ARX stack-based bytecode interpreter: the
// final stage of the toolchain, executing a loaded module's instruction
// vector against a flat memory array, a call-frame stack, an object
// memory manager, and a class registry (spec.md §4.4).
//
// Execution is strictly sequential and single-threaded (spec.md §5): one
// VM runs one module on the goroutine that calls Run. There is no shared
// mutable state between VM instances.
package vm

import (
	"bufio"
	"io"

	"github.com/arxlang/arx/internal/arxerr"
	"github.com/arxlang/arx/internal/arxlog"
	"github.com/arxlang/arx/internal/codegen"
	"github.com/arxlang/arx/internal/instr"
)

// Tuning constants (spec.md §4.4: "implementation quality-of-service
// bounds, not part of language semantics").
const (
	DefaultStackCapacity  = 1024
	DefaultMemorySize     = 1 << 20
	DefaultMaxSteps       = 5000
	DefaultMaxStuckSteps  = 100
	DefaultMaxCallDepth   = 50
)

// LocalWindowSize is the width of the level-0 local-variable window
// (spec.md §3: "the variable region 1,000..9,999"; §4.4: "level 0 ->
// address 1000"). Every object method and procedure runs at level 0, so
// every call frame saves and restores this window around the callee's
// activation: without it, a callee's arguments and locals would land on
// the exact addresses the caller's own locals occupy, silently clobbering
// them (see call/objCallMethod/ret).
const LocalWindowSize = 1000

// State is the VM's execution state machine (spec.md §4.4 "State machine").
type State int

const (
	Ready State = iota
	Running
	Halted
	Faulted
)

func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Halted:
		return "Halted"
	case Faulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// frame is one call-stack entry (spec.md §3 "call-stack of frames each
// holding (return pc, stack top snapshot, lexical level)").
type frame struct {
	returnPC    int
	stackTop    int
	level       byte
	isFunction  bool
	self        int64   // caller's OBJ_SELF receiver, restored on RET
	savedLocals []int64 // caller's level-0 local window, restored on RET
}

// VM holds all execution state for one module run.
type VM struct {
	instructions []instr.Instruction
	strings      []string
	reg          *registry
	om           *objectManager

	stack []int64
	sp    int

	memory []int64

	frames      []frame
	pc          int
	currentSelf int64

	state State

	appName    string
	entryPoint int64
	library    bool

	stdout io.Writer
	stdin  *bufio.Reader

	log *arxlog.Logger

	stepCount  int64
	lastPC     int
	stuckSteps int

	maxSteps     int64
	maxStuck     int
	maxCallDepth int
}

// New builds a VM ready to load a module. stdout/stdin default to nil-safe
// discards/empty readers if not overridden via Options.
func New(opts ...Option) *VM {
	v := &VM{
		stack:        make([]int64, DefaultStackCapacity),
		memory:       make([]int64, DefaultMemorySize),
		reg:          newRegistry(),
		om:           newObjectManager(),
		log:          arxlog.Nop(),
		maxSteps:     DefaultMaxSteps,
		maxStuck:     DefaultMaxStuckSteps,
		maxCallDepth: DefaultMaxCallDepth,
		state:        Ready,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.stdout == nil {
		v.stdout = io.Discard
	}
	if v.stdin == nil {
		v.stdin = bufio.NewReader(io.LimitReader(nil, 0))
	}
	return v
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithStdout routes program output (OUTSTRING/OUTINT/OUTCHAR) to w.
func WithStdout(w io.Writer) Option {
	return func(v *VM) { v.stdout = w }
}

// WithStdin routes ININT/INCHAR reads from r.
func WithStdin(r io.Reader) Option {
	return func(v *VM) { v.stdin = bufio.NewReader(r) }
}

// WithLogger attaches a logger for debug/trace output.
func WithLogger(log *arxlog.Logger) Option {
	return func(v *VM) { v.log = log }
}

// LoadedModule is the shape internal/loader hands the VM: everything the
// loader read out of an .arxmod file's sections.
type LoadedModule struct {
	AppName      string
	Instructions []instr.Instruction
	Strings      []string
	Classes      []codegen.ClassManifest
	EntryPoint   int64
	Executable   bool
}

// Load populates VM tables from a LoadedModule (spec.md §4.5: "the loader
// ... only populates VM tables and the module header"). It does not
// execute anything; pc is set to EntryPoint and state moves to Ready.
func (v *VM) Load(mod LoadedModule) {
	v.instructions = mod.Instructions
	v.strings = mod.Strings
	v.reg = newRegistry()
	v.reg.load(mod.Classes)
	v.appName = mod.AppName
	v.entryPoint = mod.EntryPoint
	v.library = !mod.Executable
	v.pc = int(mod.EntryPoint)
	v.state = Ready
}

// State reports the current VM state machine value.
func (v *VM) State() State { return v.state }

// PC reports the current program counter, for -dump/-step tooling.
func (v *VM) PC() int { return v.pc }

// StackSnapshot returns a copy of the live portion of the data stack, for
// -dump tooling.
func (v *VM) StackSnapshot() []int64 {
	out := make([]int64, v.sp)
	copy(out, v.stack[:v.sp])
	return out
}

// ObjectCount reports the number of entries in the object table (live or
// dead), for -dump tooling.
func (v *VM) ObjectCount() int { return len(v.om.table) }

// LiveObjectAddresses reports the memory address of every object table
// entry still marked alive, for -dump tooling.
func (v *VM) LiveObjectAddresses() []int64 {
	out := make([]int64, 0, len(v.om.table))
	for _, obj := range v.om.table {
		if obj.isAlive {
			out = append(out, obj.memoryAddress)
		}
	}
	return out
}

// FieldValue is one named field slot read back out of a live object, for
// -dump tooling.
type FieldValue struct {
	Name   string
	Offset int64
	Value  int64
}

// ObjectFields reports, by name, every field listed in the manifest of the
// object's class at addr (inherited fields included, since codegen flattens
// them into it), reading each offset through the class registry's
// inheritance-aware field lookup (registry.resolveField). Returns false if
// addr isn't a live object or its class isn't registered.
func (v *VM) ObjectFields(addr int64) ([]FieldValue, bool) {
	obj, ok := v.om.lookup(addr)
	if !ok {
		return nil, false
	}
	entry, ok := v.reg.byClassID(obj.classID)
	if !ok {
		return nil, false
	}
	out := make([]FieldValue, 0, len(entry.manifest.Fields))
	for _, f := range entry.manifest.Fields {
		fm, ok := v.reg.resolveField(obj.classID, f.Name)
		if !ok {
			continue
		}
		val, err := v.readMemory(obj.memoryAddress + fm.Offset)
		if err != nil {
			continue
		}
		out = append(out, FieldValue{Name: fm.Name, Offset: fm.Offset, Value: val})
	}
	return out, true
}

// ReferenceObject and ReleaseObject are vm_reference_object/
// vm_release_object (spec.md §4.4 "Garbage collection"): no ARX opcode
// drives these directly (the in-scope OBJ_* set has no explicit
// inc/dec-refcount instruction), so they exist for host tooling and tests
// that want to exercise GC without a full bytecode program.
func (v *VM) ReferenceObject(addr int64) { v.om.reference(addr) }
func (v *VM) ReleaseObject(addr int64)   { v.om.release(addr) }

// GarbageCollect runs vm_garbage_collect: an explicit sweep, never
// triggered automatically (spec.md §4.4).
func (v *VM) GarbageCollect() int64 { return v.om.sweep(v.memory) }

// Run executes from the current pc until HALT, normal fall-off, or a
// fault (spec.md §4.4 "Contract"). It returns the terminal arxerr.Error
// on fault, nil on a clean halt.
func (v *VM) Run() error {
	if v.library {
		// spec.md S6: a library module prints a fixed message and exits 0
		// without executing instructions.
		v.state = Halted
		if v.stdout != nil {
			_, _ = io.WriteString(v.stdout, "library module loaded\n")
		}
		return nil
	}

	v.state = Running
	for v.pc < len(v.instructions) {
		if err := v.step(); err != nil {
			v.state = Faulted
			return err
		}
		if v.state == Halted {
			return nil
		}
		if guardErr := v.checkGuards(); guardErr != nil {
			v.state = Faulted
			return guardErr
		}
	}
	v.state = Halted
	return nil
}

// Step executes exactly one instruction, for -step tooling. It is exported
// separately from the unexported step so callers outside the package
// (cmd/arxvm's -step handler) can drive execution one line at a time.
func (v *VM) Step() error {
	if v.pc >= len(v.instructions) {
		v.state = Halted
		return nil
	}
	if v.state == Ready {
		v.state = Running
	}
	if err := v.step(); err != nil {
		v.state = Faulted
		return err
	}
	if v.state != Halted {
		if guardErr := v.checkGuards(); guardErr != nil {
			v.state = Faulted
			return guardErr
		}
	}
	return nil
}

func (v *VM) checkGuards() error {
	v.stepCount++
	if v.stepCount > v.maxSteps {
		return arxerr.Newf(arxerr.KindInvalidInstruction, "exceeded %d instruction steps, aborting runaway program", v.maxSteps)
	}
	if v.pc == v.lastPC {
		v.stuckSteps++
		if v.stuckSteps >= v.maxStuck {
			return arxerr.Newf(arxerr.KindInvalidInstruction, "pc stuck at %d for %d steps, aborting", v.pc, v.stuckSteps)
		}
	} else {
		v.stuckSteps = 0
	}
	v.lastPC = v.pc
	return nil
}

// step decodes and dispatches the instruction at pc, advancing pc per
// spec.md §4.4's rule: +1 for everything except JMP/JPC/HALT and the
// jump side of OBJ_CALL_METHOD/CAL/RET, which set pc themselves.
func (v *VM) step() error {
	ins := v.instructions[v.pc]
	v.log.Tracef("pc=%d %s (sp=%d)", v.pc, ins.String(), v.sp)

	switch ins.Op {
	case instr.LIT:
		if err := v.push(ins.Operand); err != nil {
			return err
		}
		v.pc++

	case instr.OPR:
		sub := instr.Sub(ins.Operand)
		switch sub {
		case instr.OBJ_CALL_METHOD:
			if err := v.objCallMethod(); err != nil {
				return err
			}
		case instr.RET:
			isFunction := false
			if len(v.frames) > 0 {
				isFunction = v.frames[len(v.frames)-1].isFunction
			} else if v.state != Halted {
				// A RET with no open frame means the entry method itself
				// returned: treat it as a clean halt rather than a
				// call-stack underflow fault (spec.md §4.4 "Running ->
				// Halted on ... normal fall-off").
				v.state = Halted
				return nil
			}
			if err := v.ret(isFunction); err != nil {
				return err
			}
		default:
			if err := v.opr(sub); err != nil {
				return err
			}
			v.pc++
		}

	case instr.LOD:
		addr := instr.BaseAddress(ins.Level) + ins.Operand
		val, err := v.readMemory(addr)
		if err != nil {
			return err
		}
		if err := v.push(val); err != nil {
			return err
		}
		v.pc++

	case instr.STO:
		val, err := v.pop()
		if err != nil {
			return err
		}
		addr := instr.BaseAddress(ins.Level) + ins.Operand
		if err := v.writeMemory(addr, val); err != nil {
			return err
		}
		v.pc++

	case instr.CAL:
		if err := v.call(int(ins.Operand), ins.Level, false); err != nil {
			return err
		}

	case instr.INT:
		// Grows the current frame's local region; ARX's flat per-level
		// memory regions don't need bookkeeping here (unlike a
		// contiguous-stack VM), so this is a deliberate no-op kept for ISA
		// completeness (spec.md §3 lists INT as a defined opcode).
		v.pc++

	case instr.JMP:
		v.pc = int(ins.Operand)

	case instr.JPC:
		cond, err := v.pop()
		if err != nil {
			return err
		}
		if cond == 0 {
			v.pc = int(ins.Operand)
		} else {
			v.pc++
		}

	case instr.LODX:
		base, err := v.pop()
		if err != nil {
			return err
		}
		val, err := v.readMemory(base + ins.Operand)
		if err != nil {
			return err
		}
		if err := v.push(val); err != nil {
			return err
		}
		v.pc++

	case instr.STOX:
		base, err := v.pop()
		if err != nil {
			return err
		}
		val, err := v.pop()
		if err != nil {
			return err
		}
		if err := v.writeMemory(base+ins.Operand, val); err != nil {
			return err
		}
		v.pc++

	case instr.HALT:
		v.state = Halted

	default:
		return arxerr.Newf(arxerr.KindInvalidInstruction, "unknown opcode %d at pc=%d", ins.Op, v.pc)
	}
	return nil
}

func (v *VM) push(val int64) error {
	if v.sp >= len(v.stack) {
		return ErrStackOverflow
	}
	v.stack[v.sp] = val
	v.sp++
	return nil
}

func (v *VM) pop() (int64, error) {
	if v.sp <= 0 {
		return 0, ErrStackUnderflow
	}
	v.sp--
	return v.stack[v.sp], nil
}

func (v *VM) peek() (int64, error) {
	if v.sp <= 0 {
		return 0, ErrStackUnderflow
	}
	return v.stack[v.sp-1], nil
}

func (v *VM) readMemory(addr int64) (int64, error) {
	if addr < 0 || addr >= int64(len(v.memory)) {
		return 0, ErrMemoryAccess
	}
	return v.memory[addr], nil
}

func (v *VM) writeMemory(addr, val int64) error {
	if addr < 0 || addr >= int64(len(v.memory)) {
		return ErrMemoryAccess
	}
	v.memory[addr] = val
	return nil
}

// snapshotLocalWindow copies the live level-0 local window out of memory so
// a callee can reuse those addresses without disturbing the caller's
// activation; restoreLocalWindow puts it back on return.
func (v *VM) snapshotLocalWindow() []int64 {
	base := instr.BaseAddress(0)
	saved := make([]int64, LocalWindowSize)
	copy(saved, v.memory[base:base+LocalWindowSize])
	return saved
}

func (v *VM) restoreLocalWindow(saved []int64) {
	if saved == nil {
		return
	}
	base := instr.BaseAddress(0)
	copy(v.memory[base:base+LocalWindowSize], saved)
}

// call pushes a return frame and jumps to address (spec.md §4.4 "Call
// frames"). isFunction carries whether the callee should have its return
// value preserved across the frame pop. The caller's level-0 local window
// is snapshotted before the callee can write into it (see frame.savedLocals).
func (v *VM) call(address int, level byte, isFunction bool) error {
	if len(v.frames) >= v.maxCallDepth {
		return ErrCallStackOverflow
	}
	v.frames = append(v.frames, frame{
		returnPC:    v.pc + 1,
		stackTop:    v.sp,
		level:       level,
		isFunction:  isFunction,
		self:        v.currentSelf,
		savedLocals: v.snapshotLocalWindow(),
	})
	v.pc = address
	return nil
}

// ret pops the current frame, restoring pc, OBJ_SELF, the caller's local
// window, and (for a function) the return value (spec.md §4.4 "OPR RET").
func (v *VM) ret(isFunction bool) error {
	if len(v.frames) == 0 {
		return ErrCallStackUnderflow
	}
	top := v.frames[len(v.frames)-1]
	v.frames = v.frames[:len(v.frames)-1]

	var retVal int64
	haveRetVal := false
	if isFunction {
		val, err := v.pop()
		if err == nil {
			retVal = val
			haveRetVal = true
		}
	}

	v.sp = top.stackTop
	v.pc = top.returnPC
	v.currentSelf = top.self
	v.restoreLocalWindow(top.savedLocals)

	if haveRetVal {
		if err := v.push(retVal); err != nil {
			return err
		}
	}
	return nil
}

// objCallMethod implements spec.md §4.4's OBJ_CALL_METHOD. Codegen (spec.md
// §E.5) pushes, bottom to top: receiver address, each argument, the
// selector's interned-string id, and the argument count — so this pops in
// the reverse of that order. Resolution walks the receiver's class's
// parent_class_id chain by method name (registry.resolveMethod); argument
// values are copied into the level-0 local region (spec.md §4.4:
// "Arguments already on the stack become the callee's locals under the
// slot numbering assigned during code generation"). Every method runs at
// level 0, so that region is shared by every activation; the caller's
// window is snapshotted into the frame before the callee's arguments
// overwrite it, and put back by ret.
func (v *VM) objCallMethod() error {
	argCount, err := v.pop()
	if err != nil {
		return err
	}
	selID, err := v.pop()
	if err != nil {
		return err
	}
	args := make([]int64, argCount)
	for i := int(argCount) - 1; i >= 0; i-- {
		args[i], err = v.pop()
		if err != nil {
			return err
		}
	}
	receiver, err := v.pop()
	if err != nil {
		return err
	}

	if selID < 0 || int(selID) >= len(v.strings) {
		return arxerr.Newf(arxerr.KindInvalidAddress, "OBJ_CALL_METHOD: selector id %d out of range", selID)
	}
	name := v.strings[selID]

	obj, ok := v.om.lookup(receiver)
	if !ok {
		return arxerr.Newf(arxerr.KindInvalidAddress, "OBJ_CALL_METHOD: %s sent to non-object address %d", name, receiver)
	}
	method, _, ok := v.reg.resolveMethod(obj.classID, name)
	if !ok {
		return arxerr.Newf(arxerr.KindInvalidAddress, "OBJ_CALL_METHOD: no method %q on class_id %d", name, obj.classID)
	}

	if len(v.frames) >= v.maxCallDepth {
		return ErrCallStackOverflow
	}
	v.frames = append(v.frames, frame{
		returnPC:    v.pc + 1,
		stackTop:    v.sp,
		level:       0,
		isFunction:  method.IsFunction(),
		self:        v.currentSelf,
		savedLocals: v.snapshotLocalWindow(),
	})
	v.currentSelf = receiver
	for i, a := range args {
		if err := v.writeMemory(instr.BaseAddress(0)+int64(i), a); err != nil {
			return err
		}
	}
	v.pc = int(method.Offset)
	return nil
}
