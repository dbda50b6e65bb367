package codegen

import (
	"github.com/arxlang/arx/internal/ast"
	"github.com/arxlang/arx/internal/instr"
)

// compileExpression compiles expr so that, on return, its value is the new
// top of stack (spec.md §4.1 "AST walk" expression cases).
func (c *Compiler) compileExpression(ctx *classCtx, expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.Literal:
		c.compileLiteral(ctx, e)
	case *ast.Identifier:
		c.compileIdentifier(ctx, e)
	case *ast.Assignment:
		c.compileAssignment(ctx, e)
		c.reloadAssignmentTarget(ctx, e)
	case *ast.BinaryOp:
		c.compileBinaryOp(ctx, e)
	case *ast.UnaryOp:
		c.compileUnaryOp(ctx, e)
	case *ast.Call:
		c.compileCall(ctx, e)
	case *ast.FieldAccess:
		c.compileFieldRead(ctx, e)
	case *ast.NewExpr:
		c.compileNew(ctx, e)
	default:
		c.warnf("unhandled expression node %T", expr)
	}
}

func (c *Compiler) compileLiteral(ctx *classCtx, l *ast.Literal) {
	switch l.Kind {
	case ast.LiteralInt:
		ctx.emit(instr.New(instr.LIT, l.Int))
	case ast.LiteralBool:
		v := int64(0)
		if l.Bool {
			v = 1
		}
		ctx.emit(instr.New(instr.LIT, v))
	case ast.LiteralString:
		id := c.intern(l.Str)
		ctx.emit(instr.New(instr.LIT, int64(id)))
	default:
		c.warnf("unhandled literal kind %d", l.Kind)
	}
}

// compileIdentifier implements spec.md §4.1's identifier resolution order:
// local/parameter first, then this class's field table (OBJ_SELF +
// OBJ_GET_FIELD), and finally a read-miss default of treating the name as
// a field anyway.
func (c *Compiler) compileIdentifier(ctx *classCtx, id *ast.Identifier) {
	if slot, ok := ctx.lookupLocal(id.Name); ok {
		ctx.emit(instr.NewAt(instr.LOD, 0, int64(slot)))
		return
	}
	offset := c.resolveFieldOffset(ctx, id.Name)
	ctx.emit(instr.Opr(instr.OBJ_SELF))
	ctx.emit(instr.New(instr.LIT, offset))
	ctx.emit(instr.Opr(instr.OBJ_GET_FIELD))
}

// reloadAssignmentTarget leaves an assignment's stored value on top of the
// stack, for the "assignment is also an expression" case (spec.md §4.1's
// ast.Assignment doc comment). The ISA has no DUP, so this re-reads rather
// than keeping a copy around.
func (c *Compiler) reloadAssignmentTarget(ctx *classCtx, a *ast.Assignment) {
	if a.Field != nil {
		c.compileExpression(ctx, a.Field)
		return
	}
	if slot, ok := ctx.lookupLocal(a.Name); ok {
		ctx.emit(instr.NewAt(instr.LOD, 0, int64(slot)))
		return
	}
	c.compileIdentifier(ctx, &ast.Identifier{Name: a.Name})
}

func (c *Compiler) compileFieldRead(ctx *classCtx, f *ast.FieldAccess) {
	c.compileExpression(ctx, f.Receiver)
	offset := c.resolveFieldOffset(ctx, f.Field)
	ctx.emit(instr.New(instr.LIT, offset))
	ctx.emit(instr.Opr(instr.OBJ_GET_FIELD))
}

// binarySub maps a surface operator to its OPR sub-opcode, for every
// operator that isn't the overloaded "+".
var binarySub = map[string]instr.Sub{
	"-":   instr.SUB,
	"*":   instr.MUL,
	"/":   instr.DIV,
	"%":   instr.MOD,
	"^":   instr.POW,
	"==":  instr.EQ,
	"!=":  instr.NEQ,
	"<":   instr.LESS,
	"<=":  instr.LEQ,
	">":   instr.GREATER,
	">=":  instr.GEQ,
	"and": instr.AND,
	"or":  instr.OR,
	"shl": instr.SHL,
	"shr": instr.SHR,
}

// isStringLiteral reports whether expr is statically known to produce a
// string, for the "+" overload heuristic below. ARX's type checker is an
// external collaborator (spec.md §1), so this is necessarily conservative:
// only a string literal itself (or a "+" tree rooted at one) is recognized,
// matching what a single-pass codegen can know without full type info.
func isStringLiteral(expr ast.Expression) bool {
	switch e := expr.(type) {
	case *ast.Literal:
		return e.Kind == ast.LiteralString
	case *ast.BinaryOp:
		return e.Operator == "+" && (isStringLiteral(e.Left) || isStringLiteral(e.Right))
	default:
		return false
	}
}

// compileBinaryOp implements spec.md §4.1's "+" overload: string
// concatenation if either side looks like a string, otherwise arithmetic
// addition, coercing the non-string side with INT_TO_STR.
func (c *Compiler) compileBinaryOp(ctx *classCtx, b *ast.BinaryOp) {
	if b.Operator == "+" {
		if isStringLiteral(b.Left) || isStringLiteral(b.Right) {
			c.compileExpression(ctx, b.Left)
			if !isStringLiteral(b.Left) {
				ctx.emit(instr.Opr(instr.INT_TO_STR))
			}
			c.compileExpression(ctx, b.Right)
			if !isStringLiteral(b.Right) {
				ctx.emit(instr.Opr(instr.INT_TO_STR))
			}
			ctx.emit(instr.Opr(instr.STR_CONCAT))
			return
		}
		c.compileExpression(ctx, b.Left)
		c.compileExpression(ctx, b.Right)
		ctx.emit(instr.Opr(instr.ADD))
		return
	}

	sub, ok := binarySub[b.Operator]
	if !ok {
		c.warnf("unknown binary operator %q", b.Operator)
		sub = instr.ADD
	}
	c.compileExpression(ctx, b.Left)
	c.compileExpression(ctx, b.Right)
	ctx.emit(instr.Opr(sub))
}

func (c *Compiler) compileUnaryOp(ctx *classCtx, u *ast.UnaryOp) {
	c.compileExpression(ctx, u.Operand)
	switch u.Operator {
	case "-":
		ctx.emit(instr.Opr(instr.NEG))
	case "not":
		ctx.emit(instr.Opr(instr.NOT))
	default:
		c.warnf("unknown unary operator %q", u.Operator)
	}
}

// callProducesString reports whether a call's argument expression is
// statically known to produce a string — the same conservative
// literal-shape heuristic as compileBinaryOp's "+" overload.
func callProducesString(expr ast.Expression) bool {
	switch e := expr.(type) {
	case *ast.Literal:
		return e.Kind == ast.LiteralString
	case *ast.BinaryOp:
		return e.Operator == "+" && (isStringLiteral(e.Left) || isStringLiteral(e.Right))
	default:
		return false
	}
}

// producesRuntimeAmbiguousValue reports whether expr's result type can't be
// determined at compile time: a method/function call, a bare identifier, or
// a field read may hold either a plain int or a heap string-object address,
// and there's no type checker to consult (spec.md §1 lists it as an
// external, out-of-scope collaborator). compileWriteln routes these through
// OUT instead of committing to OUTSTRING/OUTINT at emit time.
func producesRuntimeAmbiguousValue(expr ast.Expression) bool {
	switch expr.(type) {
	case *ast.Call, *ast.Identifier, *ast.FieldAccess:
		return true
	default:
		return false
	}
}

func isSystemReceiver(expr ast.Expression) bool {
	id, ok := expr.(*ast.Identifier)
	return ok && id.Name == "system"
}

// compileCall implements spec.md §4.1's METHOD_CALL/PROCEDURE_CALL/
// FUNCTION_CALL case. system.writeln is lowered directly to an OUTSTRING/
// OUTINT/OUT intrinsic rather than a dispatched OBJ_CALL_METHOD, since "system"
// names the VM's intrinsic surface, not a user class (spec.md §4.4 "System
// object"). Every other call — method, or a bare procedure/function call
// implicitly sent to self — goes through OBJ_CALL_METHOD, resolved by name
// at call time against the receiver's class registry entry (spec.md §4.4
// "Dynamic dispatch"); ARX has no use for the ISA's separate CAL opcode,
// since every callable is a class method.
func (c *Compiler) compileCall(ctx *classCtx, call *ast.Call) {
	if call.Selector == "writeln" && (call.Receiver == nil || isSystemReceiver(call.Receiver)) {
		c.compileWriteln(ctx, call)
		return
	}

	if call.Receiver != nil && isSystemReceiver(call.Receiver) {
		// "system" names the VM's intrinsic surface, not a declared local
		// or field, so it must not go through the normal identifier
		// lookup (compileIdentifier would fall through to its
		// read-miss-is-a-field default and misresolve it). Any
		// non-writeln send to it (spec.md §4.1 "the distinguished
		// receiver system pushes the literal 0xFFFFFFFF") still dispatches
		// through OBJ_CALL_METHOD below and will simply fault at runtime
		// if no such intrinsic is registered.
		ctx.emit(instr.New(instr.LIT, instr.SystemObjectAddress))
	} else if call.Receiver != nil {
		c.compileExpression(ctx, call.Receiver)
	} else {
		ctx.emit(instr.Opr(instr.OBJ_SELF))
	}
	for _, arg := range call.Args {
		c.compileExpression(ctx, arg)
	}
	selID := c.intern(call.Selector)
	ctx.emit(instr.New(instr.LIT, int64(selID)))
	ctx.emit(instr.New(instr.LIT, int64(len(call.Args))))
	ctx.emit(instr.Opr(instr.OBJ_CALL_METHOD))
}

func (c *Compiler) compileWriteln(ctx *classCtx, call *ast.Call) {
	if len(call.Args) == 0 {
		id := c.intern("")
		ctx.emit(instr.New(instr.LIT, int64(id)))
		ctx.emit(instr.Opr(instr.OUTSTRING))
		return
	}
	for _, arg := range call.Args {
		c.compileExpression(ctx, arg)
		switch {
		case callProducesString(arg):
			ctx.emit(instr.Opr(instr.OUTSTRING))
		case producesRuntimeAmbiguousValue(arg):
			ctx.emit(instr.Opr(instr.OUT))
		default:
			ctx.emit(instr.Opr(instr.OUTINT))
		}
	}
}

// compileNew implements spec.md §4.1's NEW_EXPR: allocate via OBJ_NEW,
// stash the fresh address in a scratch local (the ISA has no DUP, so a
// temp slot stands in for "keep this value around while also using it"),
// optionally dispatch the fixed "init" constructor selector with the
// supplied arguments, then reload the address as the expression's value.
func (c *Compiler) compileNew(ctx *classCtx, n *ast.NewExpr) {
	classID := ClassID(c.moduleName, n.ClassName)
	ctx.emit(instr.New(instr.LIT, int64(classID)))
	ctx.emit(instr.Opr(instr.OBJ_NEW))

	temp := ctx.allocTempSlot()
	ctx.emit(instr.NewAt(instr.STO, 0, int64(temp)))

	if len(n.Args) > 0 {
		ctx.emit(instr.NewAt(instr.LOD, 0, int64(temp)))
		for _, arg := range n.Args {
			c.compileExpression(ctx, arg)
		}
		initID := c.intern("init")
		ctx.emit(instr.New(instr.LIT, int64(initID)))
		ctx.emit(instr.New(instr.LIT, int64(len(n.Args))))
		ctx.emit(instr.Opr(instr.OBJ_CALL_METHOD))
	}

	ctx.emit(instr.NewAt(instr.LOD, 0, int64(temp)))
}
