package codegen

import (
	"github.com/arxlang/arx/internal/ast"
	"github.com/arxlang/arx/internal/instr"
)

func (c *Compiler) compileBlock(ctx *classCtx, block *ast.Block) {
	if block == nil {
		return
	}
	for _, stmt := range block.Statements {
		c.compileStatement(ctx, stmt)
	}
}

func (c *Compiler) compileStatement(ctx *classCtx, stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		c.compileVarDecl(ctx, s)
	case *ast.IfStmt:
		c.compileIf(ctx, s)
	case *ast.WhileStmt:
		c.compileWhile(ctx, s)
	case *ast.ForStmt:
		c.compileFor(ctx, s)
	case *ast.ReturnStmt:
		c.compileReturn(ctx, s)
	case *ast.ExprStmt:
		c.compileExprStmt(ctx, s)
	default:
		c.warnf("unhandled statement node %T", stmt)
	}
}

// compileVarDecl declares locals and, if initialized, emits the
// initializer assignment (spec.md §4.1 "Field declarations produce no
// code" is about OBJECT_VAR; VAR_DECL inside a method body does emit code
// for its initializer).
func (c *Compiler) compileVarDecl(ctx *classCtx, decl *ast.VarDecl) {
	for _, name := range decl.Names {
		ctx.declareLocal(name)
	}
	if decl.Init != nil && len(decl.Names) == 1 {
		slot := ctx.declareLocal(decl.Names[0])
		c.compileExpression(ctx, decl.Init)
		ctx.emit(instr.NewAt(instr.STO, 0, int64(slot)))
	}
}

func (c *Compiler) compileExprStmt(ctx *classCtx, s *ast.ExprStmt) {
	switch e := s.Expression.(type) {
	case *ast.Assignment:
		c.compileAssignment(ctx, e)
	default:
		c.compileExpression(ctx, e)
		// A bare expression statement's value (if any) is unused. Unlike
		// smog, ARX has no POP opcode in its instruction set (spec.md §3);
		// the only expression shapes legal as bare statements (message
		// sends) already leave nothing extra on the stack once OBJ_CALL_METHOD
		// has returned, since procedure-valued sends push nothing.
	}
}

// compileAssignment implements spec.md §4.1 "Assignment": compute rhs,
// then STO to a local slot, or OPR OBJ_SET_FIELD for a field target.
func (c *Compiler) compileAssignment(ctx *classCtx, a *ast.Assignment) {
	if a.Field != nil {
		c.compileFieldWrite(ctx, a.Field, a.Value)
		return
	}

	if slot, ok := ctx.lookupLocal(a.Name); ok {
		c.compileExpression(ctx, a.Value)
		ctx.emit(instr.NewAt(instr.STO, 0, int64(slot)))
		return
	}

	if fi, ok := ctx.lookupField(a.Name); ok {
		ctx.emit(instr.Opr(instr.OBJ_SELF))
		c.compileExpression(ctx, a.Value)
		ctx.emit(instr.New(instr.LIT, fi.offset))
		ctx.emit(instr.Opr(instr.OBJ_SET_FIELD))
		return
	}

	// Miss: spec.md §4.1 only documents the read-miss case (treat as
	// field, OBJ_GET_FIELD); an assignment miss has no such fallback, so
	// this declares a fresh local as the least-surprising recovery (the
	// assignment still does something meaningful instead of being
	// silently dropped).
	slot := ctx.declareLocal(a.Name)
	c.compileExpression(ctx, a.Value)
	ctx.emit(instr.NewAt(instr.STO, 0, int64(slot)))
}

func (c *Compiler) compileFieldWrite(ctx *classCtx, target *ast.FieldAccess, value ast.Expression) {
	c.compileExpression(ctx, target.Receiver)
	c.compileExpression(ctx, value)
	offset := c.resolveFieldOffset(ctx, target.Field)
	ctx.emit(instr.New(instr.LIT, offset))
	ctx.emit(instr.Opr(instr.OBJ_SET_FIELD))
}

// resolveFieldOffset looks up a field's offset on the current class; if
// unknown (e.g. a field on an external receiver's class, not statically
// resolvable without a type checker — spec.md §1 keeps the type checker
// external) it returns offset 0, the same read-miss default
// compileIdentifier uses for an unknown identifier.
func (c *Compiler) resolveFieldOffset(ctx *classCtx, name string) int64 {
	if fi, ok := ctx.lookupField(name); ok {
		return fi.offset
	}
	return 0
}

// compileIf implements spec.md §4.1's if-then-elseif-else lowering:
//   <cond>; JPC L_next; <then>; JMP L_end; L_next: <elseif cond>; JPC …; L_end:
func (c *Compiler) compileIf(ctx *classCtx, s *ast.IfStmt) {
	lEnd := ctx.createLabel()

	c.compileExpression(ctx, s.Condition)
	lNext := ctx.createLabel()
	ctx.emit(instr.New(instr.JPC, int64(lNext)))
	c.compileBlock(ctx, s.Then)
	ctx.emit(instr.New(instr.JMP, int64(lEnd)))
	ctx.setLabel(lNext, ctx.pc())

	for _, arm := range s.ElseIfs {
		c.compileExpression(ctx, arm.Condition)
		lNextArm := ctx.createLabel()
		ctx.emit(instr.New(instr.JPC, int64(lNextArm)))
		c.compileBlock(ctx, arm.Body)
		ctx.emit(instr.New(instr.JMP, int64(lEnd)))
		ctx.setLabel(lNextArm, ctx.pc())
	}

	if s.Else != nil {
		c.compileBlock(ctx, s.Else)
	}

	ctx.setLabel(lEnd, ctx.pc())
}

// compileWhile implements spec.md §4.1's while lowering:
//   L_start: <cond>; JPC L_end; <body>; JMP L_start; L_end:
func (c *Compiler) compileWhile(ctx *classCtx, s *ast.WhileStmt) {
	lStart := ctx.createLabel()
	lEnd := ctx.createLabel()

	ctx.setLabel(lStart, ctx.pc())
	c.compileExpression(ctx, s.Condition)
	ctx.emit(instr.New(instr.JPC, int64(lEnd)))
	c.compileBlock(ctx, s.Body)
	ctx.emit(instr.New(instr.JMP, int64(lStart)))
	ctx.setLabel(lEnd, ctx.pc())
}

// compileFor implements spec.md §4.1's for lowering:
//   <a>; STO v; L_cond: LOD v; <b>; LEQ; JPC L_end; <body>; LOD v; LIT 1; ADD; STO v; JMP L_cond; L_end:
func (c *Compiler) compileFor(ctx *classCtx, s *ast.ForStmt) {
	slot := ctx.declareLocal(s.Var)

	c.compileExpression(ctx, s.From)
	ctx.emit(instr.NewAt(instr.STO, 0, int64(slot)))

	lCond := ctx.createLabel()
	lEnd := ctx.createLabel()
	ctx.setLabel(lCond, ctx.pc())

	ctx.emit(instr.NewAt(instr.LOD, 0, int64(slot)))
	c.compileExpression(ctx, s.To)
	ctx.emit(instr.Opr(instr.LEQ))
	ctx.emit(instr.New(instr.JPC, int64(lEnd)))

	c.compileBlock(ctx, s.Body)

	ctx.emit(instr.NewAt(instr.LOD, 0, int64(slot)))
	ctx.emit(instr.New(instr.LIT, 1))
	ctx.emit(instr.Opr(instr.ADD))
	ctx.emit(instr.NewAt(instr.STO, 0, int64(slot)))
	ctx.emit(instr.New(instr.JMP, int64(lCond)))

	ctx.setLabel(lEnd, ctx.pc())
}

// compileReturn implements spec.md §4.1 "RETURN_STMT". A function leaves
// its value on the stack for OPR RET to preserve; a procedure emits RET
// with nothing extra on the stack.
func (c *Compiler) compileReturn(ctx *classCtx, s *ast.ReturnStmt) {
	if s.Value != nil {
		c.compileExpression(ctx, s.Value)
	}
	ctx.emit(instr.Opr(instr.RET))
}
