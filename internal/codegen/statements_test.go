package codegen

import (
	"testing"

	"github.com/arxlang/arx/internal/ast"
	"github.com/arxlang/arx/internal/instr"
)

func compileMain(t *testing.T, body *ast.Block) []instr.Instruction {
	t.Helper()
	mod := &ast.Module{Classes: []*ast.Class{
		{Name: "App", Methods: []*ast.Method{mainMethod(body)}},
	}}
	c := New("m", nil)
	out, err := c.Compile(mod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out.Instructions
}

func TestCompileVarDeclWithInitializer(t *testing.T) {
	ins := compileMain(t, &ast.Block{Statements: []ast.Statement{
		&ast.VarDecl{Names: []string{"x"}, Init: &ast.Literal{Kind: ast.LiteralInt, Int: 5}},
	}})
	if len(ins) < 2 || ins[0].Op != instr.LIT || ins[0].Operand != 5 {
		t.Fatalf("got %+v, want LIT 5 first", ins)
	}
	if ins[1].Op != instr.STO {
		t.Fatalf("got %+v, want STO second", ins)
	}
}

func TestCompileAssignmentToUndeclaredDeclaresLocal(t *testing.T) {
	ins := compileMain(t, &ast.Block{Statements: []ast.Statement{
		&ast.ExprStmt{Expression: &ast.Assignment{Name: "y", Value: &ast.Literal{Kind: ast.LiteralInt, Int: 9}}},
	}})
	foundSTO := false
	for _, i := range ins {
		if i.Op == instr.STO {
			foundSTO = true
		}
	}
	if !foundSTO {
		t.Fatalf("got %+v, want an STO for the miss-declared local", ins)
	}
}

func TestCompileIfElseJumpsAreForward(t *testing.T) {
	ins := compileMain(t, &ast.Block{Statements: []ast.Statement{
		&ast.IfStmt{
			Condition: &ast.Literal{Kind: ast.LiteralBool, Bool: true},
			Then:      &ast.Block{Statements: []ast.Statement{&ast.ReturnStmt{Value: &ast.Literal{Kind: ast.LiteralInt, Int: 1}}}},
			Else:      &ast.Block{Statements: []ast.Statement{&ast.ReturnStmt{Value: &ast.Literal{Kind: ast.LiteralInt, Int: 2}}}},
		},
	}})
	for i, in := range ins {
		if in.Op == instr.JMP || in.Op == instr.JPC {
			if int(in.Operand) <= i {
				t.Fatalf("instruction %d (%s) is not a forward jump", i, in)
			}
		}
	}
}

func TestCompileWhileLoopsBackward(t *testing.T) {
	ins := compileMain(t, &ast.Block{Statements: []ast.Statement{
		&ast.WhileStmt{
			Condition: &ast.Literal{Kind: ast.LiteralBool, Bool: true},
			Body:      &ast.Block{},
		},
	}})
	sawBackwardJump := false
	for i, in := range ins {
		if in.Op == instr.JMP && int(in.Operand) <= i {
			sawBackwardJump = true
		}
	}
	if !sawBackwardJump {
		t.Fatalf("got %+v, want a backward JMP closing the while loop", ins)
	}
}

func TestCompileForUsesLEQAndIncrement(t *testing.T) {
	ins := compileMain(t, &ast.Block{Statements: []ast.Statement{
		&ast.ForStmt{Var: "i", From: &ast.Literal{Kind: ast.LiteralInt, Int: 1}, To: &ast.Literal{Kind: ast.LiteralInt, Int: 3}, Body: &ast.Block{}},
	}})
	foundLEQ, foundAdd := false, false
	for _, in := range ins {
		if in.Op == instr.OPR && instr.Sub(in.Operand) == instr.LEQ {
			foundLEQ = true
		}
		if in.Op == instr.OPR && instr.Sub(in.Operand) == instr.ADD {
			foundAdd = true
		}
	}
	if !foundLEQ || !foundAdd {
		t.Fatalf("got %+v, want both an LEQ bound check and an ADD increment", ins)
	}
}

func TestCompileReturnWithoutValueStillEmitsRET(t *testing.T) {
	ins := compileMain(t, &ast.Block{Statements: []ast.Statement{&ast.ReturnStmt{}}})
	if len(ins) != 1 || ins[0].Op != instr.OPR || instr.Sub(ins[0].Operand) != instr.RET {
		t.Fatalf("got %+v, want a single OPR RET", ins)
	}
}

// TestCompileWritelnOfCallResultUsesOUT checks that a writeln argument whose
// value comes from a call (rather than a literal or a "+"-tree) is lowered
// to the runtime-dispatching OUT intrinsic, not OUTINT: there's no type
// checker, so compileWriteln can't know whether the callee returns a string
// or an int.
func TestCompileWritelnOfCallResultUsesOUT(t *testing.T) {
	ins := compileMain(t, &ast.Block{Statements: []ast.Statement{
		&ast.ExprStmt{Expression: &ast.Call{Selector: "writeln", Args: []ast.Expression{
			&ast.Call{Kind: ast.CallFunction, Selector: "getName"},
		}}},
	}})
	foundOUT := false
	for _, in := range ins {
		if in.Op == instr.OPR && instr.Sub(in.Operand) == instr.OUT {
			foundOUT = true
		}
		if in.Op == instr.OPR && (instr.Sub(in.Operand) == instr.OUTINT || instr.Sub(in.Operand) == instr.OUTSTRING) {
			t.Fatalf("got %s, want no compile-time OUTINT/OUTSTRING commitment for a call result", instr.Sub(in.Operand))
		}
	}
	if !foundOUT {
		t.Fatalf("got %+v, want an OPR OUT for the call-result writeln argument", ins)
	}
}

// TestCompileWritelnOfIdentifierUsesOUT is the same check for a bare
// identifier argument, which is equally unresolvable at compile time.
func TestCompileWritelnOfIdentifierUsesOUT(t *testing.T) {
	ins := compileMain(t, &ast.Block{Statements: []ast.Statement{
		&ast.VarDecl{Names: []string{"x"}, Init: &ast.Literal{Kind: ast.LiteralInt, Int: 1}},
		&ast.ExprStmt{Expression: &ast.Call{Selector: "writeln", Args: []ast.Expression{
			&ast.Identifier{Name: "x"},
		}}},
	}})
	foundOUT := false
	for _, in := range ins {
		if in.Op == instr.OPR && instr.Sub(in.Operand) == instr.OUT {
			foundOUT = true
		}
	}
	if !foundOUT {
		t.Fatalf("got %+v, want an OPR OUT for the identifier writeln argument", ins)
	}
}

// TestCompileSystemReceiverPushesDistinguishedAddress checks that a call
// sent to the "system" identifier pushes instr.SystemObjectAddress as its
// receiver instead of falling through to ordinary identifier resolution
// (which would misread "system" as an undeclared field).
func TestCompileSystemReceiverPushesDistinguishedAddress(t *testing.T) {
	ins := compileMain(t, &ast.Block{Statements: []ast.Statement{
		&ast.ExprStmt{Expression: &ast.Call{
			Kind:     ast.CallMethod,
			Receiver: &ast.Identifier{Name: "system"},
			Selector: "beep",
		}},
	}})
	found := false
	for _, in := range ins {
		if in.Op == instr.LIT && in.Operand == instr.SystemObjectAddress {
			found = true
		}
	}
	if !found {
		t.Fatalf("got %+v, want a LIT SystemObjectAddress pushed for the system receiver", ins)
	}
}
