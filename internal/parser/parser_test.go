package parser

import (
	"testing"

	"github.com/arxlang/arx/internal/ast"
)

func TestParseSimpleClass(t *testing.T) {
	src := `
module Demo;
class App
  var count: int;

  procedure Main()
    count := 1;
    if count = 1 then
      system.writeln("one")
    else
      system.writeln("other")
    end
  end
end
`
	p := New(src)
	mod, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v (%v)", err, p.Errors())
	}
	if mod.Name != "Demo" {
		t.Fatalf("got module name %q, want Demo", mod.Name)
	}
	if len(mod.Classes) != 1 {
		t.Fatalf("got %d classes, want 1", len(mod.Classes))
	}
	cls := mod.Classes[0]
	if cls.Name != "App" {
		t.Fatalf("got class name %q, want App", cls.Name)
	}
	if len(cls.Fields) != 1 || cls.Fields[0].Name != "count" {
		t.Fatalf("got fields %+v, want one field 'count'", cls.Fields)
	}
	if len(cls.Methods) != 1 || cls.Methods[0].Name != "Main" {
		t.Fatalf("got methods %+v, want one method 'Main'", cls.Methods)
	}
}

func TestParseExtends(t *testing.T) {
	src := `class Student extends Person end`
	p := New(src)
	mod, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if mod.Classes[0].SuperClass != "Person" {
		t.Fatalf("got superclass %q, want Person", mod.Classes[0].SuperClass)
	}
}

func TestParseFunctionWithParamsAndReturn(t *testing.T) {
	src := `
class Math
  function Add(a: int, b: int): int
    return a + b
  end
end
`
	p := New(src)
	mod, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	m := mod.Classes[0].Methods[0]
	if !m.IsFunction || m.ReturnType != "int" {
		t.Fatalf("got method %+v, want IsFunction=true ReturnType=int", m)
	}
	if len(m.Parameters) != 2 {
		t.Fatalf("got %d params, want 2", len(m.Parameters))
	}
	ret, ok := m.Body.Statements[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.ReturnStmt", m.Body.Statements[0])
	}
	bin, ok := ret.Value.(*ast.BinaryOp)
	if !ok || bin.Operator != "+" {
		t.Fatalf("got return value %+v, want a '+' BinaryOp", ret.Value)
	}
}

func TestParseWhileAndFor(t *testing.T) {
	src := `
class Loops
  procedure Run()
    var i;
    i := 0;
    while i < 10 do
      i := i + 1
    end
    for j := 1 to 5 do
      system.writeln(j)
    end
  end
end
`
	p := New(src)
	mod, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	body := mod.Classes[0].Methods[0].Body.Statements
	foundWhile, foundFor := false, false
	for _, s := range body {
		switch s.(type) {
		case *ast.WhileStmt:
			foundWhile = true
		case *ast.ForStmt:
			foundFor = true
		}
	}
	if !foundWhile || !foundFor {
		t.Fatalf("got statements %+v, want a WhileStmt and a ForStmt", body)
	}
}

func TestParseNewExprAndMethodCall(t *testing.T) {
	src := `
class App
  procedure Main()
    var p;
    p := new Person("Ada", 30);
    p.greet()
  end
end
`
	p := New(src)
	mod, err := p.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	stmts := mod.Classes[0].Methods[0].Body.Statements
	assignStmt, ok := stmts[1].(*ast.ExprStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.ExprStmt", stmts[1])
	}
	assign, ok := assignStmt.Expression.(*ast.Assignment)
	if !ok {
		t.Fatalf("got %T, want *ast.Assignment", assignStmt.Expression)
	}
	newExpr, ok := assign.Value.(*ast.NewExpr)
	if !ok || newExpr.ClassName != "Person" || len(newExpr.Args) != 2 {
		t.Fatalf("got %+v, want new Person(2 args)", assign.Value)
	}

	callStmt, ok := stmts[2].(*ast.ExprStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.ExprStmt", stmts[2])
	}
	call, ok := callStmt.Expression.(*ast.Call)
	if !ok || call.Selector != "greet" || call.Kind != ast.CallMethod {
		t.Fatalf("got %+v, want a method call to greet", callStmt.Expression)
	}
}

func TestParseErrorRecoveryReportsError(t *testing.T) {
	p := New(`class 123 end`)
	_, err := p.Parse()
	if err == nil {
		t.Fatalf("expected a parse error for a non-identifier class name")
	}
}
