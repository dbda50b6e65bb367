// Package parser implements a recursive-descent parser for ARX source,
// producing the AST contract internal/ast defines and internal/codegen
// consumes.
//
// Like internal/lexer, this is the external-collaborator boundary spec.md
// §1 specifies only by its output shape; the grammar below (Pascal/BASIC
// flavored: module/class/procedure/function, if-then-elseif-else,
// while-do, for..to..do) is a concrete, deliberately small grammar rather
// than the compiler's main engineering surface.
package parser

import (
	"fmt"

	"github.com/arxlang/arx/internal/ast"
	"github.com/arxlang/arx/internal/lexer"
)

// Parser holds two-token lookahead over a Lexer, following the teacher's
// curTok/peekTok pattern.
type Parser struct {
	l       *lexer.Lexer
	curTok  lexer.Token
	peekTok lexer.Token
	errors  []string
}

// New creates a Parser over ARX source text.
func New(src string) *Parser {
	p := &Parser{l: lexer.New(src)}
	p.next()
	p.next()
	return p
}

// Errors returns accumulated parse errors (the parser does not stop at the
// first error; an unexpected token in an expression is skipped and parsing
// continues from the next one).
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) next() {
	p.curTok = p.peekTok
	p.peekTok = p.l.Next()
}

func (p *Parser) addErrorf(format string, args ...interface{}) {
	p.errors = append(p.errors, fmt.Sprintf("line %d:%d: %s", p.curTok.Line, p.curTok.Col, fmt.Sprintf(format, args...)))
}

func (p *Parser) expect(tt lexer.TokenType) bool {
	if p.curTok.Type == tt {
		p.next()
		return true
	}
	p.addErrorf("expected %s, got %s(%q)", tt, p.curTok.Type, p.curTok.Literal)
	return false
}

// Parse parses a whole module.
func (p *Parser) Parse() (*ast.Module, error) {
	mod := &ast.Module{}

	if p.curTok.Type == lexer.MODULE {
		p.next()
		mod.Name = p.curTok.Literal
		p.expect(lexer.IDENT)
		if p.curTok.Type == lexer.SEMI {
			p.next()
		}
	}

	for p.curTok.Type == lexer.CLASS {
		cls := p.parseClass()
		if cls != nil {
			mod.Classes = append(mod.Classes, cls)
		}
	}

	if p.curTok.Type != lexer.EOF {
		p.addErrorf("unexpected trailing token %s(%q)", p.curTok.Type, p.curTok.Literal)
	}

	if len(p.errors) > 0 {
		return mod, fmt.Errorf("parse errors: %v", p.errors)
	}
	return mod, nil
}

func (p *Parser) parseClass() *ast.Class {
	p.expect(lexer.CLASS)
	cls := &ast.Class{Name: p.curTok.Literal}
	p.expect(lexer.IDENT)

	if p.curTok.Type == lexer.EXTENDS {
		p.next()
		cls.SuperClass = p.curTok.Literal
		p.expect(lexer.IDENT)
	}

	for p.curTok.Type == lexer.VAR || p.curTok.Type == lexer.PROCEDURE || p.curTok.Type == lexer.FUNCTION {
		switch p.curTok.Type {
		case lexer.VAR:
			cls.Fields = append(cls.Fields, p.parseFieldDecl())
		case lexer.PROCEDURE, lexer.FUNCTION:
			cls.Methods = append(cls.Methods, p.parseMethod())
		}
	}

	p.expect(lexer.END)
	return cls
}

func (p *Parser) parseFieldDecl() *ast.ObjectVar {
	p.expect(lexer.VAR)
	name := p.curTok.Literal
	p.expect(lexer.IDENT)
	typ := ""
	if p.curTok.Type == lexer.COLON {
		p.next()
		typ = p.curTok.Literal
		p.expect(lexer.IDENT)
	}
	if p.curTok.Type == lexer.SEMI {
		p.next()
	}
	return &ast.ObjectVar{Name: name, Type: typ}
}

func (p *Parser) parseMethod() *ast.Method {
	isFunction := p.curTok.Type == lexer.FUNCTION
	p.next() // consume procedure/function

	m := &ast.Method{Name: p.curTok.Literal, IsFunction: isFunction}
	p.expect(lexer.IDENT)

	p.expect(lexer.LPAREN)
	for p.curTok.Type != lexer.RPAREN && p.curTok.Type != lexer.EOF {
		name := p.curTok.Literal
		p.expect(lexer.IDENT)
		typ := ""
		if p.curTok.Type == lexer.COLON {
			p.next()
			typ = p.curTok.Literal
			p.expect(lexer.IDENT)
		}
		m.Parameters = append(m.Parameters, ast.Param{Name: name, Type: typ})
		if p.curTok.Type == lexer.COMMA {
			p.next()
		}
	}
	p.expect(lexer.RPAREN)

	if isFunction {
		p.expect(lexer.COLON)
		m.ReturnType = p.curTok.Literal
		p.expect(lexer.IDENT)
	}

	m.Body = p.parseBlockUntil(lexer.END)
	p.expect(lexer.END)
	return m
}

// parseBlockUntil parses statements until it sees terminator (not
// consumed) or EOF. Several block-like constructs (if/while/for/method
// bodies) share this because ARX has no explicit block delimiter other
// than the keyword that opened the construct.
func (p *Parser) parseBlockUntil(terminators ...lexer.TokenType) *ast.Block {
	block := &ast.Block{}
	for !p.atAny(terminators) && p.curTok.Type != lexer.EOF {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
	}
	return block
}

func (p *Parser) atAny(types []lexer.TokenType) bool {
	for _, t := range types {
		if p.curTok.Type == t {
			return true
		}
	}
	return false
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.curTok.Type {
	case lexer.VAR:
		return p.parseVarDecl()
	case lexer.IF:
		return p.parseIf()
	case lexer.WHILE:
		return p.parseWhile()
	case lexer.FOR:
		return p.parseFor()
	case lexer.RETURN:
		return p.parseReturn()
	default:
		return p.parseExprStmt()
	}
}

func (p *Parser) parseVarDecl() ast.Statement {
	p.expect(lexer.VAR)
	decl := &ast.VarDecl{}
	decl.Names = append(decl.Names, p.curTok.Literal)
	p.expect(lexer.IDENT)
	for p.curTok.Type == lexer.COMMA {
		p.next()
		decl.Names = append(decl.Names, p.curTok.Literal)
		p.expect(lexer.IDENT)
	}
	if p.curTok.Type == lexer.COLON {
		p.next()
		decl.Type = p.curTok.Literal
		p.expect(lexer.IDENT)
	}
	if p.curTok.Type == lexer.ASSIGN {
		p.next()
		decl.Init = p.parseExpression()
	}
	if p.curTok.Type == lexer.SEMI {
		p.next()
	}
	return decl
}

func (p *Parser) parseIf() ast.Statement {
	p.expect(lexer.IF)
	stmt := &ast.IfStmt{Condition: p.parseExpression()}
	p.expect(lexer.THEN)
	stmt.Then = p.parseBlockUntil(lexer.ELSEIF, lexer.ELSE, lexer.END)

	for p.curTok.Type == lexer.ELSEIF {
		p.next()
		cond := p.parseExpression()
		p.expect(lexer.THEN)
		body := p.parseBlockUntil(lexer.ELSEIF, lexer.ELSE, lexer.END)
		stmt.ElseIfs = append(stmt.ElseIfs, ast.ElseIfArm{Condition: cond, Body: body})
	}

	if p.curTok.Type == lexer.ELSE {
		p.next()
		stmt.Else = p.parseBlockUntil(lexer.END)
	}

	p.expect(lexer.END)
	return stmt
}

func (p *Parser) parseWhile() ast.Statement {
	p.expect(lexer.WHILE)
	cond := p.parseExpression()
	p.expect(lexer.DO)
	body := p.parseBlockUntil(lexer.END)
	p.expect(lexer.END)
	return &ast.WhileStmt{Condition: cond, Body: body}
}

func (p *Parser) parseFor() ast.Statement {
	p.expect(lexer.FOR)
	varName := p.curTok.Literal
	p.expect(lexer.IDENT)
	p.expect(lexer.ASSIGN)
	from := p.parseExpression()
	p.expect(lexer.TO)
	to := p.parseExpression()
	p.expect(lexer.DO)
	body := p.parseBlockUntil(lexer.END)
	p.expect(lexer.END)
	return &ast.ForStmt{Var: varName, From: from, To: to, Body: body}
}

func (p *Parser) parseReturn() ast.Statement {
	p.expect(lexer.RETURN)
	stmt := &ast.ReturnStmt{}
	if p.curTok.Type != lexer.SEMI && p.curTok.Type != lexer.END && p.curTok.Type != lexer.EOF {
		stmt.Value = p.parseExpression()
	}
	if p.curTok.Type == lexer.SEMI {
		p.next()
	}
	return stmt
}

func (p *Parser) parseExprStmt() ast.Statement {
	expr := p.parseExpression()
	if p.curTok.Type == lexer.ASSIGN {
		p.next()
		rhs := p.parseExpression()
		expr = p.wrapAssignment(expr, rhs)
	}
	if p.curTok.Type == lexer.SEMI {
		p.next()
	}
	return &ast.ExprStmt{Expression: expr}
}

func (p *Parser) wrapAssignment(lhs ast.Expression, rhs ast.Expression) ast.Expression {
	switch l := lhs.(type) {
	case *ast.Identifier:
		return &ast.Assignment{Name: l.Name, Value: rhs}
	case *ast.FieldAccess:
		return &ast.Assignment{Field: l, Value: rhs}
	default:
		p.addErrorf("invalid assignment target")
		return &ast.Assignment{Value: rhs}
	}
}

// Expression parsing: lowest to highest precedence:
//   or  <  and  <  not  <  comparison  <  + -  <  * / %  <  unary -  <  ^  <  postfix  <  primary

func (p *Parser) parseExpression() ast.Expression { return p.parseOr() }

func (p *Parser) parseOr() ast.Expression {
	left := p.parseAnd()
	for p.curTok.Type == lexer.OR {
		p.next()
		right := p.parseAnd()
		left = &ast.BinaryOp{Operator: "or", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expression {
	left := p.parseNot()
	for p.curTok.Type == lexer.AND {
		p.next()
		right := p.parseNot()
		left = &ast.BinaryOp{Operator: "and", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseNot() ast.Expression {
	if p.curTok.Type == lexer.NOT {
		p.next()
		return &ast.UnaryOp{Operator: "not", Operand: p.parseNot()}
	}
	return p.parseComparison()
}

var comparisonOps = map[lexer.TokenType]string{
	lexer.EQ: "==", lexer.NEQ: "!=", lexer.LT: "<", lexer.LE: "<=",
	lexer.GT: ">", lexer.GE: ">=",
}

func (p *Parser) parseComparison() ast.Expression {
	left := p.parseAdditive()
	if op, ok := comparisonOps[p.curTok.Type]; ok {
		p.next()
		right := p.parseAdditive()
		return &ast.BinaryOp{Operator: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expression {
	left := p.parseMultiplicative()
	for p.curTok.Type == lexer.PLUS || p.curTok.Type == lexer.MINUS {
		op := "+"
		if p.curTok.Type == lexer.MINUS {
			op = "-"
		}
		p.next()
		right := p.parseMultiplicative()
		left = &ast.BinaryOp{Operator: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expression {
	left := p.parseUnary()
	for p.curTok.Type == lexer.STAR || p.curTok.Type == lexer.SLASH || p.curTok.Type == lexer.PERCENT {
		var op string
		switch p.curTok.Type {
		case lexer.STAR:
			op = "*"
		case lexer.SLASH:
			op = "/"
		case lexer.PERCENT:
			op = "%"
		}
		p.next()
		right := p.parseUnary()
		left = &ast.BinaryOp{Operator: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expression {
	if p.curTok.Type == lexer.MINUS {
		p.next()
		return &ast.UnaryOp{Operator: "-", Operand: p.parseUnary()}
	}
	return p.parsePower()
}

func (p *Parser) parsePower() ast.Expression {
	left := p.parsePostfix()
	if p.curTok.Type == lexer.CARET {
		p.next()
		right := p.parseUnary()
		return &ast.BinaryOp{Operator: "^", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parsePostfix() ast.Expression {
	expr := p.parsePrimary()
	for {
		switch p.curTok.Type {
		case lexer.DOT:
			p.next()
			name := p.curTok.Literal
			p.expect(lexer.IDENT)
			if p.curTok.Type == lexer.LPAREN {
				args := p.parseArgs()
				expr = &ast.Call{Kind: ast.CallMethod, Receiver: expr, Selector: name, Args: args}
			} else {
				expr = &ast.FieldAccess{Receiver: expr, Field: name}
			}
		case lexer.LPAREN:
			if ident, ok := expr.(*ast.Identifier); ok {
				args := p.parseArgs()
				expr = &ast.Call{Kind: ast.CallProcedure, Selector: ident.Name, Args: args}
				continue
			}
			return expr
		default:
			return expr
		}
	}
}

func (p *Parser) parseArgs() []ast.Expression {
	p.expect(lexer.LPAREN)
	var args []ast.Expression
	for p.curTok.Type != lexer.RPAREN && p.curTok.Type != lexer.EOF {
		args = append(args, p.parseExpression())
		if p.curTok.Type == lexer.COMMA {
			p.next()
		}
	}
	p.expect(lexer.RPAREN)
	return args
}

func (p *Parser) parsePrimary() ast.Expression {
	switch p.curTok.Type {
	case lexer.INT:
		lit := p.curTok.Literal
		p.next()
		var v int64
		fmt.Sscanf(lit, "%d", &v)
		return &ast.Literal{Kind: ast.LiteralInt, Int: v}
	case lexer.STRING:
		lit := p.curTok.Literal
		p.next()
		return &ast.Literal{Kind: ast.LiteralString, Str: lit}
	case lexer.TRUE:
		p.next()
		return &ast.Literal{Kind: ast.LiteralBool, Bool: true}
	case lexer.FALSE:
		p.next()
		return &ast.Literal{Kind: ast.LiteralBool, Bool: false}
	case lexer.NEW:
		p.next()
		name := p.curTok.Literal
		p.expect(lexer.IDENT)
		args := p.parseArgs()
		return &ast.NewExpr{ClassName: name, Args: args}
	case lexer.IDENT:
		name := p.curTok.Literal
		p.next()
		return &ast.Identifier{Name: name}
	case lexer.LPAREN:
		p.next()
		expr := p.parseExpression()
		p.expect(lexer.RPAREN)
		return expr
	default:
		p.addErrorf("unexpected token %s(%q) in expression", p.curTok.Type, p.curTok.Literal)
		tok := p.curTok
		p.next()
		return &ast.Literal{Kind: ast.LiteralInt, Int: 0, Str: tok.Literal}
	}
}
