// Package parser is a small hand-rolled recursive-descent reader that
// turns program source text into the ast.Block shapes the interpreter
// and model checker consume. It is a secondary, driver-level concern:
// nothing in ast, memory, graph, interp or checker imports it.
//
// Surface grammar (informal):
//
//	Block   := Stmt (';' Stmt)* ';'?
//	Stmt    := 'nop'
//	         | LVal '=' Expr
//	         | 'join' Expr
//	         | 'lock' Ident
//	         | 'unlock' Ident
//	         | 'assert' Expr
//	LVal    := '$' Ident | Ident
//	Expr    := Add (('==' | '!=') Add)?
//	Add     := Primary ('+' Primary)*
//	Primary := '$' Ident | Ident | Number | 'spawn' '{' Block '}'
//
// A leading '$' marks a local register; a bare identifier is a global
// variable. Block bodies only use braces inside a spawn expression —
// the top-level program is a bare, unbraced Block.
package parser

import (
	"fmt"
	"strconv"
	"unicode"

	"gitmem/ast"
)

// ParseError reports a lexical or syntactic error at a rune offset
// into the source text.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Msg)
}

func errf(pos int, format string, args ...any) error {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokReg
	tokNumber
	tokSemi
	tokLBrace
	tokRBrace
	tokAssign
	tokEq
	tokNeq
	tokPlus
	tokKwNop
	tokKwSpawn
	tokKwJoin
	tokKwLock
	tokKwUnlock
	tokKwAssert
)

type token struct {
	kind  tokenKind
	text  string
	value uint64
	pos   int
}

var keywords = map[string]tokenKind{
	"nop":    tokKwNop,
	"spawn":  tokKwSpawn,
	"join":   tokKwJoin,
	"lock":   tokKwLock,
	"unlock": tokKwUnlock,
	"assert": tokKwAssert,
}

func isIdentStart(r rune) bool { return unicode.IsLetter(r) || r == '_' }
func isIdentPart(r rune) bool  { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' }

// lex converts src into a flat token stream, ending with a tokEOF.
func lex(src []rune) ([]token, error) {
	var toks []token
	i := 0
	n := len(src)
	for i < n {
		r := src[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == ';':
			toks = append(toks, token{kind: tokSemi, pos: i})
			i++
		case r == '{':
			toks = append(toks, token{kind: tokLBrace, pos: i})
			i++
		case r == '}':
			toks = append(toks, token{kind: tokRBrace, pos: i})
			i++
		case r == '+':
			toks = append(toks, token{kind: tokPlus, pos: i})
			i++
		case r == '=':
			if i+1 < n && src[i+1] == '=' {
				toks = append(toks, token{kind: tokEq, pos: i})
				i += 2
			} else {
				toks = append(toks, token{kind: tokAssign, pos: i})
				i++
			}
		case r == '!':
			if i+1 < n && src[i+1] == '=' {
				toks = append(toks, token{kind: tokNeq, pos: i})
				i += 2
			} else {
				return nil, errf(i, "unexpected '!' (did you mean '!='?)")
			}
		case r == '$':
			start := i
			i++
			nameStart := i
			if i >= n || !isIdentStart(src[i]) {
				return nil, errf(start, "expected a register name after '$'")
			}
			for i < n && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokReg, text: string(src[nameStart:i]), pos: start})
		case unicode.IsDigit(r):
			start := i
			for i < n && unicode.IsDigit(src[i]) {
				i++
			}
			v, err := strconv.ParseUint(string(src[start:i]), 10, 64)
			if err != nil {
				return nil, errf(start, "invalid integer literal: %v", err)
			}
			toks = append(toks, token{kind: tokNumber, value: v, pos: start})
		case isIdentStart(r):
			start := i
			for i < n && isIdentPart(src[i]) {
				i++
			}
			text := string(src[start:i])
			if kw, ok := keywords[text]; ok {
				toks = append(toks, token{kind: kw, text: text, pos: start})
			} else {
				toks = append(toks, token{kind: tokIdent, text: text, pos: start})
			}
		case r == '#':
			for i < n && src[i] != '\n' {
				i++
			}
		default:
			return nil, errf(i, "unexpected character %q", r)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: n})
	return toks, nil
}

type parser struct {
	src  []rune
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return token{}, errf(t.pos, "expected %s", what)
	}
	return p.advance(), nil
}

// Parse reads a complete program: a bare, unbraced sequence of
// statements. It is the only entry point callers outside this package
// need.
func Parse(source string) (*ast.Block, error) {
	src := []rune(source)
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	block, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, errf(p.peek().pos, "unexpected trailing input")
	}
	return block, nil
}

func (p *parser) parseBlock() (*ast.Block, error) {
	var stmts []ast.Stmt
	for {
		switch p.peek().kind {
		case tokEOF, tokRBrace:
			if len(stmts) == 0 {
				return nil, errf(p.peek().pos, "expected at least one statement")
			}
			return &ast.Block{Stmts: stmts}, nil
		}

		start := p.peek().pos
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		end := p.peek().pos
		stmt.Text = trimmedSlice(p.src, start, end)
		stmts = append(stmts, stmt)

		if p.peek().kind == tokSemi {
			p.advance()
			continue
		}
		switch p.peek().kind {
		case tokEOF, tokRBrace:
			return &ast.Block{Stmts: stmts}, nil
		default:
			return nil, errf(p.peek().pos, "expected ';' between statements")
		}
	}
}

func trimmedSlice(src []rune, start, end int) string {
	for start < end && unicode.IsSpace(src[start]) {
		start++
	}
	for end > start && unicode.IsSpace(src[end-1]) {
		end--
	}
	if start >= end {
		return ""
	}
	return string(src[start:end])
}

func (p *parser) parseStmt() (ast.Stmt, error) {
	t := p.peek()
	switch t.kind {
	case tokKwNop:
		p.advance()
		return ast.NopStmt(), nil
	case tokKwJoin:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return ast.Stmt{}, err
		}
		return ast.JoinStmt(expr), nil
	case tokKwLock:
		p.advance()
		name, err := p.expect(tokIdent, "a lock name")
		if err != nil {
			return ast.Stmt{}, err
		}
		return ast.LockStmt(name.text), nil
	case tokKwUnlock:
		p.advance()
		name, err := p.expect(tokIdent, "a lock name")
		if err != nil {
			return ast.Stmt{}, err
		}
		return ast.UnlockStmt(name.text), nil
	case tokKwAssert:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return ast.Stmt{}, err
		}
		return ast.AssertStmt(expr), nil
	case tokReg, tokIdent:
		isReg := t.kind == tokReg
		name := t.text
		p.advance()
		if _, err := p.expect(tokAssign, "'='"); err != nil {
			return ast.Stmt{}, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return ast.Stmt{}, err
		}
		if isReg {
			return ast.AssignReg(name, expr), nil
		}
		return ast.AssignVar(name, expr), nil
	default:
		return ast.Stmt{}, errf(t.pos, "expected a statement")
	}
}

func (p *parser) parseExpr() (*ast.Expr, error) {
	lhs, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokEq:
		p.advance()
		rhs, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		return ast.EqExpr(lhs, rhs), nil
	case tokNeq:
		p.advance()
		rhs, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		return ast.NeqExpr(lhs, rhs), nil
	default:
		return lhs, nil
	}
}

func (p *parser) parseAdd() (*ast.Expr, error) {
	first, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	operands := []*ast.Expr{first}
	for p.peek().kind == tokPlus {
		p.advance()
		next, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return ast.AddExpr(operands...), nil
}

func (p *parser) parsePrimary() (*ast.Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokReg:
		p.advance()
		return ast.Reg(t.text), nil
	case tokIdent:
		p.advance()
		return ast.Var(t.text), nil
	case tokNumber:
		p.advance()
		return ast.Const(t.value), nil
	case tokKwSpawn:
		p.advance()
		if _, err := p.expect(tokLBrace, "'{' after spawn"); err != nil {
			return nil, err
		}
		block, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBrace, "'}' to close spawn body"); err != nil {
			return nil, err
		}
		return ast.Spawn(block), nil
	default:
		return nil, errf(t.pos, "expected an expression")
	}
}
