package config

import (
	"fmt"
	"strings"
)

// Parser builds a Tree from configuration text in the display form.
type Parser struct {
	lex  *Lexer
	errs []error
}

// NewParser creates a Parser for the given input.
func NewParser(input string) *Parser {
	return &Parser{lex: NewLexer(input)}
}

// Parse consumes the whole input. Syntax errors are collected rather than
// aborting, so a damaged file still yields the statements around the damage.
func (p *Parser) Parse() (*Tree, []error) {
	children := p.parseBlock(true)
	return &Tree{Children: children}, p.errs
}

// parseBlock reads statements until the closing brace, or EOF at top level.
// Identifiers and strings accumulate as keys; a semicolon closes them as a
// leaf, an opening brace as a block.
func (p *Parser) parseBlock(top bool) []*Node {
	var nodes []*Node
	var keys []string
	for {
		tok := p.lex.Next()
		switch tok.Type {
		case TokenIdentifier, TokenString:
			keys = append(keys, tok.Value)
		case TokenSemicolon:
			if len(keys) == 0 {
				continue
			}
			nodes = append(nodes, &Node{Keys: keys})
			keys = nil
		case TokenLBrace:
			if len(keys) == 0 {
				p.errorf(tok, "block without a keyword")
				p.parseBlock(false)
				continue
			}
			n := &Node{Keys: keys}
			keys = nil
			n.Children = p.parseBlock(false)
			nodes = append(nodes, n)
		case TokenRBrace:
			if top {
				p.errorf(tok, "unexpected '}'")
				continue
			}
			if len(keys) > 0 {
				p.errorf(tok, "missing ';' after %q", strings.Join(keys, " "))
				nodes = append(nodes, &Node{Keys: keys})
			}
			return nodes
		case TokenEOF:
			if !top {
				p.errorf(tok, "unexpected end of input inside block")
			}
			if len(keys) > 0 {
				p.errorf(tok, "missing ';' after %q", strings.Join(keys, " "))
				nodes = append(nodes, &Node{Keys: keys})
			}
			return nodes
		case TokenError:
			p.errorf(tok, "%s", tok.Value)
		}
	}
}

func (p *Parser) errorf(tok Token, format string, args ...any) {
	p.errs = append(p.errs, fmt.Errorf("line %d:%d: %s", tok.Line, tok.Column, fmt.Sprintf(format, args...)))
}

// ParseText parses configuration text, returning the first syntax error.
func ParseText(input string) (*Tree, error) {
	tree, errs := NewParser(input).Parse()
	if len(errs) != 0 {
		return nil, errs[0]
	}
	return tree, nil
}
