// Package parser builds sti syntax trees from the tables in sti_binding.
package parser

import (
	"context"
	"fmt"

	binding "sti-lsp/sti_binding"
)

type symbols struct {
	end, lbrace, rbrace, comma, equals, arrow       binding.Symbol
	identifier, ignore, str, newline                binding.Symbol
	insertStart, escape, text                       binding.Symbol
	sourceFile, declarations, declaration, template binding.Symbol
	insert, errorSym                                binding.Symbol
}

type fields struct {
	declarations, defaultValue, name, template, variable binding.FieldID
}

type Parser struct {
	lang *binding.Language
	sym  symbols
	fld  fields
}

func NewParser() *Parser {
	lang := binding.GetLanguage()
	sym := func(name string, named bool) binding.Symbol {
		s, ok := lang.SymbolForName(name, named)
		if !ok {
			panic(fmt.Sprintf("sti grammar has no symbol %q", name))
		}
		return s
	}
	field := func(name string) binding.FieldID {
		id, ok := lang.FieldIDForName(name)
		if !ok {
			panic(fmt.Sprintf("sti grammar has no field %q", name))
		}
		return id
	}

	return &Parser{
		lang: lang,
		sym: symbols{
			end:          sym("end", false),
			lbrace:       sym("{", false),
			rbrace:       sym("}", false),
			comma:        sym(",", false),
			equals:       sym("=", false),
			arrow:        sym("->", false),
			identifier:   sym("identifier", true),
			ignore:       sym("ignore", true),
			str:          sym("string", true),
			newline:      sym("_newline", false),
			insertStart:  sym("%{", false),
			escape:       sym("escape", true),
			text:         sym("text", true),
			sourceFile:   sym("source_file", true),
			declarations: sym("declarations", true),
			declaration:  sym("declaration", true),
			template:     sym("template", true),
			insert:       sym("insert", true),
			errorSym:     sym("ERROR", true),
		},
		fld: fields{
			declarations: field("declarations"),
			defaultValue: field("default"),
			name:         field("name"),
			template:     field("template"),
			variable:     field("variable"),
		},
	}
}

func (p *Parser) Language() *binding.Language { return p.lang }

func (p *Parser) ParseString(text string) (*Tree, error) {
	return p.ParseCtx(context.TODO(), []byte(text))
}

func (p *Parser) ParseBytes(text []byte) (*Tree, error) {
	return p.ParseCtx(context.TODO(), text)
}

// ParseCtx parses text into a syntax tree. Syntax errors are recorded in the
// tree as ERROR and MISSING nodes; the returned error is only set when ctx
// is done before parsing finishes.
func (p *Parser) ParseCtx(ctx context.Context, text []byte) (*Tree, error) {
	s := &parseState{
		ctx: ctx,
		p:   p,
		lx:  lexer{lang: p.lang, input: text},
	}
	root, err := s.sourceFile()
	if err != nil {
		return nil, err
	}
	return &Tree{root: root, lang: p.lang, source: text}, nil
}

type parseState struct {
	ctx context.Context
	p   *Parser
	lx  lexer
}

func (s *parseState) lex(mode binding.LexMode) token {
	return s.lx.next(mode, s.p.sym.end, s.p.sym.errorSym)
}

func (s *parseState) peek(mode binding.LexMode) token {
	saved := s.lx
	tok := s.lex(mode)
	s.lx = saved
	return tok
}

func (s *parseState) node(sym binding.Symbol, at Range) *Node {
	return &Node{lang: s.p.lang, symbol: sym, rng: at}
}

func (s *parseState) leaf(tok token) *Node {
	return s.node(tok.symbol, tok.rng)
}

// missing makes a zero-width node at at. Callers pass the lexer position so
// the node sits before any whitespace that was only peeked.
func (s *parseState) missing(sym binding.Symbol, at Range) *Node {
	n := s.node(sym, Range{StartPoint: at.StartPoint, EndPoint: at.StartPoint, StartByte: at.StartByte, EndByte: at.StartByte})
	n.missing = true
	return n
}

// add appends child and extends parent's range to its end. Nodes are created
// at the start of their first token, so the start never moves.
func add(parent, child *Node, field binding.FieldID) {
	child.parent = parent
	extend(parent, child.rng)
	parent.children = append(parent.children, child)
	parent.fields = append(parent.fields, field)
}

func extend(n *Node, rng Range) {
	n.rng.EndPoint = rng.EndPoint
	n.rng.EndByte = rng.EndByte
}

func (s *parseState) sourceFile() (*Node, error) {
	sym := s.p.sym
	root := s.node(sym.sourceFile, s.lx.at())

	var decls *Node
	var junk *Node
	flushJunk := func() {
		if junk != nil {
			add(root, junk, 0)
			junk = nil
		}
	}

header:
	for {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		tok := s.peek(binding.LexModeHeader)
		switch {
		case tok.symbol == sym.arrow || tok.symbol == sym.end:
			break header
		case tok.symbol == sym.lbrace && decls == nil:
			flushJunk()
			decls = s.declarations()
			add(root, decls, s.p.fld.declarations)
		default:
			s.lex(binding.LexModeHeader)
			if junk == nil {
				junk = s.node(sym.errorSym, tok.rng)
			}
			if tok.valid {
				add(junk, s.leaf(tok), 0)
			} else {
				extend(junk, tok.rng)
			}
		}
	}
	flushJunk()

	if decls == nil {
		add(root, s.missing(sym.declarations, s.lx.at()), s.p.fld.declarations)
	}

	if tok := s.peek(binding.LexModeHeader); tok.symbol == sym.arrow {
		s.lex(binding.LexModeHeader)
		add(root, s.leaf(tok), 0)
		if nl := s.peek(binding.LexModeArrowTail); nl.valid && nl.symbol == sym.newline {
			s.lex(binding.LexModeArrowTail)
		}
	} else {
		add(root, s.missing(sym.arrow, s.lx.at()), 0)
	}

	tmpl, err := s.template()
	if err != nil {
		return nil, err
	}
	add(root, tmpl, s.p.fld.template)

	// the root always spans the whole document
	root.rng.StartPoint, root.rng.StartByte = Point{}, 0
	root.rng.EndPoint, root.rng.EndByte = s.lx.point, s.lx.pos
	return root, nil
}

func (s *parseState) declarations() *Node {
	sym := s.p.sym
	open := s.lex(binding.LexModeHeader)
	node := s.node(sym.declarations, open.rng)
	add(node, s.leaf(open), 0)

	expectDecl := true
	for {
		tok := s.peek(binding.LexModeHeader)
		switch tok.symbol {
		case sym.rbrace:
			s.lex(binding.LexModeHeader)
			add(node, s.leaf(tok), 0)
			return node
		case sym.identifier, sym.ignore:
			if !expectDecl {
				add(node, s.missing(sym.comma, s.lx.at()), 0)
			}
			add(node, s.declaration(), 0)
			expectDecl = false
		case sym.comma:
			s.lex(binding.LexModeHeader)
			if expectDecl {
				add(node, s.errorNode(tok), 0)
			} else {
				add(node, s.leaf(tok), 0)
				expectDecl = true
			}
		case sym.arrow, sym.end, sym.lbrace:
			add(node, s.missing(sym.rbrace, s.lx.at()), 0)
			return node
		default:
			s.lex(binding.LexModeHeader)
			add(node, s.errorNode(tok), 0)
		}
	}
}

func (s *parseState) declaration() *Node {
	sym := s.p.sym
	name := s.lex(binding.LexModeHeader)
	node := s.node(sym.declaration, name.rng)
	add(node, s.leaf(name), s.p.fld.name)

	if tok := s.peek(binding.LexModeHeader); tok.symbol == sym.equals {
		s.lex(binding.LexModeHeader)
		add(node, s.leaf(tok), 0)
		value := s.peek(binding.LexModeHeader)
		if value.symbol == sym.str {
			s.lex(binding.LexModeHeader)
			add(node, s.leaf(value), s.p.fld.defaultValue)
		} else {
			add(node, s.missing(sym.str, s.lx.at()), s.p.fld.defaultValue)
		}
	}
	return node
}

func (s *parseState) errorNode(tok token) *Node {
	node := s.node(s.p.sym.errorSym, tok.rng)
	if tok.valid {
		add(node, s.leaf(tok), 0)
	}
	return node
}

func (s *parseState) template() (*Node, error) {
	sym := s.p.sym
	node := s.node(sym.template, s.lx.at())

	for {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		tok := s.lex(binding.LexModeTemplate)
		switch tok.symbol {
		case sym.end:
			if len(node.children) == 0 {
				return s.missing(sym.template, tok.rng), nil
			}
			return node, nil
		case sym.escape:
			add(node, s.leaf(tok), 0)
		case sym.insertStart:
			if insert := s.insert(tok); insert != nil {
				add(node, insert, 0)
				continue
			}
			// not an insert: the '%' is literal and lexing resumes after it
			s.lx.pos = tok.rng.StartByte
			s.lx.point = tok.rng.StartPoint
			s.appendText(node, s.lx.consume(1))
		default:
			s.appendText(node, tok)
		}
	}
}

func (s *parseState) insert(open token) *Node {
	sym := s.p.sym
	saved := s.lx
	variable := s.lex(binding.LexModeInsert)
	if !variable.valid || (variable.symbol != sym.identifier && variable.symbol != sym.ignore) {
		s.lx = saved
		return nil
	}
	closing := s.lex(binding.LexModeInsert)
	if !closing.valid || closing.symbol != sym.rbrace {
		s.lx = saved
		return nil
	}

	node := s.node(sym.insert, open.rng)
	add(node, s.leaf(open), 0)
	add(node, s.leaf(variable), s.p.fld.variable)
	add(node, s.leaf(closing), 0)
	return node
}

// appendText adds literal text, merging it into an adjacent text node.
func (s *parseState) appendText(node *Node, tok token) {
	if n := len(node.children); n > 0 {
		last := node.children[n-1]
		if last.symbol == s.p.sym.text && last.rng.EndByte == tok.rng.StartByte {
			extend(last, tok.rng)
			extend(node, tok.rng)
			return
		}
	}
	tok.symbol = s.p.sym.text
	add(node, s.leaf(tok), 0)
}
