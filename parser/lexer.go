package parser

import (
	"unicode/utf8"

	binding "sti-lsp/sti_binding"
)

type token struct {
	symbol binding.Symbol
	rng    Range
	// false when no lexer state accepted the input, the token then covers one rune
	valid bool
}

type lexer struct {
	lang  *binding.Language
	input []byte
	pos   uint32
	point Point
}

func advancePoint(p Point, b []byte) Point {
	for _, c := range b {
		if c == '\n' {
			p.Row++
			p.Column = 0
		} else {
			p.Column++
		}
	}
	return p
}

func (l *lexer) eof() bool { return int(l.pos) >= len(l.input) }

// at returns a zero-width range at the current position.
func (l *lexer) at() Range {
	return Range{StartPoint: l.point, EndPoint: l.point, StartByte: l.pos, EndByte: l.pos}
}

// next scans one token in mode and advances past it. Whitespace accepted by
// skip states is consumed first. At end of input it returns a zero-width end
// token.
func (l *lexer) next(mode binding.LexMode, end binding.Symbol, invalid binding.Symbol) token {
	for {
		if l.eof() {
			return token{symbol: end, rng: l.at(), valid: true}
		}

		state := l.lang.LexModeStart(mode)
		pos := int(l.pos)
		accepted := -1
		var sym binding.Symbol
		var skip bool
		for pos < len(l.input) {
			r, size := utf8.DecodeRune(l.input[pos:])
			next, ok := l.lang.NextLexState(state, r)
			if !ok {
				break
			}
			state = next
			pos += size
			if s, sk, ok := l.lang.LexAccept(state); ok {
				accepted, sym, skip = pos, s, sk
			}
		}

		if accepted < 0 {
			_, size := utf8.DecodeRune(l.input[l.pos:])
			tok := l.consume(uint32(size))
			tok.symbol = invalid
			return tok
		}
		tok := l.consume(uint32(accepted) - l.pos)
		if skip {
			continue
		}
		tok.symbol = sym
		tok.valid = true
		return tok
	}
}

func (l *lexer) consume(n uint32) token {
	start := l.at()
	end := l.pos + n
	l.point = advancePoint(l.point, l.input[l.pos:end])
	l.pos = end
	return token{rng: Range{
		StartPoint: start.StartPoint,
		EndPoint:   l.point,
		StartByte:  start.StartByte,
		EndByte:    end,
	}}
}
