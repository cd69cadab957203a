package lsp

import (
	"bytes"
	"unicode/utf8"

	"go.lsp.dev/protocol"

	"sti-lsp/parser"
)

// utf16Len is the number of UTF-16 code units encoding r.
func utf16Len(r rune) uint32 {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

// lineAt returns the bytes of row, without its line break.
func lineAt(input []byte, row uint32) []byte {
	for i := uint32(0); i < row; i++ {
		nl := bytes.IndexByte(input, '\n')
		if nl < 0 {
			return nil
		}
		input = input[nl+1:]
	}
	if nl := bytes.IndexByte(input, '\n'); nl >= 0 {
		input = input[:nl]
	}
	return bytes.TrimSuffix(input, []byte("\r"))
}

// toPoint converts a client position, counted in UTF-16 code units, into a
// tree point counted in bytes. Characters past the end of the line clamp to it.
func toPoint(input []byte, pos protocol.Position) parser.Point {
	line := lineAt(input, pos.Line)
	var units, col uint32
	for len(line) > 0 && units < pos.Character {
		r, size := utf8.DecodeRune(line)
		units += utf16Len(r)
		col += uint32(size)
		line = line[size:]
	}
	return parser.Point{Row: pos.Line, Column: col}
}

func toPosition(input []byte, p parser.Point) protocol.Position {
	line := lineAt(input, p.Row)
	if int(p.Column) < len(line) {
		line = line[:p.Column]
	}
	var units uint32
	for len(line) > 0 {
		r, size := utf8.DecodeRune(line)
		units += utf16Len(r)
		line = line[size:]
	}
	return protocol.Position{Line: p.Row, Character: units}
}

func toRange(input []byte, rng parser.Range) protocol.Range {
	return protocol.Range{
		Start: toPosition(input, rng.StartPoint),
		End:   toPosition(input, rng.EndPoint),
	}
}
