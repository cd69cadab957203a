// Package sti_binding exposes the compiled sti grammar.
//
// The grammar is an immutable, process-wide descriptor holding the symbol
// table, the field-name table and the lexical state machine. Callers obtain
// it through GetLanguage and read it through the accessor methods; it has no
// exported fields and cannot be constructed or modified from outside.
package sti_binding

import (
	"fmt"
	"sync"
)

// Symbol is a grammar symbol ID (terminal or nonterminal).
type Symbol uint16

// FieldID is a named field index. Zero means "no field".
type FieldID uint16

// LexMode selects the lexer start state for a parsing context.
type LexMode uint8

const (
	LexModeHeader LexMode = iota
	LexModeArrowTail
	LexModeTemplate
	LexModeInsert
)

// Version of the descriptor layout, bumped whenever tables change shape.
const Version = 14

type symbolMetadata struct {
	name    string
	visible bool
	named   bool
}

type lexTransition struct {
	lo, hi rune
	next   int
}

type lexState struct {
	accept      Symbol
	accepts     bool
	skip        bool
	transitions []lexTransition
	// fallback for runes no transition covers, -1 when there is none
	def int
}

// Language is the compiled sti grammar.
type Language struct {
	name       string
	version    uint32
	symbols    []symbolMetadata
	fieldNames []string
	lexStates  []lexState
	lexModes   []uint16
}

var (
	languageOnce sync.Once
	language     *Language
)

// GetLanguage returns the sti grammar. Every call returns the same pointer.
func GetLanguage() *Language {
	languageOnce.Do(func() {
		lang := newLanguage()
		if err := lang.validate(); err != nil {
			panic(fmt.Sprintf("sti_binding: corrupt grammar tables: %v", err))
		}
		language = lang
	})
	return language
}

func (l *Language) Name() string { return l.name }

func (l *Language) Version() uint32 { return l.version }

func (l *Language) SymbolCount() uint32 { return uint32(len(l.symbols)) }

// SymbolName returns the node type for s, or "" when s is out of range.
func (l *Language) SymbolName(s Symbol) string {
	if int(s) >= len(l.symbols) {
		return ""
	}
	return l.symbols[s].name
}

// SymbolForName looks up a symbol by node type. Named and anonymous symbols
// live in separate namespaces, so "{" is anonymous and "identifier" is named.
func (l *Language) SymbolForName(name string, named bool) (Symbol, bool) {
	for i, sym := range l.symbols {
		if sym.name == name && sym.named == named {
			return Symbol(i), true
		}
	}
	return 0, false
}

func (l *Language) IsNamed(s Symbol) bool {
	return int(s) < len(l.symbols) && l.symbols[s].named
}

// IsVisible reports whether nodes of this symbol appear in syntax trees.
func (l *Language) IsVisible(s Symbol) bool {
	return int(s) < len(l.symbols) && l.symbols[s].visible
}

// FieldCount returns the number of fields, not counting the zero "no field" entry.
func (l *Language) FieldCount() uint32 { return uint32(len(l.fieldNames) - 1) }

func (l *Language) FieldName(id FieldID) string {
	if int(id) >= len(l.fieldNames) {
		return ""
	}
	return l.fieldNames[id]
}

func (l *Language) FieldIDForName(name string) (FieldID, bool) {
	for i := 1; i < len(l.fieldNames); i++ {
		if l.fieldNames[i] == name {
			return FieldID(i), true
		}
	}
	return 0, false
}

func (l *Language) LexStateCount() uint32 { return uint32(len(l.lexStates)) }

// LexModeStart returns the lexer start state for mode. An unknown mode gets
// a state that matches nothing.
func (l *Language) LexModeStart(mode LexMode) uint16 {
	if int(mode) >= len(l.lexModes) {
		return uint16(len(l.lexStates))
	}
	return l.lexModes[mode]
}

// NextLexState follows the transition for r out of state. ok is false when
// the lexer has to stop.
func (l *Language) NextLexState(state uint16, r rune) (next uint16, ok bool) {
	if int(state) >= len(l.lexStates) {
		return 0, false
	}
	st := &l.lexStates[state]
	for _, t := range st.transitions {
		if r >= t.lo && r <= t.hi {
			if t.next < 0 {
				return 0, false
			}
			return uint16(t.next), true
		}
	}
	if st.def < 0 {
		return 0, false
	}
	return uint16(st.def), true
}

// LexAccept reports the token accepted in state. skip marks whitespace that
// the lexer drops instead of returning.
func (l *Language) LexAccept(state uint16) (sym Symbol, skip bool, ok bool) {
	if int(state) >= len(l.lexStates) {
		return 0, false, false
	}
	st := &l.lexStates[state]
	return st.accept, st.skip, st.accepts
}

func (l *Language) validate() error {
	if len(l.symbols) == 0 {
		return fmt.Errorf("empty symbol table")
	}
	if len(l.fieldNames) == 0 || l.fieldNames[0] != "" {
		return fmt.Errorf("field table must start with the empty field")
	}
	seen := make(map[symbolMetadata]bool, len(l.symbols))
	for i, sym := range l.symbols {
		key := symbolMetadata{name: sym.name, named: sym.named}
		if seen[key] {
			return fmt.Errorf("symbol %d: duplicate name %q", i, sym.name)
		}
		seen[key] = true
	}
	count := len(l.lexStates)
	inRange := func(next int) bool { return next >= -1 && next < count }
	for i, st := range l.lexStates {
		if st.accepts && int(st.accept) >= len(l.symbols) {
			return fmt.Errorf("lex state %d: accepts unknown symbol %d", i, st.accept)
		}
		if !inRange(st.def) {
			return fmt.Errorf("lex state %d: default %d out of range", i, st.def)
		}
		for _, t := range st.transitions {
			if t.lo > t.hi || !inRange(t.next) {
				return fmt.Errorf("lex state %d: bad transition %q-%q -> %d", i, t.lo, t.hi, t.next)
			}
		}
	}
	if len(l.lexModes) != int(LexModeInsert)+1 {
		return fmt.Errorf("expected %d lex modes, got %d", LexModeInsert+1, len(l.lexModes))
	}
	for mode, start := range l.lexModes {
		if int(start) >= count {
			return fmt.Errorf("lex mode %d: start state %d out of range", mode, start)
		}
	}
	return nil
}
