package sti_binding

const (
	symEnd Symbol = iota
	symLBrace
	symRBrace
	symComma
	symEquals
	symArrow
	symIdentifier
	symIgnore
	symString
	symNewline
	symInsertStart
	symEscape
	symText
	symSourceFile
	symDeclarations
	symDeclaration
	symTemplate
	symInsert
	symError
)

var symbolTable = []symbolMetadata{
	symEnd:          {name: "end"},
	symLBrace:       {name: "{", visible: true},
	symRBrace:       {name: "}", visible: true},
	symComma:        {name: ",", visible: true},
	symEquals:       {name: "=", visible: true},
	symArrow:        {name: "->", visible: true},
	symIdentifier:   {name: "identifier", visible: true, named: true},
	symIgnore:       {name: "ignore", visible: true, named: true},
	symString:       {name: "string", visible: true, named: true},
	symNewline:      {name: "_newline"},
	symInsertStart:  {name: "%{", visible: true},
	symEscape:       {name: "escape", visible: true, named: true},
	symText:         {name: "text", visible: true, named: true},
	symSourceFile:   {name: "source_file", visible: true, named: true},
	symDeclarations: {name: "declarations", visible: true, named: true},
	symDeclaration:  {name: "declaration", visible: true, named: true},
	symTemplate:     {name: "template", visible: true, named: true},
	symInsert:       {name: "insert", visible: true, named: true},
	symError:        {name: "ERROR", visible: true, named: true},
}

// sorted, index 0 is the empty field
var fieldTable = []string{
	"",
	"declarations",
	"default",
	"name",
	"template",
	"variable",
}

// lexer states
const (
	lexHeaderStart = iota
	lexWhitespace
	lexLBrace
	lexRBrace
	lexComma
	lexEquals
	lexDash
	lexArrow
	lexIgnore
	lexIdentifier
	lexStringBody
	lexStringEscape
	lexString
	lexArrowTailStart
	lexNewline
	lexCarriageReturn
	lexTemplateStart
	lexPercent
	lexInsertStart
	lexEscape
	lexText
	lexInsertModeStart
	lexInsertIgnore
	lexInsertIdentifier
	lexInsertRBrace
)

var (
	identStart = []lexTransition{
		{'A', 'Z', lexIdentifier},
		{'a', 'z', lexIdentifier},
	}
	identContinue = func(next int) []lexTransition {
		return []lexTransition{
			{'0', '9', next},
			{'A', 'Z', next},
			{'_', '_', next},
			{'a', 'z', next},
		}
	}
	whitespace = func(next int) []lexTransition {
		return []lexTransition{
			{'\t', '\n', next},
			{'\r', '\r', next},
			{' ', ' ', next},
		}
	}
)

func join(groups ...[]lexTransition) []lexTransition {
	var out []lexTransition
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func accepting(sym Symbol, transitions []lexTransition) lexState {
	return lexState{accept: sym, accepts: true, transitions: transitions, def: -1}
}

func newLexStates() []lexState {
	return []lexState{
		lexHeaderStart: {
			transitions: join(
				whitespace(lexWhitespace),
				[]lexTransition{
					{'"', '"', lexStringBody},
					{',', ',', lexComma},
					{'-', '-', lexDash},
					{'=', '=', lexEquals},
					{'_', '_', lexIgnore},
					{'{', '{', lexLBrace},
					{'}', '}', lexRBrace},
				},
				identStart,
			),
			def: -1,
		},
		lexWhitespace:   {skip: true, accepts: true, transitions: whitespace(lexWhitespace), def: -1},
		lexLBrace:       accepting(symLBrace, nil),
		lexRBrace:       accepting(symRBrace, nil),
		lexComma:        accepting(symComma, nil),
		lexEquals:       accepting(symEquals, nil),
		lexDash:         {transitions: []lexTransition{{'>', '>', lexArrow}}, def: -1},
		lexArrow:        accepting(symArrow, nil),
		lexIgnore:       accepting(symIgnore, identContinue(lexIdentifier)),
		lexIdentifier:   accepting(symIdentifier, identContinue(lexIdentifier)),
		lexStringBody: {
			transitions: []lexTransition{
				{'\n', '\n', -1},
				{'"', '"', lexString},
				{'\\', '\\', lexStringEscape},
			},
			def: lexStringBody,
		},
		lexStringEscape: {transitions: []lexTransition{{'\n', '\n', -1}}, def: lexStringBody},
		lexString:       accepting(symString, nil),

		lexArrowTailStart: {
			transitions: []lexTransition{
				{'\n', '\n', lexNewline},
				{'\r', '\r', lexCarriageReturn},
			},
			def: -1,
		},
		lexNewline:        accepting(symNewline, nil),
		lexCarriageReturn: {transitions: []lexTransition{{'\n', '\n', lexNewline}}, def: -1},

		lexTemplateStart: {transitions: []lexTransition{{'%', '%', lexPercent}}, def: lexText},
		lexPercent: accepting(symText, []lexTransition{
			{'%', '%', lexEscape},
			{'{', '{', lexInsertStart},
		}),
		lexInsertStart: accepting(symInsertStart, nil),
		lexEscape:      accepting(symEscape, nil),
		lexText: {
			accept:      symText,
			accepts:     true,
			transitions: []lexTransition{{'%', '%', -1}},
			def:         lexText,
		},

		lexInsertModeStart: {
			transitions: join(
				[]lexTransition{
					{'_', '_', lexInsertIgnore},
					{'}', '}', lexInsertRBrace},
				},
				[]lexTransition{
					{'A', 'Z', lexInsertIdentifier},
					{'a', 'z', lexInsertIdentifier},
				},
			),
			def: -1,
		},
		lexInsertIgnore:     accepting(symIgnore, identContinue(lexInsertIdentifier)),
		lexInsertIdentifier: accepting(symIdentifier, identContinue(lexInsertIdentifier)),
		lexInsertRBrace:     accepting(symRBrace, nil),
	}
}

func newLanguage() *Language {
	return &Language{
		name:       "sti",
		version:    Version,
		symbols:    symbolTable,
		fieldNames: fieldTable,
		lexStates:  newLexStates(),
		lexModes: []uint16{
			LexModeHeader:    lexHeaderStart,
			LexModeArrowTail: lexArrowTailStart,
			LexModeTemplate:  lexTemplateStart,
			LexModeInsert:    lexInsertModeStart,
		},
	}
}
