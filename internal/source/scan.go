package source

// CallKind distinguishes require calls from dynamic imports.
type CallKind uint8

// Call kinds.
const (
	Require CallKind = iota
	Import
)

// Call is a require(...) or import(...) call-site. All positions are token
// indices.
type Call struct {
	Kind   CallKind
	Callee int
	Open   int
	Arg    int // -1 when the argument is not a string literal
	Close  int
	Value  string

	// Member is the property read directly off the call, as in
	// require("x").foo.
	Member string

	// Binding is the variable the call result is assigned to, as in
	// var x = require("x").
	Binding string
}

// Computed reports whether the argument is not a string literal.
func (c Call) Computed() bool {
	return c.Arg < 0
}

// Export is an exports.NAME = assignment. Start is the token index of the
// exports (or module) identifier, Assign the index of the = token.
type Export struct {
	Name      string
	Start     int
	Assign    int
	Removable bool
}

// Scan holds the call-sites and the export surface of a token stream.
type Scan struct {
	Calls   []Call
	Exports []Export
	Reads   map[string]bool

	// Opaque is set when exports is used in a way that hides which names are
	// exported.
	Opaque bool
}

// ScanTokens finds call-sites and exports in a token stream.
func ScanTokens(tokens []Token) Scan {
	s := Scan{Reads: make(map[string]bool)}

	for i, t := range tokens {
		if t.Kind != Ident || !t.Significant() || At(tokens, Prev(tokens, i)).Is(".") {
			continue
		}

		switch t.Data {
		case "require":
			if c, ok := scanCall(tokens, i, Require); ok {
				s.Calls = append(s.Calls, c)
			}
		case "import":
			if c, ok := scanCall(tokens, i, Import); ok && !c.Computed() {
				s.Calls = append(s.Calls, c)
			}
		case "exports":
			s.exports(tokens, i, i)
		case "module":
			if j, ok := Match(tokens, Next(tokens, i), ".", "exports"); ok {
				s.exports(tokens, i, j)
			}
		}
	}

	return s
}

func scanCall(tokens []Token, i int, kind CallKind) (Call, bool) {
	open := Next(tokens, i)
	if !At(tokens, open).Is("(") {
		return Call{}, false
	}

	end := closing(tokens, open)
	if end < 0 {
		return Call{}, false
	}

	c := Call{Kind: kind, Callee: i, Open: open, Arg: -1, Close: end}

	if first := Next(tokens, open); first == end {
		return Call{}, false
	} else if At(tokens, first).Kind == String && Next(tokens, first) == end {
		c.Arg = first
		c.Value = Unquote(tokens[first].Data)
	}

	if dot := Next(tokens, end); At(tokens, dot).Is(".") {
		if name := Next(tokens, dot); At(tokens, name).Kind == Ident {
			c.Member = tokens[name].Data
		}
	}

	if eq := Prev(tokens, i); At(tokens, eq).Is("=") {
		if name := Prev(tokens, eq); At(tokens, name).Kind == Ident {
			switch At(tokens, Prev(tokens, name)).Data {
			case "var", "let", "const":
				c.Binding = tokens[name].Data
			}
		}
	}

	return c, true
}

func closing(tokens []Token, open int) int {
	depth := 0

	for i := open; i < len(tokens); i++ {
		if tokens[i].Kind != Punct {
			continue
		}

		switch tokens[i].Data {
		case "(":
			depth++
		case ")":
			if depth--; depth == 0 {
				return i
			}
		}
	}

	return -1
}

// exports records a use of the exports object; base is the token index of the
// exports identifier, which for module.exports differs from start.
func (s *Scan) exports(tokens []Token, start, base int) {
	next := Next(tokens, base)

	if !At(tokens, next).Is(".") {
		if start == base && isInteropDefine(tokens, start) {
			return
		}

		s.Opaque = true

		return
	}

	name := Next(tokens, next)
	if At(tokens, name).Kind != Ident {
		s.Opaque = true

		return
	}

	assign := Next(tokens, name)
	if !At(tokens, assign).Is("=") {
		s.Reads[tokens[name].Data] = true

		return
	}

	s.Exports = append(s.Exports, Export{
		Name:      tokens[name].Data,
		Start:     start,
		Assign:    assign,
		Removable: StatementStart(tokens, start),
	})
}

func isInteropDefine(tokens []Token, i int) bool {
	open := Prev(tokens, i)
	if !At(tokens, open).Is("(") {
		return false
	}

	if _, ok := Match(tokens, Prev(tokens, Prev(tokens, Prev(tokens, open))), "Object", ".", "defineProperty", "("); !ok {
		return false
	}

	comma := Next(tokens, i)
	flag := Next(tokens, comma)

	return At(tokens, comma).Is(",") && At(tokens, flag).Kind == String && Unquote(tokens[flag].Data) == "__esModule"
}

// StatementStart reports whether the token at i begins a statement.
func StatementStart(tokens []Token, i int) bool {
	p := Prev(tokens, i)
	if p < 0 {
		return true
	}

	switch tokens[p].Data {
	case ";", "{", "}", ")":
		return tokens[p].Kind == Punct
	}

	return false
}

var keywords = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true, "class": true,
	"const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "export": true, "extends": true,
	"false": true, "finally": true, "for": true, "function": true, "if": true,
	"import": true, "in": true, "instanceof": true, "let": true, "new": true,
	"null": true, "return": true, "super": true, "switch": true, "this": true,
	"throw": true, "true": true, "try": true, "typeof": true, "var": true,
	"void": true, "while": true, "with": true, "yield": true,
}

// Idents returns every identifier that could refer to a binding: all
// identifier tokens that are not keywords and not property names after a dot.
func Idents(tokens []Token) map[string]bool {
	idents := make(map[string]bool)

	for i, t := range tokens {
		if t.Kind == Ident && t.Significant() && !keywords[t.Data] && !At(tokens, Prev(tokens, i)).Is(".") {
			idents[t.Data] = true
		}
	}

	return idents
}
