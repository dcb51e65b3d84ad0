// Package source turns module source text into the token streams the
// rewriting stages operate on.
package source

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"vimagination.zapto.org/css"
	"vimagination.zapto.org/javascript"
	"vimagination.zapto.org/parser"
)

// ErrTokenise is returned when source text cannot be tokenised.
var ErrTokenise = errors.New("error tokenising source")

// Kind classifies a token.
type Kind uint8

// Token kinds.
const (
	Space Kind = iota
	Comment
	Ident
	Punct
	String
	Number
	Template
	Regex
)

// Token is a single lexical token. Rewrites change Data in place; a token
// with empty Data has been removed.
type Token struct {
	Kind Kind
	Data string
}

// Significant reports whether the token takes part in the syntax.
func (t Token) Significant() bool {
	return t.Data != "" && t.Kind != Space && t.Kind != Comment
}

// Is reports whether the token is significant and has the given text.
func (t Token) Is(data string) bool {
	return t.Data == data && t.Significant()
}

// Tokenise splits JavaScript source into tokens.
func Tokenise(src string) ([]Token, error) {
	tk := parser.NewStringTokeniser(src)

	return collect(javascript.SetTokeniser(&tk), classify)
}

func collect(tk *parser.Tokeniser, fn func(string) Kind) ([]Token, error) {
	var tokens []Token

	for {
		t, err := tk.GetToken()
		if t.Type == parser.TokenDone || errors.Is(err, io.EOF) {
			return tokens, nil
		} else if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTokenise, err)
		} else if t.Type == parser.TokenError {
			return nil, ErrTokenise
		}

		tokens = append(tokens, Token{Kind: fn(t.Data), Data: t.Data})
	}
}

func classify(data string) Kind {
	r, _ := utf8.DecodeRuneInString(data)

	switch {
	case strings.HasPrefix(data, "//"), strings.HasPrefix(data, "/*"):
		return Comment
	case strings.TrimSpace(data) == "", r == '\ufeff':
		return Space
	case r == '"', r == '\'':
		return String
	case r == '`', r == '}' && len(data) > 1:
		return Template
	case r == '/' && data != "/" && data != "/=":
		return Regex
	case r >= '0' && r <= '9', r == '.' && len(data) > 1 && data[1] >= '0' && data[1] <= '9':
		return Number
	case r == '_', r == '$', r == '\\', r == '#', unicode.IsLetter(r):
		return Ident
	}

	return Punct
}

// New makes a token from replacement text, classifying it the same way
// tokenised text is classified.
func New(data string) Token {
	return Token{Kind: classify(data), Data: data}
}

// Join concatenates the token text.
func Join(tokens []Token) string {
	var sb strings.Builder

	for _, t := range tokens {
		sb.WriteString(t.Data)
	}

	return sb.String()
}

// Next returns the index of the first significant token after i, or
// len(tokens) when there is none.
func Next(tokens []Token, i int) int {
	for i++; i < len(tokens); i++ {
		if tokens[i].Significant() {
			return i
		}
	}

	return len(tokens)
}

// Prev returns the index of the last significant token before i, or -1.
func Prev(tokens []Token, i int) int {
	for i--; i >= 0; i-- {
		if tokens[i].Significant() {
			return i
		}
	}

	return -1
}

// At returns the token at i, or the zero Token when i is out of range.
func At(tokens []Token, i int) Token {
	if i < 0 || i >= len(tokens) {
		return Token{}
	}

	return tokens[i]
}

// Match checks that the significant tokens starting at i have the given
// texts, returning the index of the last one matched.
func Match(tokens []Token, i int, data ...string) (int, bool) {
	if !At(tokens, i).Is(data[0]) {
		return i, false
	}

	for _, d := range data[1:] {
		if i = Next(tokens, i); !At(tokens, i).Is(d) {
			return i, false
		}
	}

	return i, true
}

// Blank removes the tokens in [start, end].
func Blank(tokens []Token, start, end int) {
	for i := start; i <= end && i < len(tokens); i++ {
		tokens[i] = Token{Kind: tokens[i].Kind}
	}
}

// Unquote returns the value of a string literal token.
func Unquote(data string) string {
	if len(data) < 2 {
		return data
	}

	inner := data[1 : len(data)-1]
	if !strings.ContainsRune(inner, '\\') {
		return inner
	}

	var sb strings.Builder

	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}

		sb.WriteByte(inner[i])
	}

	return sb.String()
}

// Compact tokenises JavaScript source and rejoins it without comments or
// unneeded whitespace. Source relying on automatic semicolon insertion must
// not be compacted.
func Compact(src string) (string, error) {
	tokens, err := Tokenise(src)
	if err != nil {
		return "", err
	}

	var (
		sb   strings.Builder
		last byte
	)

	for _, t := range tokens {
		if !t.Significant() {
			continue
		}

		if sb.Len() > 0 && needsSpace(last, t.Data[0]) {
			sb.WriteByte(' ')
		}

		sb.WriteString(t.Data)

		last = t.Data[len(t.Data)-1]
	}

	return sb.String(), nil
}

func wordByte(c byte) bool {
	return c == '_' || c == '$' || c == '\\' || c >= 0x80 || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func needsSpace(a, b byte) bool {
	return wordByte(a) && wordByte(b) || a == b && (a == '+' || a == '-') || a == '/' && b == '/'
}

// Quote returns s as a double-quoted JavaScript string literal.
func Quote(s string) string {
	var sb strings.Builder

	sb.WriteByte('"')

	for _, r := range s {
		switch r {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '\n':
			sb.WriteString("\\n")
		case '\r':
			sb.WriteString("\\r")
		case '\t':
			sb.WriteString("\\t")
		case '\u2028', '\u2029':
			fmt.Fprintf(&sb, "\\u%04x", r)
		default:
			if r < ' ' {
				fmt.Fprintf(&sb, "\\u%04x", r)
			} else {
				sb.WriteRune(r)
			}
		}
	}

	sb.WriteByte('"')

	return sb.String()
}

// MinifyCSS tokenises a stylesheet, dropping comments and collapsing
// whitespace.
func MinifyCSS(src string) (string, error) {
	tk := parser.NewStringTokeniser(src)

	tokens, err := collect(css.SetTokeniser(&tk), func(data string) Kind {
		switch {
		case strings.HasPrefix(data, "/*"):
			return Comment
		case strings.TrimSpace(data) == "":
			return Space
		}

		return Punct
	})
	if err != nil {
		return "", err
	}

	var (
		sb    strings.Builder
		space bool
	)

	for _, t := range tokens {
		switch t.Kind {
		case Comment:
			continue
		case Space:
			space = true

			continue
		}

		if space && sb.Len() > 0 && !cssTight(sb.String()[sb.Len()-1]) && !cssTight(t.Data[0]) {
			sb.WriteByte(' ')
		}

		space = false

		sb.WriteString(t.Data)
	}

	return sb.String(), nil
}

func cssTight(c byte) bool {
	return strings.IndexByte("{}:;,>+~()", c) >= 0
}
