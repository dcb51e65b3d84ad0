package rewrite

import (
	"strconv"

	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/source"
)

func isProperty(tokens []source.Token, i int) bool {
	return source.At(tokens, source.Prev(tokens, i)).Is(".")
}

// semicolon extends end over a following semicolon.
func semicolon(tokens []source.Token, end int) int {
	if n := source.Next(tokens, end); source.At(tokens, n).Is(";") {
		return n
	}

	return end
}

// FoldEnvironment replaces FuseBox.isServer and FuseBox.isBrowser with the
// constant the target implies. Electron and universal builds leave them alone.
func FoldEnvironment(c *Context, f *graph.File) error {
	var server bool

	switch c.Target {
	case Browser:
	case Server, NPM:
		server = true
	default:
		return nil
	}

	toks := f.Tokens

	for i, t := range toks {
		if !t.Is("FuseBox") || isProperty(toks, i) {
			continue
		}

		val := server

		end, ok := source.Match(toks, source.Next(toks, i), ".", "isServer")
		if !ok {
			if end, ok = source.Match(toks, source.Next(toks, i), ".", "isBrowser"); !ok {
				continue
			}

			val = !server
		}

		source.Blank(toks, i+1, end)
		f.Set(i, strconv.FormatBool(val))
	}

	return nil
}

// RemoveInterop strips the statements that mark exports as coming from an
// ECMAScript module.
func RemoveInterop(c *Context, f *graph.File) error {
	if !c.RemoveExportsInterop {
		return nil
	}

	toks := f.Tokens

	for i, t := range toks {
		if !t.Significant() || !source.StatementStart(toks, i) {
			continue
		}

		end, ok := source.Match(toks, i, "exports", ".", "__esModule", "=", "true")
		if !ok {
			end, ok = source.Match(toks, i, "module", ".", "exports", ".", "__esModule", "=", "true")
		}

		if !ok {
			end, ok = interopDefine(toks, i)
		}

		if ok {
			source.Blank(toks, i, semicolon(toks, end))
		}
	}

	return nil
}

func interopDefine(toks []source.Token, i int) (int, bool) {
	end, ok := source.Match(toks, i, "Object", ".", "defineProperty", "(", "exports", ",")
	if !ok {
		return i, false
	}

	name := source.Next(toks, end)
	if t := source.At(toks, name); t.Kind != source.String || source.Unquote(t.Data) != "__esModule" {
		return i, false
	}

	return source.Match(toks, source.Next(toks, name), ",", "{", "value", ":", "true", "}", ")")
}

// RemoveUseStrict drops a "use strict" directive at the top of the file and
// marks the file so that its bundle declares one instead.
func RemoveUseStrict(c *Context, f *graph.File) error {
	if !c.RemoveUseStrict {
		return nil
	}

	toks := f.Tokens

	if i := source.Next(toks, -1); source.At(toks, i).Kind == source.String && source.Unquote(toks[i].Data) == "use strict" {
		source.Blank(toks, i, semicolon(toks, i))

		f.Strict = true
	}

	return nil
}

// ReplaceTypeOf folds typeof module and typeof exports to "object", and
// typeof window to what the target implies. Electron and universal builds
// keep typeof window.
func ReplaceTypeOf(c *Context, f *graph.File) error {
	if !c.ReplaceTypeOf {
		return nil
	}

	var window string

	switch c.Target {
	case Browser:
		window = "object"
	case Server, NPM:
		window = "undefined"
	}

	toks := f.Tokens

	for i, t := range toks {
		if !t.Is("typeof") {
			continue
		}

		n := source.Next(toks, i)
		if source.At(toks, n).Kind != source.Ident || isProperty(toks, n) {
			continue
		}

		switch after := source.At(toks, source.Next(toks, n)); {
		case after.Is("."), after.Is("["), after.Is("("):
			continue
		}

		var val string

		switch toks[n].Data {
		case "module", "exports":
			val = "object"
		case "window":
			val = window
		}

		if val == "" {
			continue
		}

		source.Blank(toks, i+1, n)
		f.Set(i, strconv.Quote(val))
	}

	return nil
}

var assignments = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"**=": true, "<<=": true, ">>=": true, ">>>=": true, "&=": true, "|=": true,
	"^=": true, "&&=": true, "||=": true, "??=": true, "++": true, "--": true,
}

// ReplaceProcessEnv replaces process.env.NAME and process.env["NAME"] with
// the configured value of NAME. Reads of unconfigured names and assignments
// are left alone.
func ReplaceProcessEnv(c *Context, f *graph.File) error {
	if !c.ReplaceProcessEnv || len(c.Env) == 0 {
		return nil
	}

	toks := f.Tokens

	for i, t := range toks {
		if !t.Is("process") || isProperty(toks, i) {
			continue
		}

		end, ok := source.Match(toks, source.Next(toks, i), ".", "env")
		if !ok {
			continue
		}

		var name string

		if n := source.Next(toks, end); source.At(toks, n).Is(".") {
			if id := source.Next(toks, n); source.At(toks, id).Kind == source.Ident {
				name, end = toks[id].Data, id
			}
		} else if source.At(toks, n).Is("[") {
			if s := source.Next(toks, n); source.At(toks, s).Kind == source.String {
				if cl := source.Next(toks, s); source.At(toks, cl).Is("]") {
					name, end = source.Unquote(toks[s].Data), cl
				}
			}
		}

		val, ok := c.Env[name]
		if name == "" || !ok {
			continue
		}

		if before := source.At(toks, source.Prev(toks, i)); before.Is("++") || before.Is("--") || before.Is("delete") {
			continue
		} else if after := source.At(toks, source.Next(toks, end)); assignments[after.Data] && after.Significant() {
			continue
		}

		source.Blank(toks, i+1, end)
		f.Set(i, source.Quote(val))
	}

	return nil
}
