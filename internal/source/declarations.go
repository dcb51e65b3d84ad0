package source

import (
	"vimagination.zapto.org/javascript"
	"vimagination.zapto.org/parser"
)

// TopLevel parses src as a script and returns the names it binds at the top
// level. The boolean is false when the script has a top-level statement other
// than a declaration, a variable statement or an expression statement, or
// binds names through a destructuring pattern.
func TopLevel(src string) ([]string, bool, error) {
	tk := parser.NewStringTokeniser(src)

	script, err := javascript.ParseScript(&tk)
	if err != nil {
		return nil, false, err
	}

	var names []string

	for _, item := range script.StatementList {
		switch {
		case item.Declaration != nil:
			d := item.Declaration

			switch {
			case d.FunctionDeclaration != nil:
				if d.FunctionDeclaration.BindingIdentifier == nil {
					return nil, false, nil
				}

				names = append(names, d.FunctionDeclaration.BindingIdentifier.Data)
			case d.ClassDeclaration != nil:
				if d.ClassDeclaration.BindingIdentifier == nil {
					return nil, false, nil
				}

				names = append(names, d.ClassDeclaration.BindingIdentifier.Data)
			case d.LexicalDeclaration != nil:
				for _, b := range d.LexicalDeclaration.BindingList {
					if b.BindingIdentifier == nil {
						return nil, false, nil
					}

					names = append(names, b.BindingIdentifier.Data)
				}
			default:
				return nil, false, nil
			}
		case item.Statement != nil:
			s := item.Statement

			switch {
			case s.Type == javascript.StatementReturn:
				return nil, false, nil
			case s.VariableStatement != nil:
				for _, v := range s.VariableStatement.VariableDeclarationList {
					if v.BindingIdentifier == nil {
						return nil, false, nil
					}

					names = append(names, v.BindingIdentifier.Data)
				}
			case s.ExpressionStatement == nil:
				return nil, false, nil
			}
		}
	}

	return names, true, nil
}
