package core

import (
	"fmt"
	"strings"
	"sync"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"augustus/vectorized"
)

// FormulaParser turns SQL-like formula text into an expression tree.
// Identifiers keep the case they were written in; function names are
// matched to built-ins case-insensitively.
type FormulaParser struct {
	builtins map[string]string
}

var (
	builtinNamesOnce sync.Once
	builtinNames     map[string]string
)

// NewFormulaParser creates a parser aware of every built-in function name
func NewFormulaParser() *FormulaParser {
	builtinNamesOnce.Do(func() {
		builtinNames = make(map[string]string)
		for _, name := range NewFunctionTable().Names() {
			builtinNames[strings.ToLower(name)] = name
		}
	})
	return &FormulaParser{builtins: builtinNames}
}

const formulaPrefix = "SELECT "

// Parse parses one formula. Syntax errors are ValidationErrors.
func (p *FormulaParser) Parse(text string) (Expression, error) {
	source := formulaPrefix + text
	result, err := pg_query.Parse(source)
	if err != nil {
		return nil, NewValidationError("cannot parse formula %q: %v", text, err)
	}
	if len(result.Stmts) != 1 {
		return nil, NewValidationError("formula %q must be a single expression", text)
	}
	stmt := result.Stmts[0].Stmt.GetSelectStmt()
	if stmt == nil || len(stmt.TargetList) != 1 || len(stmt.FromClause) > 0 || stmt.WhereClause != nil {
		return nil, NewValidationError("formula %q must be a single expression", text)
	}
	target := stmt.TargetList[0].GetResTarget()
	if target == nil || target.Val == nil {
		return nil, NewValidationError("formula %q must be a single expression", text)
	}
	c := &formulaConverter{parser: p, source: source, text: text}
	return c.convert(target.Val)
}

type formulaConverter struct {
	parser *FormulaParser
	source string
	text   string
}

func (c *formulaConverter) fail(format string, args ...interface{}) error {
	return NewValidationError("formula %q: %s", c.text, fmt.Sprintf(format, args...))
}

func (c *formulaConverter) apply(function string, args ...*pg_query.Node) (Expression, error) {
	out := &Apply{Function: function, Arguments: make([]Expression, len(args))}
	for i, a := range args {
		e, err := c.convert(a)
		if err != nil {
			return nil, err
		}
		out.Arguments[i] = e
	}
	return out, nil
}

var formulaOperators = map[string]string{
	"+": "+", "-": "-", "*": "*", "/": "/", "%": "mod", "^": "pow",
	"=": "equal", "<>": "notEqual", "!=": "notEqual",
	"<": "lessThan", "<=": "lessOrEqual", ">": "greaterThan", ">=": "greaterOrEqual",
	"#": "xor",
}

func (c *formulaConverter) convert(node *pg_query.Node) (Expression, error) {
	switch {
	case node.GetColumnRef() != nil:
		ref := node.GetColumnRef()
		name, err := c.identifier(ref.Fields, int(ref.Location))
		if err != nil {
			return nil, err
		}
		return &FieldRef{Field: name}, nil

	case node.GetAConst() != nil:
		return c.constant(node.GetAConst())

	case node.GetAExpr() != nil:
		return c.aExpr(node.GetAExpr())

	case node.GetBoolExpr() != nil:
		b := node.GetBoolExpr()
		switch b.Boolop {
		case pg_query.BoolExprType_AND_EXPR:
			return c.apply("and", b.Args...)
		case pg_query.BoolExprType_OR_EXPR:
			return c.apply("or", b.Args...)
		default:
			return c.apply("not", b.Args...)
		}

	case node.GetNullTest() != nil:
		n := node.GetNullTest()
		if n.Nulltesttype == pg_query.NullTestType_IS_NOT_NULL {
			return c.apply("isNotMissing", n.Arg)
		}
		return c.apply("isMissing", n.Arg)

	case node.GetFuncCall() != nil:
		f := node.GetFuncCall()
		name, err := c.identifier(f.Funcname, int(f.Location))
		if err != nil {
			return nil, err
		}
		if canonical, ok := c.parser.builtins[strings.ToLower(name)]; ok {
			name = canonical
		}
		return c.apply(name, f.Args...)

	case node.GetTypeCast() != nil:
		t := node.GetTypeCast()
		ft, err := c.castType(t.TypeName)
		if err != nil {
			return nil, err
		}
		if k := t.Arg.GetAConst(); k != nil && k.GetSval() != nil {
			return NewConstant(k.GetSval().Sval, ft.DataType()), nil
		}
		inner, err := c.convert(t.Arg)
		if err != nil {
			return nil, err
		}
		return &castExpression{Expression: inner, Type: ft}, nil

	case node.GetCaseExpr() != nil:
		return c.caseExpr(node.GetCaseExpr())
	}
	return nil, c.fail("unsupported syntax")
}

func (c *formulaConverter) constant(k *pg_query.A_Const) (Expression, error) {
	switch {
	case k.Isnull:
		return nil, c.fail("NULL literals are not supported; use IS NULL")
	case k.GetIval() != nil:
		return NewConstant(fmt.Sprint(k.GetIval().Ival), vectorized.INTEGER), nil
	case k.GetFval() != nil:
		text := k.GetFval().Fval
		if strings.ContainsAny(text, ".eE") {
			return NewConstant(text, vectorized.DOUBLE), nil
		}
		return NewConstant(text, vectorized.INTEGER), nil
	case k.GetBoolval() != nil:
		return NewConstant(fmt.Sprint(k.GetBoolval().Boolval), vectorized.BOOLEAN), nil
	case k.GetSval() != nil:
		return &Constant{Value: k.GetSval().Sval}, nil
	}
	return nil, c.fail("unsupported literal")
}

func (c *formulaConverter) aExpr(e *pg_query.A_Expr) (Expression, error) {
	op := ""
	if len(e.Name) > 0 && e.Name[0].GetString_() != nil {
		op = e.Name[0].GetString_().Sval
	}
	switch e.Kind {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		if e.Lexpr == nil {
			switch op {
			case "-":
				return c.apply("negative", e.Rexpr)
			case "+":
				return c.convert(e.Rexpr)
			}
			return nil, c.fail("unsupported prefix operator %q", op)
		}
		function, ok := formulaOperators[op]
		if !ok {
			return nil, c.fail("unsupported operator %q", op)
		}
		return c.apply(function, e.Lexpr, e.Rexpr)

	case pg_query.A_Expr_Kind_AEXPR_IN:
		list := e.Rexpr.GetList()
		if list == nil {
			return nil, c.fail("IN needs a list of values")
		}
		function := "isIn"
		if op == "<>" {
			function = "isNotIn"
		}
		return c.apply(function, append([]*pg_query.Node{e.Lexpr}, list.Items...)...)

	case pg_query.A_Expr_Kind_AEXPR_BETWEEN, pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN:
		list := e.Rexpr.GetList()
		if list == nil || len(list.Items) != 2 {
			return nil, c.fail("BETWEEN needs two bounds")
		}
		function := "between"
		if e.Kind == pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN {
			function = "notBetween"
		}
		return c.apply(function, e.Lexpr, list.Items[0], list.Items[1])

	case pg_query.A_Expr_Kind_AEXPR_LIKE:
		like, err := c.apply("like", e.Lexpr, e.Rexpr)
		if err != nil {
			return nil, err
		}
		if op == "!~~" {
			return &Apply{Function: "not", Arguments: []Expression{like}}, nil
		}
		return like, nil
	}
	return nil, c.fail("unsupported expression")
}

func (c *formulaConverter) caseExpr(e *pg_query.CaseExpr) (Expression, error) {
	var otherwise Expression
	if e.Defresult != nil {
		var err error
		if otherwise, err = c.convert(e.Defresult); err != nil {
			return nil, err
		}
	}
	var subject Expression
	if e.Arg != nil {
		var err error
		if subject, err = c.convert(e.Arg); err != nil {
			return nil, err
		}
	}
	result := otherwise
	for i := len(e.Args) - 1; i >= 0; i-- {
		when := e.Args[i].GetCaseWhen()
		if when == nil {
			return nil, c.fail("malformed CASE")
		}
		condition, err := c.convert(when.Expr)
		if err != nil {
			return nil, err
		}
		if subject != nil {
			condition = &Apply{Function: "equal", Arguments: []Expression{subject, condition}}
		}
		then, err := c.convert(when.Result)
		if err != nil {
			return nil, err
		}
		args := []Expression{condition, then}
		if result != nil {
			args = append(args, result)
		}
		result = &Apply{Function: "if", Arguments: args}
	}
	return result, nil
}

var castTypes = map[string]vectorized.DataType{
	"int2": vectorized.INTEGER, "int4": vectorized.INTEGER, "int8": vectorized.INT64,
	"integer": vectorized.INTEGER, "bigint": vectorized.INT64,
	"float4": vectorized.FLOAT, "float8": vectorized.DOUBLE, "numeric": vectorized.DOUBLE,
	"double": vectorized.DOUBLE, "real": vectorized.FLOAT,
	"text": vectorized.STRING, "varchar": vectorized.STRING, "bpchar": vectorized.STRING,
	"bool": vectorized.BOOLEAN, "boolean": vectorized.BOOLEAN,
	"date": vectorized.DATE, "time": vectorized.TIME, "timestamp": vectorized.DATETIME,
}

func (c *formulaConverter) castType(name *pg_query.TypeName) (*vectorized.FieldType, error) {
	if name == nil || len(name.Names) == 0 {
		return nil, c.fail("missing cast type")
	}
	last := name.Names[len(name.Names)-1].GetString_()
	if last == nil {
		return nil, c.fail("missing cast type")
	}
	dt, ok := castTypes[strings.ToLower(last.Sval)]
	if !ok {
		return nil, c.fail("cannot cast to %s", last.Sval)
	}
	return vectorized.NewFieldType(dt, vectorized.CONTINUOUS), nil
}

// identifier rebuilds a possibly dotted name from the source text so that
// unquoted parts keep their case
func (c *formulaConverter) identifier(parts []*pg_query.Node, location int) (string, error) {
	names := make([]string, 0, len(parts))
	pos := location
	for j, part := range parts {
		s := part.GetString_()
		if s == nil {
			return "", c.fail("unsupported identifier")
		}
		if j > 0 {
			for pos < len(c.source) && c.source[pos] != '.' {
				pos++
			}
			pos++
		}
		if pos < 0 || pos >= len(c.source) {
			names = append(names, s.Sval)
			continue
		}
		if c.source[pos] == '"' {
			names = append(names, s.Sval)
			pos += len(s.Sval) + 2 + strings.Count(s.Sval, `"`)
			continue
		}
		end := pos
		for end < len(c.source) && isIdentifierByte(c.source[end]) {
			end++
		}
		raw := c.source[pos:end]
		if !strings.EqualFold(raw, s.Sval) {
			raw = s.Sval
		}
		names = append(names, raw)
		pos = end
	}
	return strings.Join(names, "."), nil
}

func isIdentifierByte(b byte) bool {
	return b == '_' || b == '$' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= 0x80
}

// castExpression converts its operand with an explicit ::type cast
type castExpression struct {
	Expression Expression
	Type       *vectorized.FieldType
}

func (c *castExpression) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error) {
	col, err := c.Expression.Evaluate(table, functions, perf)
	if err != nil {
		return nil, err
	}
	perf.Begin("cast")
	defer perf.End("cast")
	return vectorized.Cast(c.Type, col), nil
}

// Formula evaluates formula text, parsed once through the shared cache
type Formula struct {
	Text string
}

// Evaluate parses (or reuses) the tree and evaluates it
func (f *Formula) Evaluate(table *DataTable, functions *FunctionTable, perf Performance) (*vectorized.DataColumn, error) {
	expr, err := DefaultFormulaCache().Parse(f.Text)
	if err != nil {
		return nil, err
	}
	perf.Begin("Formula")
	defer perf.End("Formula")
	return expr.Evaluate(table, functions, perf)
}

func (f *Formula) String() string {
	return fmt.Sprintf("Formula(%q)", f.Text)
}
