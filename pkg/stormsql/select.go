package stormsql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/asdine/storm/v3/q"
	"github.com/pkg/errors"
	"github.com/xwb1989/sqlparser"
)

// A SelectClause contains all the parsed SQL data.
type SelectClause struct {
	SelectedFields  []string
	Count           bool
	Tablename       string
	Matcher         q.Matcher
	Skip            int
	Limit           int
	OrderBy         []string
	OrderByReversed bool
}

type parser struct {
	fields map[string]string
	dates  map[string]bool
}

// ParseSelect parses the given SELECT statement.
// fields maps column names to struct field names, unknown columns are used as is.
// String values compared to one of the dateFields (struct field names) are converted to Unix seconds.
func ParseSelect(sql string, fields map[string]string, dateFields ...string) (*SelectClause, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse SQL")
	}

	s, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, errors.New("not a select statement")
	}

	p := &parser{fields: fields, dates: map[string]bool{}}
	for _, field := range dateFields {
		p.dates[field] = true
	}
	var sc SelectClause

	// SELECT * ...
	// SELECT id,time ...
	for _, se := range s.SelectExprs {
		switch v := se.(type) {
		case *sqlparser.StarExpr:
			sc.SelectedFields = []string{}
		case *sqlparser.AliasedExpr:
			switch v := v.Expr.(type) {
			case *sqlparser.ColName:
				sc.SelectedFields = append(sc.SelectedFields, p.field(v))
			case *sqlparser.FuncExpr:
				if !v.Name.EqualString("count") {
					return nil, errors.Errorf("unsupported function: %s", v.Name.String())
				}
				sc.SelectedFields = []string{}
				sc.Count = true
			default:
				return nil, errors.New("unsupported select expression")
			}
		default:
			return nil, errors.New("unsupported select expression")
		}
	}

	// FROM items
	table, ok := s.From[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return nil, errors.New("unsupported FROM expression")
	}
	sc.Tablename = sqlparser.GetTableName(table.Expr).String()

	// WHERE
	sc.Matcher = q.And()
	if s.Where != nil {
		if sc.Matcher, err = p.where(s.Where.Expr); err != nil {
			return nil, err
		}
	}

	// LIMIT 5
	// LIMIT 2,5
	if s.Limit != nil {
		if s.Limit.Offset != nil {
			if sc.Skip, err = integer(s.Limit.Offset); err != nil {
				return nil, errors.Wrap(err, "invalid offset")
			}
		}
		if sc.Limit, err = integer(s.Limit.Rowcount); err != nil {
			return nil, errors.Wrap(err, "invalid limit")
		}
	}

	// ORDER BY time
	// ORDER BY time DESC
	// ORDER BY time DESC, id ASC     => All will be DESC due to strom limitation
	for _, ob := range s.OrderBy {
		col, ok := ob.Expr.(*sqlparser.ColName)
		if !ok {
			return nil, errors.New("unsupported ORDER BY expression")
		}
		if ob.Direction == sqlparser.DescScr {
			sc.OrderByReversed = true
		}
		sc.OrderBy = append(sc.OrderBy, p.field(col))
	}

	return &sc, nil
}

func (p *parser) field(col *sqlparser.ColName) string {
	name := col.Name.String()
	if field, ok := p.fields[strings.ToLower(name)]; ok {
		return field
	}
	return name
}

func (p *parser) where(expr sqlparser.Expr) (q.Matcher, error) {
	switch v := expr.(type) {
	//
	//
	//
	case *sqlparser.ComparisonExpr:
		col, ok := v.Left.(*sqlparser.ColName)
		if !ok {
			return nil, errors.New("left operand must be a column")
		}
		field := p.field(col)

		// Parse value
		var value any
		switch sqlvalue := v.Right.(type) {
		case sqlparser.BoolVal:
			value = bool(sqlvalue)
		case sqlparser.ValTuple:
			var tuple []any
			for _, t := range sqlvalue {
				val, ok := t.(*sqlparser.SQLVal)
				if !ok {
					return nil, errors.New("unsupported tuple value")
				}
				parsed, err := parseSQLVal(val, p.dates[field])
				if err != nil {
					return nil, err
				}
				tuple = append(tuple, parsed)
			}
			value = tuple
		case *sqlparser.SQLVal:
			var err error
			if v.Operator == sqlparser.LikeStr || v.Operator == sqlparser.NotLikeStr {
				value = string(sqlvalue.Val)
				break
			}
			if value, err = parseSQLVal(sqlvalue, p.dates[field]); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Errorf("unsupported value: %s", sqlparser.String(v.Right))
		}

		// Parse operator
		switch v.Operator {
		case sqlparser.EqualStr:
			return q.Eq(field, value), nil
		case sqlparser.NotEqualStr:
			return q.Not(q.Eq(field, value)), nil
		case sqlparser.GreaterThanStr:
			return q.Gt(field, value), nil
		case sqlparser.GreaterEqualStr:
			return q.Gte(field, value), nil
		case sqlparser.InStr:
			return q.In(field, value), nil
		case sqlparser.NotInStr:
			return q.Not(q.In(field, value)), nil
		case sqlparser.LessThanStr:
			return q.Lt(field, value), nil
		case sqlparser.LessEqualStr:
			return q.Lte(field, value), nil
		case sqlparser.LikeStr:
			return q.Re(field, like(fmt.Sprint(value))), nil
		case sqlparser.NotLikeStr:
			return q.Not(q.Re(field, like(fmt.Sprint(value)))), nil
		default:
			return nil, errors.Errorf("unsupported operator: %s", v.Operator)
		}
		//
		//
		//
	case *sqlparser.IsExpr:
		col, ok := v.Expr.(*sqlparser.ColName)
		if !ok {
			return nil, errors.New("IS operand must be a column")
		}

		switch v.Operator {
		case sqlparser.IsNotNullStr:
			return q.Not(q.Eq(p.field(col), nil)), nil
		case sqlparser.IsNullStr:
			return q.Eq(p.field(col), nil), nil
		default:
			return nil, errors.Errorf("unsupported operator: %s", v.Operator)
		}
		//
		//
		//
	case *sqlparser.AndExpr:
		left, err := p.where(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := p.where(v.Right)
		if err != nil {
			return nil, err
		}
		return q.And(left, right), nil
		//
		//
		//
	case *sqlparser.OrExpr:
		left, err := p.where(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := p.where(v.Right)
		if err != nil {
			return nil, err
		}
		return q.Or(left, right), nil
		//
		//
		//
	case *sqlparser.ParenExpr:
		return p.where(v.Expr)
	default:
		return nil, errors.Errorf("unsupported where expression: %s", sqlparser.String(expr))
	}
}

// parseSQLVal converts the value to the type used by items.
// When date is set, strings are parsed as dates and converted to Unix seconds.
func parseSQLVal(v *sqlparser.SQLVal, date bool) (value any, err error) {
	switch v.Type {
	case sqlparser.StrVal:
		value = string(v.Val)
		if !date {
			break
		}

		t, err := dateparse.ParseAny(string(v.Val))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid date %s", v.Val)
		}
		value = t.UTC().Unix()
	case sqlparser.IntVal:
		value, err = strconv.ParseInt(string(v.Val), 10, 64)
	case sqlparser.FloatVal:
		value, err = strconv.ParseFloat(string(v.Val), 64)
	case sqlparser.HexNum:
		value, err = strconv.ParseInt(strings.TrimPrefix(strings.ToLower(string(v.Val)), "0x"), 16, 64)
	case sqlparser.HexVal:
		value, err = v.HexDecode()
	case sqlparser.BitVal:
		value = len(v.Val) > 0 && v.Val[0] == '1'
	default:
		return nil, errors.New("unsupported value type")
	}

	return value, errors.Wrapf(err, "invalid value %s", v.Val)
}

func integer(expr sqlparser.Expr) (int, error) {
	v, ok := expr.(*sqlparser.SQLVal)
	if !ok || v.Type != sqlparser.IntVal {
		return 0, errors.New("not an integer")
	}
	return strconv.Atoi(string(v.Val))
}

// like converts a LIKE pattern to an anchored regular expression.
func like(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}
