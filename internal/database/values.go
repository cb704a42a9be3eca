package database

import (
	"strconv"
	"strings"

	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"
)

// Columns is the ordered list of the items table columns.
var Columns = []string{"id", "deleted", "type", "who", "time", "dead", "kids", "title", "content", "score", "url", "parent"}

// SQLValues renders the item as a SQL values tuple following Columns order:
//
//	(id, deleted, 'type', 'who', time, dead, '[k1, k2]', 'title', 'content', score, 'url', parent)
//
// Single quotes are doubled and booleans are written as 0 or 1.
func SQLValues(item *libfeed.Item) string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(strconv.FormatInt(item.ID, 10))
	b.WriteString(", ")
	b.WriteString(sqlBool(item.Deleted))
	b.WriteString(", ")
	b.WriteString(sqlString(item.Type))
	b.WriteString(", ")
	b.WriteString(sqlString(item.Author))
	b.WriteString(", ")
	b.WriteString(strconv.FormatInt(item.Time, 10))
	b.WriteString(", ")
	b.WriteString(sqlBool(item.Dead))
	b.WriteString(", ")
	b.WriteString(sqlString(FormatKids(item.Kids)))
	b.WriteString(", ")
	b.WriteString(sqlString(item.Title))
	b.WriteString(", ")
	b.WriteString(sqlString(item.Text))
	b.WriteString(", ")
	b.WriteString(strconv.FormatInt(item.Score, 10))
	b.WriteString(", ")
	b.WriteString(sqlString(item.URL))
	b.WriteString(", ")
	b.WriteString(strconv.FormatInt(item.Parent, 10))
	b.WriteByte(')')
	return b.String()
}

// InsertStatement renders one multi-row INSERT for the given items.
// verb is the leading keywords (e.g. `INSERT OR IGNORE INTO`) and suffix is appended as is.
func InsertStatement(verb string, items []*libfeed.Item, suffix string) string {
	var b strings.Builder
	b.WriteString(verb)
	b.WriteString(" items (")
	b.WriteString(strings.Join(Columns, ", "))
	b.WriteString(") VALUES ")
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(SQLValues(item))
	}
	if suffix != "" {
		b.WriteByte(' ')
		b.WriteString(suffix)
	}
	return b.String()
}

// FormatKids renders children IDs as `[1, 2, 3]`.
func FormatKids(kids []int64) string {
	parts := make([]string, len(kids))
	for i, kid := range kids {
		parts[i] = strconv.FormatInt(kid, 10)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParseKids parses the output of FormatKids.
func ParseKids(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, errors.Errorf("invalid kids: %s", s)
	}

	kids := []int64{}
	s = strings.TrimSpace(s[1 : len(s)-1])
	if s == "" {
		return kids, nil
	}

	for _, part := range strings.Split(s, ",") {
		kid, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "invalid kid")
		}
		kids = append(kids, kid)
	}
	return kids, nil
}

// ParseSQLValues parses a tuple rendered by SQLValues back into an item.
func ParseSQLValues(s string) (*libfeed.Item, error) {
	fields, err := splitTuple(s)
	if err != nil {
		return nil, err
	}
	if len(fields) != len(Columns) {
		return nil, errors.Errorf("expected %d fields, got %d", len(Columns), len(fields))
	}

	var (
		item libfeed.Item
		errs []error
	)
	integer := func(s string) int64 {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	item.ID = integer(fields[0])
	item.Deleted = fields[1] == "1"
	item.Type = fields[2]
	item.Author = fields[3]
	item.Time = integer(fields[4])
	item.Dead = fields[5] == "1"
	item.Title = fields[7]
	item.Text = fields[8]
	item.Score = integer(fields[9])
	item.URL = fields[10]
	item.Parent = integer(fields[11])

	item.Kids, err = ParseKids(fields[6])
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errors.Wrap(errs[0], "could not parse values")
	}
	return &item, nil
}

// splitTuple splits `(a, 'b''c', d)` into its unquoted fields.
func splitTuple(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return nil, errors.New("not a values tuple")
	}
	s = s[1 : len(s)-1]

	var (
		fields []string
		field  strings.Builder
		quoted bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quoted && c == '\'' && i+1 < len(s) && s[i+1] == '\'':
			field.WriteByte('\'')
			i++
		case c == '\'':
			quoted = !quoted
		case !quoted && c == ',':
			fields = append(fields, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteByte(c)
		}
	}
	if quoted {
		return nil, errors.New("unterminated string")
	}
	fields = append(fields, strings.TrimSpace(field.String()))

	return fields, nil
}

// NUL bytes are dropped, neither SQLite nor PostgreSQL accept them in a string literal.
var sqlEscaper = strings.NewReplacer("'", "''", "\x00", "")

func sqlString(s string) string {
	return "'" + sqlEscaper.Replace(s) + "'"
}

func sqlBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
