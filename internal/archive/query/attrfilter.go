package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/obsarchive/internal/variable"
)

// operators are tried longest first so that "<=" is not read as "<".
var operators = []string{"<=", ">=", "<>", "!=", "=", "<", ">"}

type condition struct {
	code  variable.Varcode
	op    string
	text  string
	num   float64
	isNum bool
}

// AttrFilter is a parsed attribute filter: a comma-separated list of
// "code op value" conditions that must all hold.
type AttrFilter struct {
	conds []condition
}

// ParseAttrFilter parses expressions such as "B33007>50,B33196=0".
// Variable names are resolved through table, which may be nil.
// An empty expression yields a nil filter that matches everything.
func ParseAttrFilter(table *variable.Vartable, expr string) (*AttrFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	f := &AttrFilter{}
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		cond, err := parseCondition(table, part)
		if err != nil {
			return nil, err
		}
		f.conds = append(f.conds, cond)
	}
	return f, nil
}

func parseCondition(table *variable.Vartable, s string) (condition, error) {
	for _, op := range operators {
		i := strings.Index(s, op)
		if i <= 0 {
			continue
		}
		name := strings.TrimSpace(s[:i])
		value := strings.TrimSpace(s[i+len(op):])
		if value == "" {
			break
		}

		code, err := resolve(table, name)
		if err != nil {
			return condition{}, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, s, err)
		}
		if op == "!=" {
			op = "<>"
		}
		c := condition{code: code, op: op, text: value}
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			c.num, c.isNum = n, true
		}
		return c, nil
	}
	return condition{}, fmt.Errorf("%w: %q", ErrInvalidFilter, s)
}

// Match reports whether attrs satisfy every condition. A nil filter
// matches everything; a condition on a missing attribute does not match.
func (f *AttrFilter) Match(attrs []variable.Var) bool {
	if f == nil {
		return true
	}
	for _, c := range f.conds {
		if !c.match(attrs) {
			return false
		}
	}
	return true
}

func (c *condition) match(attrs []variable.Var) bool {
	for i := range attrs {
		a := &attrs[i]
		if a.Code() != c.code || !a.IsSet() {
			continue
		}

		var cmp int
		if a.Info().Type.IsNumeric() {
			if !c.isNum {
				return false
			}
			v, err := a.Float()
			if err != nil {
				return false
			}
			cmp = compareFloat(v, c.num)
		} else {
			cmp = strings.Compare(a.Text(), c.text)
		}
		return compareOp(c.op, cmp)
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareOp(op string, cmp int) bool {
	switch op {
	case "=":
		return cmp == 0
	case "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}
