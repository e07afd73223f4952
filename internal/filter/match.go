package filter

import (
	"strings"
	"time"
)

// Match evaluates e against a record whose fields are resolved by lookup.
// Missing fields never satisfy a condition.
func Match(e Expr, lookup func(field string) (string, bool)) bool {
	switch n := e.(type) {
	case Condition:
		v, ok := lookup(n.Field)
		if !ok {
			return false
		}
		return compare(v, n.Op, n.Value)
	case All:
		for _, t := range n {
			if !Match(t, lookup) {
				return false
			}
		}
		return true
	case Any:
		for _, t := range n {
			if Match(t, lookup) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func compare(v string, op Op, lit Literal) bool {
	var c int
	if lit.Kind == DateTimeLiteral {
		got, err := time.Parse(DateTimeLayout, v)
		if err != nil {
			return false
		}
		want, err := time.Parse(DateTimeLayout, lit.Text)
		if err != nil {
			return false
		}
		c = got.Compare(want)
	} else {
		c = strings.Compare(v, lit.Text)
	}

	switch op {
	case Eq:
		return c == 0
	case Ne:
		return c != 0
	case Lt:
		return c < 0
	case Le:
		return c <= 0
	case Gt:
		return c > 0
	case Ge:
		return c >= 0
	}
	return false
}
