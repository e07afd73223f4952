// Package filter builds the status store query filters.
//
// Filters are a small typed tree. String renders the OData-style text used by the
// status store query language (e.g. "OverallStage eq 'Scheduled' and Publish le
// datetime'2025-01-01T12:00:00Z'"); storage backends walk the same tree to produce
// their native expressions.
package filter

import (
	"strings"
	"time"
)

// Op is a comparison operator.
type Op string

// Comparison operators.
const (
	Eq Op = "eq"
	Ne Op = "ne"
	Lt Op = "lt"
	Le Op = "le"
	Gt Op = "gt"
	Ge Op = "ge"
)

// Field names understood by the status store.
const (
	FieldPartitionKey    = "PartitionKey"
	FieldRowKey          = "RowKey"
	FieldContentStage    = "ContentStage"
	FieldFilesStage      = "FilesStage"
	FieldPublishingStage = "PublishingStage"
	FieldOverallStage    = "OverallStage"
	FieldPublish         = "Publish"
)

// DateTimeLayout is the layout of datetime literals. Values are always rendered in UTC.
const DateTimeLayout = time.RFC3339

// Expr is a node of a filter tree.
type Expr interface {
	String() string
	expr()
}

// LiteralKind distinguishes string literals from datetime literals.
type LiteralKind int

const (
	StringLiteral LiteralKind = iota
	DateTimeLiteral
)

// Literal is the right-hand side of a condition.
type Literal struct {
	Kind LiteralKind
	Text string
}

// Str returns a string literal.
func Str(s string) Literal { return Literal{Kind: StringLiteral, Text: s} }

// DateTime returns a datetime literal normalized to UTC.
func DateTime(t time.Time) Literal {
	return Literal{Kind: DateTimeLiteral, Text: t.UTC().Format(DateTimeLayout)}
}

func (l Literal) String() string {
	quoted := "'" + strings.ReplaceAll(l.Text, "'", "''") + "'"
	if l.Kind == DateTimeLiteral {
		return "datetime" + quoted
	}
	return quoted
}

// Condition compares one field with a literal.
type Condition struct {
	Field string
	Op    Op
	Value Literal
}

func (Condition) expr() {}

func (c Condition) String() string {
	return c.Field + " " + string(c.Op) + " " + c.Value.String()
}

// Compare returns a condition node.
func Compare(field string, op Op, value Literal) Condition {
	return Condition{Field: field, Op: op, Value: value}
}

// Equal is shorthand for an eq comparison against a string literal.
func Equal(field, value string) Condition {
	return Compare(field, Eq, Str(value))
}

// All is a conjunction.
type All []Expr

func (All) expr() {}

func (a All) String() string {
	return join(a, " and ")
}

// Any is a disjunction.
type Any []Expr

func (Any) expr() {}

func (a Any) String() string {
	return join(a, " or ")
}

// And combines terms with "and".
func And(terms ...Expr) All { return All(terms) }

// Or combines terms with "or".
func Or(terms ...Expr) Any { return Any(terms) }

func join(terms []Expr, sep string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, operand(t))
	}
	return strings.Join(parts, sep)
}

// operand renders a child node, parenthesizing groups that hold more than one term.
func operand(e Expr) string {
	switch g := e.(type) {
	case All:
		if len(g) == 1 {
			return operand(g[0])
		}
		return "(" + g.String() + ")"
	case Any:
		if len(g) == 1 {
			return operand(g[0])
		}
		return "(" + g.String() + ")"
	default:
		return e.String()
	}
}
