package dynamodb

import (
	"fmt"
	"strconv"
	"strings"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/releasepub/internal/filter"
)

var dynamoOps = map[filter.Op]string{
	filter.Eq: "=",
	filter.Ne: "<>",
	filter.Lt: "<",
	filter.Le: "<=",
	filter.Gt: ">",
	filter.Ge: ">=",
}

// compiledFilter is a filter tree rendered as DynamoDB expressions. When the
// tree pins the partition key with a top-level equality, keyCondition is set
// and the filter can be served by Query instead of Scan.
type compiledFilter struct {
	keyCondition string
	filter       string
	names        map[string]string
	values       map[string]ddbtypes.AttributeValue
}

type compiler struct {
	names      map[string]string
	values     map[string]ddbtypes.AttributeValue
	fieldAlias map[string]string
}

func compileFilter(e filter.Expr) (*compiledFilter, error) {
	c := &compiler{
		names:      map[string]string{},
		values:     map[string]ddbtypes.AttributeValue{},
		fieldAlias: map[string]string{},
	}
	out := &compiledFilter{}

	rest := e
	if all, ok := e.(filter.All); ok {
		var remaining filter.All
		for _, term := range all {
			cond, isCond := term.(filter.Condition)
			if out.keyCondition == "" && isCond && cond.Field == attrPartitionKey && cond.Op == filter.Eq {
				kc, err := c.render(cond)
				if err != nil {
					return nil, err
				}
				out.keyCondition = kc
				continue
			}
			remaining = append(remaining, term)
		}
		rest = remaining
		if len(remaining) == 0 {
			rest = nil
		}
	}

	if rest != nil {
		f, err := c.render(rest)
		if err != nil {
			return nil, err
		}
		out.filter = f
	}
	out.names = c.names
	out.values = c.values
	return out, nil
}

func (c *compiler) render(e filter.Expr) (string, error) {
	switch n := e.(type) {
	case filter.Condition:
		op, ok := dynamoOps[n.Op]
		if !ok {
			return "", fmt.Errorf("unsupported filter operator %q", n.Op)
		}
		return c.name(n.Field) + " " + op + " " + c.value(n.Value), nil
	case filter.All:
		return c.group(n, " AND ")
	case filter.Any:
		return c.group(n, " OR ")
	default:
		return "", fmt.Errorf("unsupported filter node %T", e)
	}
}

func (c *compiler) group(terms []filter.Expr, sep string) (string, error) {
	if len(terms) == 0 {
		return "", fmt.Errorf("empty filter group")
	}
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		s, err := c.render(t)
		if err != nil {
			return "", err
		}
		if isGroup(t) {
			s = "(" + s + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep), nil
}

func isGroup(e filter.Expr) bool {
	switch g := e.(type) {
	case filter.All:
		return len(g) > 1
	case filter.Any:
		return len(g) > 1
	}
	return false
}

func (c *compiler) name(field string) string {
	if alias, ok := c.fieldAlias[field]; ok {
		return alias
	}
	alias := "#f" + strconv.Itoa(len(c.fieldAlias))
	c.fieldAlias[field] = alias
	c.names[alias] = field
	return alias
}

// Datetime literals are stored as fixed-width UTC RFC 3339 strings, so
// string comparison orders them chronologically.
func (c *compiler) value(lit filter.Literal) string {
	ph := ":v" + strconv.Itoa(len(c.values))
	c.values[ph] = &ddbtypes.AttributeValueMemberS{Value: lit.Text}
	return ph
}
