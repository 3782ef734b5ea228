package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
)

var ErrInvalidExpression = errors.New("invalid expression")

// calcExprRe limits expressions to plain arithmetic before they reach the
// jq interpreter, which would otherwise accept full jq programs.
var calcExprRe = regexp.MustCompile(`^[0-9.+\-*/%() \t]+$`)

// Calculator evaluates arithmetic expressions with the gojq interpreter.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

func (c *Calculator) Spec() Spec {
	return Spec{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression and return the numeric result as text.",
		Params: []Param{
			{Name: "expression", Type: TypeString, Required: true, Description: "Arithmetic expression, e.g. \"12 * 7\" or \"(3 + 4) / 2\"."},
		},
	}
}

func (c *Calculator) Handle(ctx context.Context, args map[string]any) (string, error) {
	expr, _ := args["expression"].(string)
	return c.Eval(ctx, expr)
}

// Eval parses and runs the expression, returning the result formatted as a
// decimal string.
func (c *Calculator) Eval(ctx context.Context, expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || !calcExprRe.MatchString(expr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	iter := query.RunWithContext(ctx, nil)
	v, ok := iter.Next()
	if !ok {
		return "", fmt.Errorf("%w: no result", ErrInvalidExpression)
	}
	if err, isErr := v.(error); isErr {
		return "", fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return formatNumber(v)
}

func formatNumber(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return "", fmt.Errorf("%w: result is not finite", ErrInvalidExpression)
		}
		if n == math.Trunc(n) && math.Abs(n) < 1e15 {
			return strconv.FormatFloat(n, 'f', 0, 64), nil
		}
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: non-numeric result %T", ErrInvalidExpression, v)
	}
}
