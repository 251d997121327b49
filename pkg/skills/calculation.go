package skills

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/theapemachine/a2a-payments/pkg/calc"
)

var (
	triggerPattern = regexp.MustCompile(`(?i)^\s*(?:calculate|compute|solve|what\s+is|what's|math)\b\s*:?`)
	residuePattern = regexp.MustCompile(`[^0-9+\-*/().\s]`)
)

type Calculation struct{}

func (Calculation) Handle(ctx context.Context, req *Request) (*Result, error) {
	expr := ExtractExpression(req.Text)

	if expr == "" {
		return Failed(
			`Please provide a mathematical expression, for example "Calculate 15 * 7".`,
			map[string]any{"expression": ""},
		), nil
	}

	value, err := calc.Evaluate(expr)

	if err != nil {
		return Failed(
			fmt.Sprintf("Could not evaluate %q: %v", expr, err),
			map[string]any{"expression": expr},
		), nil
	}

	return Completed(
		fmt.Sprintf("The result of %s is %s", expr, calc.Format(value)),
		CostCalculation,
		map[string]any{"expression": expr, "result": value},
	), nil
}

/*
ExtractExpression strips a leading trigger phrase and every character that
cannot be part of an arithmetic expression.
*/
func ExtractExpression(text string) string {
	expr := triggerPattern.ReplaceAllString(text, "")
	expr = residuePattern.ReplaceAllString(expr, "")

	return strings.Join(strings.Fields(expr), " ")
}
