package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
	"google.golang.org/genai"
)

const CalculateName = "calculate"

var enUS = message.NewPrinter(language.AmericanEnglish)

func Calculator() Tool {
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name: CalculateName,
			Description: "Evaluates a mathematical arithmetic expression and returns the result. " +
				"Supports +, -, *, /, %, and parentheses. " +
				"Use this when the user asks to calculate, compute, or do math.",
			Parameters: objectSchema(map[string]*genai.Schema{
				"expression": stringProp(`The arithmetic expression to evaluate, e.g. "145 * 3.5" or "(100 + 50) / 3"`),
			}, "expression"),
		},
		Handler: calculate,
	}
}

func calculate(_ context.Context, args map[string]any) (Result, error) {
	expression := strings.TrimSpace(stringArg(args, "expression"))
	if expression == "" {
		return errorResult("No expression provided"), nil
	}
	v, err := Evaluate(expression)
	switch {
	case errors.Is(err, ErrInvalidCharacter):
		return errorResult("Invalid expression: " + err.Error()), nil
	case errors.Is(err, ErrNotFinite):
		return errorResult("Expression did not produce a valid number"), nil
	case err != nil:
		return errorResult("Could not evaluate expression"), nil
	}

	rounded := math.Round(v*1e10) / 1e10
	return Result{
		"expression": expression,
		"result":     rounded,
		"formatted":  enUS.Sprint(number.Decimal(rounded, number.MaxFractionDigits(10))),
	}, nil
}

// stringArg renders args[key] as text; missing keys are "".
func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
