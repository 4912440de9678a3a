package catalog

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Formula components are CEL expressions over the registry's metric
// variables, e.g. "100.0 - cv * 100.0". They are compiled once at catalog
// load time and evaluated per scoring call.

// formulaEnv declares every registry metric as a double-typed CEL variable.
func formulaEnv() (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(metricAccessors))
	for key := range metricAccessors {
		opts = append(opts, cel.Variable(key, cel.DoubleType))
	}
	return cel.NewEnv(opts...)
}

// compileFormula compiles a component's calculation expression and checks
// that it produces a numeric result.
func compileFormula(env *cel.Env, component, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("component %s: compile calculation: %w", component, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("component %s: calculation must return int or double, got %s", component, outputType)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("component %s: build program: %w", component, err)
	}
	return program, nil
}

// activation maps every registry metric to its float value for CEL.
// Formula mode trades fixed-point exactness for expression generality; the
// result is converted back to decimal and clamped by the evaluator.
func activation(m *domain.DerivedMetrics) map[string]any {
	act := make(map[string]any, len(metricAccessors))
	for key, acc := range metricAccessors {
		act[key] = acc(m).InexactFloat64()
	}
	return act
}

// toFloat converts a CEL evaluation result to float64.
func toFloat(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0
	}
}
