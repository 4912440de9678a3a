// Package catalog loads, validates, and compiles the declarative rule
// catalog the engine interprets. A loaded catalog is an immutable snapshot;
// reload swaps the whole snapshot atomically so an in-flight evaluation
// never observes a mix of old and new rules.
package catalog

import (
	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Snapshot is a fully compiled, immutable rule catalog: the parsed model
// plus pre-compiled formula programs. Safe for unbounded concurrent use.
type Snapshot struct {
	*domain.Catalog

	formulas map[string]cel.Program
}

// Formula returns the compiled calculation program for a component.
func (s *Snapshot) Formula(component string) (cel.Program, bool) {
	p, ok := s.formulas[component]
	return p, ok
}

// EvalFormula runs a component's compiled formula against the metrics
// snapshot and returns the raw (unclamped) result.
func (s *Snapshot) EvalFormula(component string, m *domain.DerivedMetrics) (decimal.Decimal, bool) {
	program, ok := s.formulas[component]
	if !ok {
		return decimal.Zero, false
	}
	out, _, err := program.Eval(activation(m))
	if err != nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(toFloat(out)), true
}

// compile builds a Snapshot from a parsed catalog, compiling every formula
// component. Compile failures are load-time errors.
func compile(cat *domain.Catalog) (*Snapshot, error) {
	snap := &Snapshot{
		Catalog:  cat,
		formulas: make(map[string]cel.Program),
	}

	var env *cel.Env
	for _, comp := range cat.Components {
		if comp.Calculation == "" {
			continue
		}
		if env == nil {
			var err error
			env, err = formulaEnv()
			if err != nil {
				return nil, err
			}
		}
		program, err := compileFormula(env, comp.Name, comp.Calculation)
		if err != nil {
			return nil, err
		}
		snap.formulas[comp.Name] = program
	}

	return snap, nil
}
