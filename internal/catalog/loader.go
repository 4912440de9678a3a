package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrInvalidCatalog wraps any parse, validation, or compile failure.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Load parses, validates, and compiles a catalog document. It never leaves
// the caller without a catalog: on failure it returns the built-in default
// snapshot together with the error, so evaluation stays available in a
// degraded but defined mode while the cause is logged and alerted on.
func Load(source []byte) (*Snapshot, error) {
	cat, err := parseDocument(source)
	if err != nil {
		slog.Error("catalog load failed, serving built-in default",
			"fallback_version", DefaultVersion,
			"error", err,
		)
		return DefaultSnapshot(), fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	cat.Warnings = validate(cat)
	for _, w := range cat.Warnings {
		slog.Warn("catalog validation warning", "version", cat.Version, "warning", w)
	}

	snap, err := compile(cat)
	if err != nil {
		slog.Error("catalog compile failed, serving built-in default",
			"version", cat.Version,
			"fallback_version", DefaultVersion,
			"error", err,
		)
		return DefaultSnapshot(), fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	slog.Info("catalog loaded",
		"version", cat.Version,
		"components", len(cat.Components),
		"eligibility_rules", len(cat.Eligibility),
		"fraud_rules", len(cat.FraudRules),
		"warnings", len(cat.Warnings),
	)

	return snap, nil
}

// LoadFile loads a catalog document from disk.
func LoadFile(path string) (*Snapshot, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		slog.Error("catalog file unreadable, serving built-in default",
			"path", path,
			"fallback_version", DefaultVersion,
			"error", err,
		)
		return DefaultSnapshot(), fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return Load(source)
}

// validate collects non-fatal consistency warnings: the engine evaluates
// what the document says, but operators should know about these.
func validate(cat *domain.Catalog) []string {
	var warnings []string

	weightSum := decimal.Zero
	for _, comp := range cat.Components {
		weightSum = weightSum.Add(comp.Weight)

		if comp.Metric != "" && !KnownMetric(comp.Metric) {
			warnings = append(warnings,
				fmt.Sprintf("component %s references unknown metric %q (resolves to zero)", comp.Name, comp.Metric))
		}

		if len(comp.Tiers) > 0 && comp.Tiers[len(comp.Tiers)-1].Max != nil {
			warnings = append(warnings,
				fmt.Sprintf("component %s tiers are non-exhaustive; values past the last tier fall back to it", comp.Name))
		}
	}

	if !weightSum.Equal(decimal.NewFromInt(1)) {
		warnings = append(warnings,
			fmt.Sprintf("component weights sum to %s, not 1.0", weightSum.String()))
	}

	for _, rule := range cat.Eligibility {
		if !KnownMetric(rule.Metric) {
			warnings = append(warnings,
				fmt.Sprintf("eligibility rule %s references unknown metric %q (resolves to zero)", rule.ID, rule.Metric))
		}
	}
	for _, rule := range cat.FraudRules {
		if !KnownMetric(rule.Metric) {
			warnings = append(warnings,
				fmt.Sprintf("fraud rule %s references unknown metric %q (resolves to zero)", rule.ID, rule.Metric))
		}
	}

	if len(cat.RiskBands) == 0 {
		warnings = append(warnings, "no risk_categories defined; built-in LOW/MEDIUM/HIGH bands apply")
	}
	if len(cat.Loan.ByBand) == 0 {
		warnings = append(warnings, "no loan_parameters defined; built-in loan tables apply")
	}

	return warnings
}
