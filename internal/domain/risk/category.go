package risk

import "fmt"

type RiskCategory string

const (
	RiskCategoryLow    RiskCategory = "Low"
	RiskCategoryMedium RiskCategory = "Medium"
	RiskCategoryHigh   RiskCategory = "High"
)

func ParseRiskCategory(s string) (RiskCategory, error) {
	switch RiskCategory(s) {
	case RiskCategoryLow, RiskCategoryMedium, RiskCategoryHigh:
		return RiskCategory(s), nil
	}
	return "", fmt.Errorf("unknown risk category %q", s)
}

// Alertable reports whether the category warrants an active alert.
func (c RiskCategory) Alertable() bool {
	return c == RiskCategoryMedium || c == RiskCategoryHigh
}

func (c RiskCategory) String() string { return string(c) }

// Rank orders categories by severity; unknown values rank 0.
func (c RiskCategory) Rank() int {
	switch c {
	case RiskCategoryLow:
		return 1
	case RiskCategoryMedium:
		return 2
	case RiskCategoryHigh:
		return 3
	}
	return 0
}
