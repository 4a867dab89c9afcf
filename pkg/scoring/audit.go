package scoring

import "github.com/samber/lo"

// Risk bands.
const (
	BandLow    = "low"
	BandMedium = "medium"
	BandHigh   = "high"
)

// AuditReport summarizes the review of an application.
type AuditReport struct {
	Band            string   `json:"band"`
	Findings        []string `json:"findings"`
	Recommendations []string `json:"recommendations"`
	RiskFactors     []string `json:"risk_factors"`
}

// Band classifies a risk score.
func Band(score int) string {
	switch {
	case score <= 40:
		return BandLow
	case score <= 70:
		return BandMedium
	default:
		return BandHigh
	}
}

// Audit builds the audit report for an application's score and permissions.
func (e *Engine) Audit(score int, permissions []string) *AuditReport {
	report := &AuditReport{Band: Band(score)}

	switch report.Band {
	case BandLow:
		report.Findings = []string{"Clean security history", "Valid DID document", "Low-risk permissions requested"}
		report.Recommendations = []string{"Approve for standard processing"}
	case BandMedium:
		report.Findings = []string{"Valid DID document", "Elevated permissions requested"}
		report.Recommendations = []string{"Review claimed permissions before approval"}
	default:
		report.Findings = []string{"Valid DID document", "High-risk permission profile"}
		report.Recommendations = []string{"Require manual review and artifact audit", "Consider reducing granted permissions"}
	}

	if lo.Contains(permissions, PermissionHighValue) {
		report.RiskFactors = append(report.RiskFactors, "High-value transactions requested")
	}
	if lo.Contains(permissions, PermissionSensitive) {
		report.RiskFactors = append(report.RiskFactors, "Access to sensitive data requested")
	}
	if len(permissions) > broadScopeMinimum {
		report.RiskFactors = append(report.RiskFactors, "Broad permission scope")
	}
	if len(report.RiskFactors) == 0 {
		report.RiskFactors = []string{"Low transaction volume expected"}
	}

	return report
}
