// Package scoring computes application risk scores, audit reports and
// transaction authorization decisions.
package scoring

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"

	"github.com/agentattest/attest-core/pkg/registry"
)

// Permissions that raise an application's risk.
const (
	PermissionHighValue = "high-value"
	PermissionSensitive = "sensitive"
)

// Application risk weights.
const (
	baseRisk          = 30
	highValueRisk     = 30
	sensitiveRisk     = 25
	broadScopeRisk    = 15
	broadScopeMinimum = 3
)

// EngineConfig holds configuration for the scoring Engine.
type EngineConfig struct {
	// MaxTransactionValue is the limit applied to credentials without their own. Default: 10000.
	MaxTransactionValue float64

	// HighValueThreshold marks allowed transactions that need extra verification. Default: 5000.
	HighValueThreshold float64
}

// DefaultEngineConfig returns a default configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxTransactionValue: 10000,
		HighValueThreshold:  5000,
	}
}

// Engine scores applications and transactions.
type Engine struct {
	config *EngineConfig
}

// NewEngine creates an Engine. If config is nil, default configuration is used.
func NewEngine(config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	return &Engine{config: config}
}

// MaxTransactionValue returns the default per-credential limit.
func (e *Engine) MaxTransactionValue() float64 {
	return e.config.MaxTransactionValue
}

// ApplicationRisk scores the permissions an applicant claims, 0 to 100.
func (e *Engine) ApplicationRisk(permissions []string) int {
	score := baseRisk
	if lo.Contains(permissions, PermissionHighValue) {
		score += highValueRisk
	}
	if lo.Contains(permissions, PermissionSensitive) {
		score += sensitiveRisk
	}
	if len(permissions) > broadScopeMinimum {
		score += broadScopeRisk
	}
	return lo.Clamp(score, 0, 100)
}

// Decision is the outcome of a simulated transaction.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason"`
	RiskScore int    `json:"risk_score"`
}

// Decide authorizes a transaction of amount for a credential in status.
// A non-positive limit uses the engine default.
func (e *Engine) Decide(status registry.CredentialStatus, amount, limit float64) Decision {
	if limit <= 0 {
		limit = e.config.MaxTransactionValue
	}

	switch {
	case status == registry.CredentialRevoked:
		return Decision{Reason: "Credential is revoked", RiskScore: 100}
	case status == registry.CredentialExpired:
		return Decision{Reason: "Credential has expired", RiskScore: 90}
	case status != registry.CredentialActive:
		return Decision{Reason: fmt.Sprintf("Credential status %s does not permit transactions", status), RiskScore: 100}
	case limit > 0 && amount > limit:
		return Decision{
			Reason:    fmt.Sprintf("Amount $%s exceeds credential limit of $%s", formatAmount(amount), formatAmount(limit)),
			RiskScore: 80,
		}
	case amount > e.config.HighValueThreshold:
		return Decision{Allowed: true, Reason: "High-value transaction requires additional verification", RiskScore: 40}
	default:
		return Decision{Allowed: true, Reason: "Transaction approved", RiskScore: 10}
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
