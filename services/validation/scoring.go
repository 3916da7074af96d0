package validation

import (
	"github.com/customeros/mailprobe/internal/enum"
	"github.com/customeros/mailprobe/internal/models"
)

const (
	penaltyDisposable = 40
	penaltyCatchAll   = 50
	penaltyRole       = 20
	penaltyFree       = 10
	penaltyPlusTag    = 10
	penaltyNoReply    = 15
	penaltyRisky      = 30
	penaltyUnknown    = 40
)

// Score starts from 100, subtracts attribute and status penalties and clamps to
// [0,100]. Undeliverable always scores 0.
func Score(result *models.ValidationResult) int {
	if result.Status == enum.StatusUndeliverable {
		return 0
	}
	attrs := result.Details.Attributes
	score := 100
	if attrs.Disposable {
		score -= penaltyDisposable
	}
	if attrs.CatchAll {
		score -= penaltyCatchAll
	}
	if attrs.RoleAccount {
		score -= penaltyRole
	}
	if attrs.FreeEmail {
		score -= penaltyFree
	}
	if attrs.HasPlusTag {
		score -= penaltyPlusTag
	}
	if attrs.NoReply {
		score -= penaltyNoReply
	}

	switch result.Status {
	case enum.StatusRisky:
		score -= penaltyRisky
	case enum.StatusUnknown:
		score -= penaltyUnknown
	}
	return clamp(score)
}

func RiskFromScore(score int) enum.RiskLevel {
	switch {
	case score >= 80:
		return enum.RiskLow
	case score >= 60:
		return enum.RiskMedium
	default:
		return enum.RiskHigh
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
