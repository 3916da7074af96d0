package models

import (
	"github.com/customeros/mailprobe/internal/enum"
)

// ValidationFlags toggles the optional pipeline stages.
type ValidationFlags struct {
	CheckMX         bool `json:"check_mx"`
	CheckSMTP       bool `json:"check_smtp"`
	CheckDisposable bool `json:"check_disposable"`
	CheckCatchAll   bool `json:"check_catch_all"`
	CheckBlacklist  bool `json:"check_blacklist"`
}

func AllChecks() ValidationFlags {
	return ValidationFlags{
		CheckMX:         true,
		CheckSMTP:       true,
		CheckDisposable: true,
		CheckCatchAll:   true,
		CheckBlacklist:  true,
	}
}

// Key is a stable representation used to partition cached results.
func (f ValidationFlags) Key() string {
	bit := func(b bool) byte {
		if b {
			return '1'
		}
		return '0'
	}
	return string([]byte{bit(f.CheckMX), bit(f.CheckSMTP), bit(f.CheckDisposable), bit(f.CheckCatchAll), bit(f.CheckBlacklist)})
}

type EmailAddress struct {
	Email  string
	Local  string
	Domain string
}

type ValidationResult struct {
	Email               string                `json:"email"`
	IsValid             bool                  `json:"is_valid"`
	Status              enum.ValidationStatus `json:"status"`
	RiskLevel           enum.RiskLevel        `json:"risk_level"`
	DeliverabilityScore int                   `json:"deliverability_score"`
	ValidationMethod    enum.ValidationMethod `json:"validation_method"`
	Details             ValidationDetails     `json:"details"`
}

type ValidationDetails struct {
	General    GeneralInfo     `json:"general"`
	Attributes EmailAttributes `json:"attributes"`
	MailServer MailServerInfo  `json:"mail_server"`
	Blacklist  BlacklistInfo   `json:"blacklist"`
	SubStatus  enum.SubStatus  `json:"sub_status,omitempty"`
}

type GeneralInfo struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

type EmailAttributes struct {
	FreeEmail         bool `json:"free_email"`
	RoleAccount       bool `json:"role_account"`
	Disposable        bool `json:"disposable"`
	CatchAll          bool `json:"catch_all"`
	HasPlusTag        bool `json:"has_plus_tag"`
	MailboxFull       bool `json:"mailbox_full"`
	NoReply           bool `json:"no_reply"`
	SystemGenerated   bool `json:"system_generated"`
	NumericalChars    int  `json:"numerical_chars"`
	AlphabeticalChars int  `json:"alphabetical_chars"`
	SymbolChars       int  `json:"symbol_chars"`
}

type MailServerInfo struct {
	SMTPProvider string `json:"smtp_provider,omitempty"`
	MXRecord     string `json:"mx_record,omitempty"`
	ImplicitMX   string `json:"implicit_mx,omitempty"`
}

type BlacklistInfo struct {
	IsBlacklisted   bool               `json:"is_blacklisted"`
	ListsFound      []string           `json:"blacklists_found"`
	Reasons         []string           `json:"blacklist_reasons"`
	ReputationScore int                `json:"reputation_score"`
	LastChecked     string             `json:"last_checked,omitempty"`
	Extended        *ExtendedBlacklist `json:"extended,omitempty"`
}

// ExtendedBlacklist carries the list counts of a wider reputation scan. It never
// influences ReputationScore.
type ExtendedBlacklist struct {
	MajorLists    int `json:"major_lists"`
	MinorLists    int `json:"minor_lists"`
	SpamTrapLists int `json:"spam_trap_lists"`
}

func NewBlacklistInfo() BlacklistInfo {
	return BlacklistInfo{
		ListsFound:      []string{},
		Reasons:         []string{},
		ReputationScore: 100,
	}
}

// NewValidationResult returns the pre-pipeline shape: unknown, not valid, high risk.
func NewValidationResult(email string) *ValidationResult {
	return &ValidationResult{
		Email:            email,
		Status:           enum.StatusUnknown,
		RiskLevel:        enum.RiskHigh,
		ValidationMethod: enum.MethodSMTP,
		Details: ValidationDetails{
			Blacklist: NewBlacklistInfo(),
			SubStatus: enum.SubStatusNoConnect,
		},
	}
}

// Finish sets a terminal status with its reason.
func (r *ValidationResult) Finish(status enum.ValidationStatus, subStatus enum.SubStatus, reason string) *ValidationResult {
	r.Status = status
	r.Details.SubStatus = subStatus
	r.Details.General.Reason = reason
	return r
}
