package enum

type ValidationStatus string

const (
	StatusDeliverable   ValidationStatus = "deliverable"
	StatusUndeliverable ValidationStatus = "undeliverable"
	StatusRisky         ValidationStatus = "risky"
	StatusUnknown       ValidationStatus = "unknown"
)

func (t ValidationStatus) String() string {
	return string(t)
}

// SubStatus values are grouped by the status family they belong to.
type SubStatus string

const (
	SubStatusNone SubStatus = ""

	// undeliverable
	SubStatusInvalidEmail    SubStatus = "Invalid Email"
	SubStatusInvalidDomain   SubStatus = "Invalid Domain"
	SubStatusRejectedEmail   SubStatus = "Rejected Email"
	SubStatusInvalidSMTP     SubStatus = "Invalid SMTP"
	SubStatusDisposableEmail SubStatus = "Disposable Email"
	SubStatusBlacklisted     SubStatus = "Blacklisted"

	// risky
	SubStatusLowQuality        SubStatus = "Low Quality"
	SubStatusLowDeliverability SubStatus = "Low Deliverability"

	// unknown
	SubStatusNoConnect       SubStatus = "No Connect"
	SubStatusTimeout         SubStatus = "Timeout"
	SubStatusUnavailableSMTP SubStatus = "Unavailable SMTP"
	SubStatusUnexpectedError SubStatus = "Unexpected Error"
)

func (t SubStatus) String() string {
	return string(t)
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (t RiskLevel) String() string {
	return string(t)
}

type ValidationMethod string

const (
	MethodSMTP ValidationMethod = "smtp"
	MethodDNS  ValidationMethod = "dns"
)

func (t ValidationMethod) String() string {
	return string(t)
}
