package models

import "github.com/customeros/mailprobe/internal/enum"

type ProbeRequest struct {
	Email         string
	Domain        string
	MXHosts       []string
	CheckCatchAll bool
}

// ProbeResult is the outcome of one SMTP session sequence against a domain's exchangers.
// Skipped is set when no session was opened because no local slot freed up in time.
type ProbeResult struct {
	Exists            bool
	MailboxFull       bool
	CatchAll          bool
	CatchAllTested    bool
	TransportFailure  bool
	TransportFailures int
	Skipped           bool
	Code              int
	Message           string
	Host              string
	Status            enum.ValidationStatus
	SubStatus         enum.SubStatus
	Reason            string
}

// FailedSessions returns how many exchangers failed at the transport level.
func (r *ProbeResult) FailedSessions() int {
	if r.TransportFailure && r.TransportFailures == 0 {
		return 1
	}
	return r.TransportFailures
}
