package models

type MXRecord struct {
	Host       string `json:"host"`
	Preference uint16 `json:"preference"`
}

func MXHosts(records []MXRecord) []string {
	hosts := make([]string, 0, len(records))
	for _, r := range records {
		hosts = append(hosts, r.Host)
	}
	return hosts
}

// SecondaryDNSChecks are the four auxiliary signals of the DNS confidence model.
type SecondaryDNSChecks struct {
	ValidMXSyntax bool `json:"has_valid_mx_syntax"`
	MXHasARecord  bool `json:"mx_has_a_record"`
	HasBackupMX   bool `json:"domain_has_backup_mx"`
	UsesMajorHost bool `json:"uses_major_provider"`
}

func (c SecondaryDNSChecks) Passed() int {
	passed := 0
	for _, ok := range []bool{c.ValidMXSyntax, c.MXHasARecord, c.HasBackupMX, c.UsesMajorHost} {
		if ok {
			passed++
		}
	}
	return passed
}

type DNSHeuristic struct {
	Domain     string             `json:"domain"`
	MXRecords  []MXRecord         `json:"mx_records"`
	ARecords   []string           `json:"a_records"`
	SPF        string             `json:"spf,omitempty"`
	Secondary  SecondaryDNSChecks `json:"secondary"`
	Confidence float64            `json:"confidence"`
}
