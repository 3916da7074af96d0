package dns

import (
	"context"
	"math"
	"strings"

	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/tracing"
	"github.com/customeros/mailprobe/internal/utils"
)

const (
	weightMX        = 0.4
	weightA         = 0.2
	weightSPF       = 0.2
	weightSecondary = 0.2
)

var majorMailHosts = []string{"google", "outlook", "microsoft", "amazon", "protonmail"}

type Service struct {
	resolver Resolver
}

func NewService(resolver Resolver) *Service {
	return &Service{resolver: resolver}
}

func (s *Service) LookupMX(ctx context.Context, domain string) ([]models.MXRecord, error) {
	return s.resolver.LookupMX(ctx, domain)
}

func (s *Service) LookupA(ctx context.Context, host string) []string {
	addresses, _ := s.resolver.LookupA(ctx, host)
	return addresses
}

// LookupSPF returns the first TXT record starting with v=spf1.
func (s *Service) LookupSPF(ctx context.Context, domain string) string {
	records, _ := s.resolver.LookupTXT(ctx, domain)
	for _, record := range records {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(record)), "v=spf1") {
			return record
		}
	}
	return ""
}

// Heuristic gathers MX, A and SPF evidence and scores it. When mx is non-nil it is
// used instead of a fresh MX lookup.
func (s *Service) Heuristic(ctx context.Context, domain string, mx []models.MXRecord) *models.DNSHeuristic {
	span, ctx := tracing.StartTracerSpan(ctx, "DNSService.Heuristic")
	defer span.Finish()
	tracing.TagDomain(span, domain)

	if mx == nil {
		mx, _ = s.resolver.LookupMX(ctx, domain)
	}
	result := &models.DNSHeuristic{
		Domain:    domain,
		MXRecords: mx,
		ARecords:  s.LookupA(ctx, domain),
		SPF:       s.LookupSPF(ctx, domain),
	}
	result.Secondary = s.secondaryChecks(ctx, mx)
	result.Confidence = Confidence(len(mx) > 0, len(result.ARecords) > 0, result.SPF != "", result.Secondary)

	tracing.LogObjectAsJson(span, "heuristic", result)
	return result
}

func (s *Service) secondaryChecks(ctx context.Context, mx []models.MXRecord) models.SecondaryDNSChecks {
	checks := models.SecondaryDNSChecks{HasBackupMX: len(mx) > 1}
	if len(mx) == 0 {
		return checks
	}
	checks.ValidMXSyntax = true
	for _, record := range mx {
		if !IsValidHostname(record.Host) {
			checks.ValidMXSyntax = false
			break
		}
	}
	primary := strings.ToLower(mx[0].Host)
	checks.MXHasARecord = len(s.LookupA(ctx, primary)) > 0
	checks.UsesMajorHost = utils.ContainsAny(primary, majorMailHosts)
	return checks
}

// Confidence combines the DNS signals into a value in [0,1], rounded to two decimals.
func Confidence(hasMX, hasA, hasSPF bool, secondary models.SecondaryDNSChecks) float64 {
	score := 0.0
	if hasMX {
		score += weightMX
	}
	if hasA {
		score += weightA
	}
	if hasSPF {
		score += weightSPF
	}
	score += float64(secondary.Passed()) / 4 * weightSecondary
	return math.Round(score*100) / 100
}

func IsValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 255 {
		return false
	}
	hostname = strings.TrimSuffix(hostname, ".")
	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}
