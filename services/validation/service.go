package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailprobe/internal/enum"
	mperrors "github.com/customeros/mailprobe/internal/errors"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/metrics"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/tracing"
	"github.com/customeros/mailprobe/services/blacklist"
	"github.com/customeros/mailprobe/services/cache"
	"github.com/customeros/mailprobe/services/dns"
)

// Prober is the SMTP side of the pipeline.
type Prober interface {
	Probe(ctx context.Context, req models.ProbeRequest) *models.ProbeResult
	CatchAll(ctx context.Context, domain string, mx []string) (bool, error)
}

// Breaker gates SMTP probing.
type Breaker interface {
	IsOpen(ctx context.Context) bool
	RecordFailure(ctx context.Context) error
	RecordSuccess(ctx context.Context) error
	RecordFallback(ctx context.Context)
}

type Service struct {
	log       logger.Logger
	catalog   *Catalog
	dns       *dns.Service
	blacklist *blacklist.Service
	prober    Prober
	breaker   Breaker
	cache     *cache.Service
}

func NewService(log logger.Logger, catalog *Catalog, dnsService *dns.Service, blacklistService *blacklist.Service,
	prober Prober, breaker Breaker, cacheService *cache.Service) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Service{
		log:       log,
		catalog:   catalog,
		dns:       dnsService,
		blacklist: blacklistService,
		prober:    prober,
		breaker:   breaker,
		cache:     cacheService,
	}
}

// Validate runs the full pipeline for one address. It always returns a
// well-formed result; stage failures are reported through status and reason.
func (s *Service) Validate(ctx context.Context, email string, flags models.ValidationFlags) (result *models.ValidationResult) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ValidationService.Validate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEmail(span, email)
	tracing.LogObjectAsJson(span, "flags", flags)

	started := time.Now()
	result = models.NewValidationResult(email)
	defer func() {
		if r := recover(); r != nil {
			err := errors.Errorf("%v", r)
			tracing.TraceErr(span, err)
			s.log.Errorf("Unexpected error validating %s: %v", email, r)
			result = models.NewValidationResult(email)
			result.Finish(enum.StatusUnknown, enum.SubStatusUnexpectedError, fmt.Sprintf("Validation error: %v", r))
		}
		metrics.ObserveValidation(result.Status.String(), result.ValidationMethod.String(), started)
		span.LogFields(log.String("status", result.Status.String()), log.Int("score", result.DeliverabilityScore))
	}()

	address, ok := ParseAddress(email)
	if !ok {
		s.log.Debugf("Validation stopped at syntax check for %s", email)
		return result.Finish(enum.StatusUndeliverable, enum.SubStatusInvalidEmail, "Invalid email format")
	}
	result.Details.General.Domain = address.Domain
	tracing.TagDomain(span, address.Domain)

	cacheKey := flags.Key() + ":" + strings.ToLower(address.Email)
	var cached models.ValidationResult
	if s.cache.GetJSON(ctx, enum.CacheFullResult, cacheKey, &cached) {
		span.LogFields(log.Bool("cache.hit", true))
		cached.Email = email
		return &cached
	}

	if (flags.CheckSMTP || flags.CheckCatchAll) && s.breaker.IsOpen(ctx) {
		s.log.Infof("Circuit breaker open, using DNS validation for %s", email)
		s.breaker.RecordFallback(ctx)
		return s.ValidateDNSOnly(ctx, email)
	}

	result = s.runPipeline(ctx, result, address, flags)
	if result.Status != enum.StatusUnknown {
		s.cache.SetJSON(ctx, enum.CacheFullResult, cacheKey, result)
	}
	return result
}

func (s *Service) runPipeline(ctx context.Context, result *models.ValidationResult, address models.EmailAddress, flags models.ValidationFlags) *models.ValidationResult {
	domain := address.Domain
	result.ValidationMethod = enum.MethodDNS
	result.Details.Attributes.NumericalChars, result.Details.Attributes.AlphabeticalChars, result.Details.Attributes.SymbolChars =
		CharacterCounts(address.Local)

	var mx []models.MXRecord
	if flags.CheckMX {
		var err error
		mx, err = s.lookupMX(ctx, domain)
		if err != nil {
			return result.Finish(enum.StatusUnknown, enum.SubStatusTimeout, "DNS lookup timeout")
		}
		if len(mx) == 0 {
			return result.Finish(enum.StatusUndeliverable, enum.SubStatusInvalidDomain, "No MX records found")
		}
		s.setMailServer(result, mx)
	}

	if flags.CheckDisposable {
		attrs := s.catalog.Attributes(address)
		attrs.Disposable = s.isDisposable(ctx, domain)
		result.Details.Attributes = attrs
		if attrs.Disposable {
			return result.Finish(enum.StatusUndeliverable, enum.SubStatusDisposableEmail, "Disposable email address")
		}
	}

	if flags.CheckBlacklist {
		info := s.checkBlacklist(ctx, domain, mx)
		result.Details.Blacklist = info
		if info.IsBlacklisted {
			return result.Finish(enum.StatusUndeliverable, enum.SubStatusBlacklisted,
				"Domain blacklisted: "+strings.Join(info.Reasons, ", "))
		}
	}

	hosts := models.MXHosts(mx)
	catchAll, catchAllKnown := false, false
	if flags.CheckCatchAll && len(hosts) > 0 {
		catchAll, catchAllKnown = s.cache.GetFlag(ctx, enum.CacheCatchAll, domain)
	}

	if flags.CheckSMTP && len(hosts) > 0 {
		probe := s.prober.Probe(ctx, models.ProbeRequest{
			Email:         address.Email,
			Domain:        domain,
			MXHosts:       hosts,
			CheckCatchAll: flags.CheckCatchAll && !catchAllKnown,
		})
		s.recordProbeOutcome(ctx, probe)
		result.ValidationMethod = enum.MethodSMTP
		result.Details.Attributes.MailboxFull = probe.MailboxFull
		if probe.CatchAllTested {
			catchAll, catchAllKnown = probe.CatchAll, true
			s.cache.SetFlag(ctx, enum.CacheCatchAll, domain, catchAll)
		}
		if !probe.Exists {
			return result.Finish(probe.Status, probe.SubStatus, probe.Reason)
		}
	}

	if flags.CheckCatchAll && len(hosts) > 0 {
		if !catchAllKnown {
			result.ValidationMethod = enum.MethodSMTP
			detected, err := s.prober.CatchAll(ctx, domain, hosts)
			switch {
			case errors.Is(err, mperrors.ErrSMTPSlotUnavailable):
				s.log.Warnf("Catch-all check skipped for %s: %v", domain, err)
			case err != nil:
				s.log.Warnf("Catch-all check failed for %s: %v", domain, err)
				s.recordProbeOutcome(ctx, &models.ProbeResult{TransportFailure: true})
			default:
				s.recordProbeOutcome(ctx, &models.ProbeResult{})
				catchAll = detected
				s.cache.SetFlag(ctx, enum.CacheCatchAll, domain, catchAll)
			}
		}
		result.Details.Attributes.CatchAll = catchAll
		if catchAll {
			result.Finish(enum.StatusRisky, enum.SubStatusLowDeliverability, "Catch-all domain")
		} else {
			result.Finish(enum.StatusDeliverable, enum.SubStatusNone, "All validations passed")
		}
	} else {
		result.Finish(enum.StatusDeliverable, enum.SubStatusNone, "Basic validations passed")
	}

	result.IsValid = true
	result.DeliverabilityScore = Score(result)
	result.RiskLevel = RiskFromScore(result.DeliverabilityScore)
	if result.Details.Attributes.CatchAll {
		result.RiskLevel = enum.RiskHigh
	}
	return result
}

// ValidateDNSOnly scores an address from DNS evidence alone. It never opens an
// SMTP connection.
func (s *Service) ValidateDNSOnly(ctx context.Context, email string) *models.ValidationResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ValidationService.ValidateDNSOnly")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEmail(span, email)

	result := models.NewValidationResult(email)
	result.ValidationMethod = enum.MethodDNS

	address, ok := ParseAddress(email)
	if !ok {
		return result.Finish(enum.StatusUndeliverable, enum.SubStatusInvalidEmail, "Invalid email format")
	}
	domain := address.Domain
	result.Details.General.Domain = domain

	if s.catalog.IsExample(domain) {
		result.Finish(enum.StatusRisky, enum.SubStatusLowDeliverability, "Example/Test domain")
		result.IsValid = true
		result.DeliverabilityScore = 40
		result.RiskLevel = RiskFromScore(result.DeliverabilityScore)
		return result
	}
	if s.isDisposable(ctx, domain) {
		result.Details.Attributes.Disposable = true
		return result.Finish(enum.StatusUndeliverable, enum.SubStatusDisposableEmail, "Disposable email domain")
	}

	mx, err := s.lookupMX(ctx, domain)
	if err != nil {
		return result.Finish(enum.StatusUnknown, enum.SubStatusTimeout, "DNS lookup timeout")
	}
	if mx == nil {
		mx = []models.MXRecord{}
	}
	heuristic := s.dns.Heuristic(ctx, domain, mx)
	s.setMailServer(result, mx)

	catchAll := len(mx) > 0 && s.catalog.LikelyCatchAll(mx[0].Host)
	confidence := heuristic.Confidence
	switch {
	case len(mx) == 0:
		result.Finish(enum.StatusUndeliverable, enum.SubStatusInvalidDomain, "No MX records found")
	case confidence >= 0.8:
		result.Finish(enum.StatusDeliverable, enum.SubStatusNone, "High confidence in domain validity")
		result.IsValid = true
	case confidence >= 0.5:
		result.Finish(enum.StatusRisky, enum.SubStatusLowDeliverability, "Medium confidence in domain validity")
		result.IsValid = true
	default:
		result.Finish(enum.StatusUndeliverable, enum.SubStatusInvalidDomain, "Low confidence in domain validity")
	}

	score := int(confidence * 100)
	if score > 80 {
		score = 80
	}
	if catchAll {
		if score > 50 {
			score = 50
		}
		result.Finish(enum.StatusRisky, enum.SubStatusLowDeliverability, "Catch-all domain detected via DNS")
		result.IsValid = true
	}

	attrs := s.catalog.Attributes(address)
	attrs.Disposable = false
	attrs.CatchAll = catchAll
	result.Details.Attributes = attrs

	if result.Status == enum.StatusUndeliverable {
		score = 0
		result.IsValid = false
	}
	result.DeliverabilityScore = score
	result.RiskLevel = RiskFromScore(score)
	span.LogFields(log.Float64("confidence", confidence), log.Bool("catch_all", catchAll))
	return result
}

func (s *Service) setMailServer(result *models.ValidationResult, mx []models.MXRecord) {
	if len(mx) == 0 {
		return
	}
	primary := mx[0].Host
	result.Details.MailServer = models.MailServerInfo{
		SMTPProvider: s.catalog.Provider(primary),
		MXRecord:     primary,
		ImplicitMX:   primary,
	}
}

// lookupMX returns cached MX records when present. Only a DNS timeout is an error.
func (s *Service) lookupMX(ctx context.Context, domain string) ([]models.MXRecord, error) {
	mx, err := cache.Remember(ctx, s.cache, enum.CacheMX, domain, func(ctx context.Context) ([]models.MXRecord, error) {
		return s.dns.LookupMX(ctx, domain)
	})
	if err != nil {
		if errors.Is(err, mperrors.ErrDNSTimeout) {
			return nil, err
		}
		s.log.Warnf("MX lookup for %s failed: %v", domain, err)
		return nil, nil
	}
	return mx, nil
}

func (s *Service) isDisposable(ctx context.Context, domain string) bool {
	if value, found := s.cache.GetFlag(ctx, enum.CacheDisposable, domain); found {
		return value
	}
	disposable := s.catalog.IsDisposable(domain)
	s.cache.SetFlag(ctx, enum.CacheDisposable, domain, disposable)
	return disposable
}

func (s *Service) checkBlacklist(ctx context.Context, domain string, mx []models.MXRecord) models.BlacklistInfo {
	info, err := cache.Remember(ctx, s.cache, enum.CacheBlacklist, domain, func(ctx context.Context) (models.BlacklistInfo, error) {
		ips := s.blacklist.CollectIPs(ctx, domain, mx)
		return *s.blacklist.Check(ctx, domain, ips), nil
	})
	if err != nil {
		s.log.Warnf("Blacklist check for %s failed: %v", domain, err)
		return models.NewBlacklistInfo()
	}
	return info
}

// recordProbeOutcome feeds the breaker one failure per exchanger that failed at
// the transport level, then a success if an exchanger answered. A skipped probe
// never reached the network and records nothing.
func (s *Service) recordProbeOutcome(ctx context.Context, probe *models.ProbeResult) {
	if probe.Skipped {
		return
	}
	for i := 0; i < probe.FailedSessions(); i++ {
		if err := s.breaker.RecordFailure(ctx); err != nil {
			s.log.Warnf("Circuit breaker update failed: %v", err)
		}
	}
	if probe.TransportFailure {
		return
	}
	if err := s.breaker.RecordSuccess(ctx); err != nil {
		s.log.Warnf("Circuit breaker update failed: %v", err)
	}
}
