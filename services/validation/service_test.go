package validation

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/internal/enum"
	mperrors "github.com/customeros/mailprobe/internal/errors"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/services/blacklist"
	"github.com/customeros/mailprobe/services/cache"
	"github.com/customeros/mailprobe/services/dns"
)

type fixture struct {
	service  *Service
	resolver *dns.MockResolver
	prober   *MockProber
	breaker  *MockBreaker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	appLogger := logger.NewAppLogger(&logger.Config{LogLevel: "error"})
	appLogger.InitLogger()

	resolver := dns.NewMockResolver()
	blacklistService := blacklist.NewService(&config.BlacklistConfig{
		DomainZones:   []string{"zen.spamhaus.org"},
		IPZones:       []string{"sbl.spamhaus.org"},
		LookupTimeout: 1,
	}, resolver, appLogger)
	cacheService := cache.NewService(&config.CacheConfig{
		KeyPrefix:             "test:",
		TTLFullResult:         60,
		TTLMXRecords:          60,
		TTLBlacklist:          60,
		TTLDisposable:         60,
		TTLCatchAll:           60,
		EnableResultCache:     true,
		EnableMXCache:         true,
		EnableBlacklistCache:  true,
		EnableDisposableCache: true,
		EnableCatchAllCache:   true,
		EnableLocalCache:      true,
	}, nil, appLogger)

	prober := new(MockProber)
	breaker := new(MockBreaker)
	service := NewService(appLogger, DefaultCatalog(), dns.NewService(resolver), blacklistService, prober, breaker, cacheService)
	return &fixture{service: service, resolver: resolver, prober: prober, breaker: breaker}
}

func (f *fixture) withMX(domain string, hosts ...string) {
	for i, host := range hosts {
		f.resolver.MX[domain] = append(f.resolver.MX[domain], models.MXRecord{Host: host, Preference: uint16(10 * (i + 1))})
	}
}

func probeExists() *models.ProbeResult {
	return &models.ProbeResult{Exists: true, Code: 250, Status: enum.StatusDeliverable, CatchAllTested: true}
}

func TestValidate_InvalidSyntax(t *testing.T) {
	// Arrange
	f := newFixture(t)

	// Act
	result := f.service.Validate(context.Background(), "not-an-email", models.AllChecks())

	// Assert
	assert.Equal(t, enum.StatusUndeliverable, result.Status)
	assert.Equal(t, enum.SubStatusInvalidEmail, result.Details.SubStatus)
	assert.Equal(t, 0, result.DeliverabilityScore)
	assert.False(t, result.IsValid)
	assert.Empty(t, f.resolver.Queries())
	f.prober.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
}

func TestValidate_Deliverable(t *testing.T) {
	f := newFixture(t)
	f.withMX("acme.io", "mx1.acme.io")
	f.breaker.On("IsOpen", mock.Anything).Return(false)
	f.breaker.On("RecordSuccess", mock.Anything).Return(nil)
	f.prober.On("Probe", mock.Anything, mock.MatchedBy(func(req models.ProbeRequest) bool {
		return req.Email == "jane.doe@acme.io" && req.CheckCatchAll && len(req.MXHosts) == 1
	})).Return(probeExists()).Once()

	result := f.service.Validate(context.Background(), "jane.doe@acme.io", models.AllChecks())

	assert.Equal(t, enum.StatusDeliverable, result.Status)
	assert.True(t, result.IsValid)
	assert.Equal(t, "All validations passed", result.Details.General.Reason)
	assert.Equal(t, enum.MethodSMTP, result.ValidationMethod)
	assert.Equal(t, 100, result.DeliverabilityScore)
	assert.Equal(t, enum.RiskLow, result.RiskLevel)
	assert.Equal(t, "mx1.acme.io", result.Details.MailServer.MXRecord)
	assert.Equal(t, "acme.io", result.Details.General.Domain)
	f.prober.AssertExpectations(t)
}

func TestValidate_FullResultIsCached(t *testing.T) {
	f := newFixture(t)
	f.withMX("acme.io", "mx1.acme.io")
	f.breaker.On("IsOpen", mock.Anything).Return(false)
	f.breaker.On("RecordSuccess", mock.Anything).Return(nil)
	f.prober.On("Probe", mock.Anything, mock.Anything).Return(probeExists()).Once()

	first := f.service.Validate(context.Background(), "jane.doe@acme.io", models.AllChecks())
	second := f.service.Validate(context.Background(), "jane.doe@acme.io", models.AllChecks())

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.DeliverabilityScore, second.DeliverabilityScore)
	f.prober.AssertNumberOfCalls(t, "Probe", 1)
}

func TestValidate_NoMX(t *testing.T) {
	f := newFixture(t)
	f.breaker.On("IsOpen", mock.Anything).Return(false)

	result := f.service.Validate(context.Background(), "jane@nomx.io", models.AllChecks())

	assert.Equal(t, enum.StatusUndeliverable, result.Status)
	assert.Equal(t, enum.SubStatusInvalidDomain, result.Details.SubStatus)
	assert.Equal(t, "No MX records found", result.Details.General.Reason)
	assert.Equal(t, 0, result.DeliverabilityScore)
}

func TestValidate_MXTimeout(t *testing.T) {
	f := newFixture(t)
	f.resolver.Timeout["slow.io"] = true
	f.breaker.On("IsOpen", mock.Anything).Return(false)

	result := f.service.Validate(context.Background(), "jane@slow.io", models.AllChecks())

	assert.Equal(t, enum.StatusUnknown, result.Status)
	assert.Equal(t, enum.SubStatusTimeout, result.Details.SubStatus)
	assert.Equal(t, "DNS lookup timeout", result.Details.General.Reason)
}

func TestValidate_Disposable(t *testing.T) {
	f := newFixture(t)
	f.withMX("mailinator.com", "mail.mailinator.com")
	f.breaker.On("IsOpen", mock.Anything).Return(false)

	result := f.service.Validate(context.Background(), "someone@mailinator.com", models.AllChecks())

	assert.Equal(t, enum.StatusUndeliverable, result.Status)
	assert.Equal(t, enum.SubStatusDisposableEmail, result.Details.SubStatus)
	assert.True(t, result.Details.Attributes.Disposable)
	f.prober.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
}

func TestValidate_Blacklisted(t *testing.T) {
	f := newFixture(t)
	f.withMX("spam.io", "mx.spam.io")
	f.resolver.A["io.spam.zen.spamhaus.org"] = []string{"127.0.0.2"}
	f.breaker.On("IsOpen", mock.Anything).Return(false)

	result := f.service.Validate(context.Background(), "jane@spam.io", models.AllChecks())

	assert.Equal(t, enum.StatusUndeliverable, result.Status)
	assert.Equal(t, enum.SubStatusBlacklisted, result.Details.SubStatus)
	assert.Equal(t, "Domain blacklisted: zen.spamhaus.org: Listed", result.Details.General.Reason)
	assert.True(t, result.Details.Blacklist.IsBlacklisted)
	assert.Equal(t, 60, result.Details.Blacklist.ReputationScore)
}

func TestValidate_SMTPRejected(t *testing.T) {
	f := newFixture(t)
	f.withMX("acme.io", "mx1.acme.io")
	f.breaker.On("IsOpen", mock.Anything).Return(false)
	f.breaker.On("RecordSuccess", mock.Anything).Return(nil).Once()
	f.prober.On("Probe", mock.Anything, mock.Anything).Return(&models.ProbeResult{
		Code: 550, Status: enum.StatusUndeliverable, SubStatus: enum.SubStatusRejectedEmail, Reason: "User unknown",
	})

	result := f.service.Validate(context.Background(), "ghost@acme.io", models.AllChecks())

	assert.Equal(t, enum.StatusUndeliverable, result.Status)
	assert.Equal(t, enum.SubStatusRejectedEmail, result.Details.SubStatus)
	assert.Equal(t, "User unknown", result.Details.General.Reason)
	assert.Equal(t, 0, result.DeliverabilityScore)
	f.breaker.AssertNotCalled(t, "RecordFailure", mock.Anything)
}

func TestValidate_SMTPTransportFailureFeedsBreaker(t *testing.T) {
	f := newFixture(t)
	f.withMX("acme.io", "mx1.acme.io")
	f.breaker.On("IsOpen", mock.Anything).Return(false)
	f.breaker.On("RecordFailure", mock.Anything).Return(nil).Once()
	f.prober.On("Probe", mock.Anything, mock.Anything).Return(&models.ProbeResult{
		TransportFailure: true, Status: enum.StatusUnknown, SubStatus: enum.SubStatusTimeout, Reason: "SMTP connection timeout",
	})

	result := f.service.Validate(context.Background(), "jane@acme.io", models.AllChecks())

	assert.Equal(t, enum.StatusUnknown, result.Status)
	assert.Equal(t, enum.SubStatusTimeout, result.Details.SubStatus)
	f.breaker.AssertExpectations(t)
}

func TestValidate_SkippedProbeLeavesBreakerUntouched(t *testing.T) {
	// Arrange
	f := newFixture(t)
	f.withMX("acme.io", "mx1.acme.io")
	f.breaker.On("IsOpen", mock.Anything).Return(false)
	f.prober.On("Probe", mock.Anything, mock.Anything).Return(&models.ProbeResult{
		Skipped: true, Status: enum.StatusUnknown, SubStatus: enum.SubStatusTimeout, Reason: "SMTP validation timeout",
	})

	// Act
	result := f.service.Validate(context.Background(), "jane@acme.io", models.AllChecks())

	// Assert
	assert.Equal(t, enum.StatusUnknown, result.Status)
	assert.Equal(t, enum.SubStatusTimeout, result.Details.SubStatus)
	f.breaker.AssertNotCalled(t, "RecordFailure", mock.Anything)
	f.breaker.AssertNotCalled(t, "RecordSuccess", mock.Anything)
}

func TestValidate_SkippedCatchAllLeavesBreakerUntouched(t *testing.T) {
	f := newFixture(t)
	f.withMX("acme.io", "mx1.acme.io")
	f.breaker.On("IsOpen", mock.Anything).Return(false)
	flags := models.AllChecks()
	flags.CheckSMTP = false
	f.prober.On("CatchAll", mock.Anything, "acme.io", mock.Anything).
		Return(false, errors.Wrap(mperrors.ErrSMTPSlotUnavailable, "context deadline exceeded"))

	result := f.service.Validate(context.Background(), "jane@acme.io", flags)

	assert.Equal(t, enum.StatusDeliverable, result.Status)
	assert.False(t, result.Details.Attributes.CatchAll)
	f.breaker.AssertNotCalled(t, "RecordFailure", mock.Anything)
	f.breaker.AssertNotCalled(t, "RecordSuccess", mock.Anything)
}

func TestValidate_EachFailedExchangerFeedsBreaker(t *testing.T) {
	f := newFixture(t)
	f.withMX("acme.io", "mx1.acme.io", "mx2.acme.io")
	f.breaker.On("IsOpen", mock.Anything).Return(false)
	f.breaker.On("RecordFailure", mock.Anything).Return(nil).Twice()
	f.breaker.On("RecordSuccess", mock.Anything).Return(nil).Once()
	probe := probeExists()
	probe.TransportFailures = 2
	f.prober.On("Probe", mock.Anything, mock.Anything).Return(probe)

	result := f.service.Validate(context.Background(), "jane@acme.io", models.AllChecks())

	assert.Equal(t, enum.StatusDeliverable, result.Status)
	f.breaker.AssertExpectations(t)
}

func TestValidate_CatchAllIsCachedPerDomain(t *testing.T) {
	f := newFixture(t)
	f.withMX("open.io", "mx.open.io")
	f.breaker.On("IsOpen", mock.Anything).Return(false)
	f.breaker.On("RecordSuccess", mock.Anything).Return(nil)
	catchAllProbe := probeExists()
	catchAllProbe.CatchAll = true
	f.prober.On("Probe", mock.Anything, mock.MatchedBy(func(req models.ProbeRequest) bool { return req.CheckCatchAll })).
		Return(catchAllProbe).Once()
	f.prober.On("Probe", mock.Anything, mock.MatchedBy(func(req models.ProbeRequest) bool { return !req.CheckCatchAll })).
		Return(&models.ProbeResult{Exists: true, Code: 250, Status: enum.StatusDeliverable}).Once()

	first := f.service.Validate(context.Background(), "jane@open.io", models.AllChecks())
	second := f.service.Validate(context.Background(), "john@open.io", models.AllChecks())

	for _, result := range []*models.ValidationResult{first, second} {
		assert.Equal(t, enum.StatusRisky, result.Status)
		assert.Equal(t, enum.SubStatusLowDeliverability, result.Details.SubStatus)
		assert.True(t, result.Details.Attributes.CatchAll)
		assert.Equal(t, 20, result.DeliverabilityScore)
		assert.Equal(t, enum.RiskHigh, result.RiskLevel)
	}
	f.prober.AssertExpectations(t)
	f.prober.AssertNotCalled(t, "CatchAll", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidate_SkippedChecksGiveBasicPass(t *testing.T) {
	f := newFixture(t)

	result := f.service.Validate(context.Background(), "jane@acme.io", models.ValidationFlags{})

	assert.Equal(t, enum.StatusDeliverable, result.Status)
	assert.Equal(t, "Basic validations passed", result.Details.General.Reason)
	assert.Equal(t, enum.MethodDNS, result.ValidationMethod)
	assert.True(t, result.IsValid)
	assert.Empty(t, f.resolver.Queries())
}

func TestValidate_OpenBreakerFallsBackToDNS(t *testing.T) {
	f := newFixture(t)
	f.withMX("acme.io", "mx1.acme.io")
	f.breaker.On("IsOpen", mock.Anything).Return(true)
	f.breaker.On("RecordFallback", mock.Anything).Return().Once()

	result := f.service.Validate(context.Background(), "jane@acme.io", models.AllChecks())

	assert.Equal(t, enum.MethodDNS, result.ValidationMethod)
	f.prober.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
	f.prober.AssertNotCalled(t, "CatchAll", mock.Anything, mock.Anything, mock.Anything)
	f.breaker.AssertExpectations(t)
}

func TestValidateDNSOnly_ExampleDomain(t *testing.T) {
	f := newFixture(t)

	result := f.service.ValidateDNSOnly(context.Background(), "user@example.com")

	assert.Equal(t, enum.StatusRisky, result.Status)
	assert.True(t, result.IsValid)
	assert.Equal(t, 40, result.DeliverabilityScore)
	assert.Equal(t, enum.RiskHigh, result.RiskLevel)
	assert.Empty(t, f.resolver.Queries())
}

func TestValidateDNSOnly_HighConfidenceIsCapped(t *testing.T) {
	f := newFixture(t)
	f.withMX("acme.io", "mx1.acme.io", "mx2.acme.io")
	f.resolver.A["acme.io"] = []string{"192.0.2.10"}
	f.resolver.A["mx1.acme.io"] = []string{"192.0.2.11"}
	f.resolver.TXT["acme.io"] = []string{"v=spf1 include:_spf.acme.io ~all"}

	result := f.service.ValidateDNSOnly(context.Background(), "jane@acme.io")

	assert.Equal(t, enum.StatusDeliverable, result.Status)
	assert.Equal(t, 80, result.DeliverabilityScore)
	assert.Equal(t, enum.RiskLow, result.RiskLevel)
	assert.Equal(t, enum.MethodDNS, result.ValidationMethod)
	assert.True(t, result.IsValid)
}

func TestValidateDNSOnly_RiskFollowsScore(t *testing.T) {
	// Arrange
	f := newFixture(t)
	f.withMX("acme.io", "mx1.acme.io", "mx2.acme.io")
	f.resolver.A["mx1.acme.io"] = []string{"192.0.2.11"}

	// Act
	result := f.service.ValidateDNSOnly(context.Background(), "jane@acme.io")

	// Assert
	assert.Equal(t, enum.StatusRisky, result.Status)
	assert.Equal(t, 55, result.DeliverabilityScore)
	assert.Equal(t, enum.RiskHigh, result.RiskLevel)
	assert.True(t, result.IsValid)
}

func TestValidateDNSOnly_GoogleWorkspaceIsLikelyCatchAll(t *testing.T) {
	f := newFixture(t)
	f.withMX("corp.io", "aspmx.l.google.com", "alt1.aspmx.l.google.com")
	f.resolver.A["corp.io"] = []string{"192.0.2.10"}
	f.resolver.A["aspmx.l.google.com"] = []string{"192.0.2.20"}
	f.resolver.TXT["corp.io"] = []string{"v=spf1 include:_spf.google.com ~all"}

	result := f.service.ValidateDNSOnly(context.Background(), "jane@corp.io")

	assert.Equal(t, enum.StatusRisky, result.Status)
	assert.True(t, result.Details.Attributes.CatchAll)
	assert.LessOrEqual(t, result.DeliverabilityScore, 50)
	assert.Equal(t, enum.RiskHigh, result.RiskLevel)
	assert.Equal(t, "google", result.Details.MailServer.SMTPProvider)
}

func TestValidateDNSOnly_NoMX(t *testing.T) {
	f := newFixture(t)
	f.resolver.A["nomx.io"] = []string{"192.0.2.10"}

	result := f.service.ValidateDNSOnly(context.Background(), "jane@nomx.io")

	assert.Equal(t, enum.StatusUndeliverable, result.Status)
	assert.Equal(t, "No MX records found", result.Details.General.Reason)
	assert.Equal(t, 0, result.DeliverabilityScore)
	assert.False(t, result.IsValid)
}

func TestValidateDNSOnly_Disposable(t *testing.T) {
	f := newFixture(t)

	result := f.service.ValidateDNSOnly(context.Background(), "x@yopmail.com")

	require.Equal(t, enum.StatusUndeliverable, result.Status)
	assert.Equal(t, enum.SubStatusDisposableEmail, result.Details.SubStatus)
}
