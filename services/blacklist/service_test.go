package blacklist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/services/dns"
)

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true, LogLevel: "error"})
	appLogger.InitLogger()
	return appLogger
}

func testConfig() *config.BlacklistConfig {
	return &config.BlacklistConfig{
		DomainZones:   []string{"zen.spamhaus.org", "bl.spamcop.net"},
		IPZones:       []string{"sbl.spamhaus.org", "xbl.spamhaus.org"},
		LookupTimeout: 1,
	}
}

func TestService_Check_Clean(t *testing.T) {
	// Arrange
	resolver := dns.NewMockResolver()
	service := NewService(testConfig(), resolver, testLogger())

	// Act
	info := service.Check(context.Background(), "example.com", []string{"192.0.2.1"})

	// Assert
	assert.False(t, info.IsBlacklisted)
	assert.Equal(t, 100, info.ReputationScore)
	assert.Empty(t, info.ListsFound)
	assert.NotEmpty(t, info.LastChecked)
	assert.Contains(t, resolver.Queries(), "A com.example.zen.spamhaus.org")
	assert.Contains(t, resolver.Queries(), "A 1.2.0.192.xbl.spamhaus.org")
}

func TestService_Check_ListedWithReasons(t *testing.T) {
	resolver := dns.NewMockResolver()
	resolver.A["com.spammy.zen.spamhaus.org"] = []string{"127.0.0.2"}
	resolver.TXT["com.spammy.zen.spamhaus.org"] = []string{"Listed by DBL, see https://check.spamhaus.org"}
	resolver.A["5.2.0.192.bl.spamcop.net"] = []string{"127.0.0.2"}
	resolver.A["5.2.0.192.sbl.spamhaus.org"] = []string{"127.0.0.2"}
	cfg := testConfig()
	cfg.IPZones = []string{"sbl.spamhaus.org", "bl.spamcop.net"}
	service := NewService(cfg, resolver, testLogger())

	info := service.Check(context.Background(), "spammy.com", []string{"192.0.2.5"})

	require.True(t, info.IsBlacklisted)
	assert.Equal(t, []string{"zen.spamhaus.org", "sbl.spamhaus.org (IP: 192.0.2.5)", "bl.spamcop.net (IP: 192.0.2.5)"}, info.ListsFound)
	assert.Equal(t, "Listed by DBL, see https://check.spamhaus.org", info.Reasons[0])
	assert.Equal(t, "sbl.spamhaus.org: Listed", info.Reasons[1])
	// 100 - 40 - 40 - 30
	assert.Equal(t, 0, info.ReputationScore)
}

func TestService_Check_ExtendedScanDoesNotChangeScore(t *testing.T) {
	cfg := testConfig()
	cfg.ExtendedScan = true
	service := NewService(cfg, dns.NewMockResolver(), testLogger())
	service.extendedScan = func(string) *models.ExtendedBlacklist {
		return &models.ExtendedBlacklist{MinorLists: 2}
	}

	info := service.Check(context.Background(), "example.com", nil)

	require.NotNil(t, info.Extended)
	assert.Equal(t, 2, info.Extended.MinorLists)
	assert.Equal(t, 100, info.ReputationScore)
}

func TestService_CollectIPs(t *testing.T) {
	resolver := dns.NewMockResolver()
	resolver.A["example.com"] = []string{"192.0.2.1"}
	resolver.A["mx1.example.com"] = []string{"192.0.2.2", "192.0.2.1"}
	service := NewService(testConfig(), resolver, testLogger())

	ips := service.CollectIPs(context.Background(), "example.com", []models.MXRecord{{Host: "mx1.example.com"}, {Host: "mx2.example.com"}})

	assert.Equal(t, []string{"192.0.2.1", "192.0.2.2"}, ips)
}

func TestReputationScore(t *testing.T) {
	assert.Equal(t, 100, ReputationScore(nil))
	assert.Equal(t, 60, ReputationScore([]string{"zen.spamhaus.org"}))
	assert.Equal(t, 70, ReputationScore([]string{"bl.spamcop.net (IP: 1.2.3.4)"}))
	assert.Equal(t, 100, ReputationScore([]string{"unknown.example"}))
}

func TestReverse(t *testing.T) {
	assert.Equal(t, "com.example.mail", reverseLabels("mail.example.com"))
	reversed, ok := reverseIPv4("10.20.30.40")
	assert.True(t, ok)
	assert.Equal(t, "40.30.20.10", reversed)
	_, ok = reverseIPv4("2001:db8::1")
	assert.False(t, ok)
}
