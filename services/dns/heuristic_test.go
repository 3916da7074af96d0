package dns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/customeros/mailprobe/internal/models"
)

func TestConfidence(t *testing.T) {
	all := models.SecondaryDNSChecks{ValidMXSyntax: true, MXHasARecord: true, HasBackupMX: true, UsesMajorHost: true}
	half := models.SecondaryDNSChecks{ValidMXSyntax: true, MXHasARecord: true}

	assert.Equal(t, 1.0, Confidence(true, true, true, all))
	assert.Equal(t, 0.9, Confidence(true, true, true, half))
	assert.Equal(t, 0.5, Confidence(true, false, false, half))
	assert.Equal(t, 0.0, Confidence(false, false, false, models.SecondaryDNSChecks{}))
}

func TestIsValidHostname(t *testing.T) {
	assert.True(t, IsValidHostname("mx1.example.com"))
	assert.True(t, IsValidHostname("aspmx.l.google.com."))
	assert.False(t, IsValidHostname("-bad.example.com"))
	assert.False(t, IsValidHostname("bad-.example.com"))
	assert.False(t, IsValidHostname("under_score.example.com"))
	assert.False(t, IsValidHostname(""))
}

func TestService_Heuristic(t *testing.T) {
	// Arrange
	resolver := NewMockResolver()
	resolver.MX["company.com"] = []models.MXRecord{
		{Host: "aspmx.l.google.com", Preference: 1},
		{Host: "alt1.aspmx.l.google.com", Preference: 5},
	}
	resolver.A["company.com"] = []string{"192.0.2.1"}
	resolver.A["aspmx.l.google.com"] = []string{"192.0.2.2"}
	resolver.TXT["company.com"] = []string{"google-site-verification=abc", "v=spf1 include:_spf.google.com ~all"}
	service := NewService(resolver)

	// Act
	result := service.Heuristic(context.Background(), "company.com", nil)

	// Assert
	assert.Equal(t, "v=spf1 include:_spf.google.com ~all", result.SPF)
	assert.Equal(t, 4, result.Secondary.Passed())
	assert.Equal(t, 1.0, result.Confidence)
}

func TestService_Heuristic_NoRecords(t *testing.T) {
	service := NewService(NewMockResolver())

	result := service.Heuristic(context.Background(), "nothing.test", nil)

	assert.Equal(t, 0.0, result.Confidence)
	assert.Empty(t, result.MXRecords)
	assert.Empty(t, result.SPF)
}
