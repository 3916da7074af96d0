package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailprobe/internal/enum"
	"github.com/customeros/mailprobe/internal/models"
)

func TestParseAddress(t *testing.T) {
	valid := []string{
		"jane.doe@acme.io",
		"jane+news@Acme.IO",
		"a_b%c-d@sub.acme.co.uk",
		"x@a.com",
		"ops@mail.my-company.com",
		"ops@mx2.acme.io",
		"jane@xn--e1afmkfd.xn--p1ai",
	}
	for _, email := range valid {
		_, ok := ParseAddress(email)
		assert.True(t, ok, email)
	}

	invalid := []string{
		"not-an-email",
		"a@@acme.io",
		"@acme.io",
		"jane@",
		"jane doe@acme.io",
		"jane@acme",
		"jane@-acme.io",
		"jane@acme.c",
		"jane@acme.io.",
		"jane@acme-.io",
		"jane@acme.123",
		"ü@acme.io",
		strings.Repeat("a", 65) + "@acme.io",
	}
	for _, email := range invalid {
		_, ok := ParseAddress(email)
		assert.False(t, ok, email)
	}
}

func TestParseAddress_LowercasesAndPunycodesDomain(t *testing.T) {
	address, ok := ParseAddress("jane@Bücher.de")

	require.True(t, ok)
	assert.Equal(t, "xn--bcher-kva.de", address.Domain)
	assert.Equal(t, "jane@xn--bcher-kva.de", address.Email)
}

func TestParseAddress_InternationalisedTLD(t *testing.T) {
	address, ok := ParseAddress("jane@пример.рф")

	require.True(t, ok)
	assert.Equal(t, "xn--e1afmkfd.xn--p1ai", address.Domain)
}

func TestCharacterCounts(t *testing.T) {
	numeric, alpha, symbols := CharacterCounts("john.doe+42")

	assert.Equal(t, 2, numeric)
	assert.Equal(t, 7, alpha)
	assert.Equal(t, 2, symbols)
}

func TestCatalog_Classification(t *testing.T) {
	catalog := DefaultCatalog()

	assert.True(t, catalog.IsFree("Gmail.com"))
	assert.False(t, catalog.IsFree("acme.io"))
	assert.True(t, catalog.IsRole("support+eu"))
	assert.False(t, catalog.IsRole("jane"))
	assert.True(t, catalog.IsDisposable("mailinator.com"))
	assert.True(t, catalog.IsExample("example.org"))
	assert.Equal(t, "microsoft", catalog.Provider("acme-io.mail.protection.outlook.com"))
	assert.Equal(t, "google", catalog.Provider("ALT1.ASPMX.L.GOOGLE.COM"))
	assert.Equal(t, "", catalog.Provider("mx.acme.io"))
	assert.True(t, catalog.LikelyCatchAll("acme-io.mail.protection.outlook.com"))
	assert.True(t, catalog.LikelyCatchAll("aspmx.l.google.com"))
	assert.False(t, catalog.LikelyCatchAll("mx.zoho.com"))
	assert.False(t, catalog.LikelyCatchAll("gmail-smtp-in.l.google.com"))
}

func TestCatalog_Attributes(t *testing.T) {
	attrs := DefaultCatalog().Attributes(models.EmailAddress{Email: "noreply+x@gmail.com", Local: "noreply+x", Domain: "gmail.com"})

	assert.True(t, attrs.FreeEmail)
	assert.True(t, attrs.HasPlusTag)
	assert.True(t, attrs.NoReply)
	assert.False(t, attrs.Disposable)
}

func TestScore(t *testing.T) {
	cases := []struct {
		name   string
		status enum.ValidationStatus
		attrs  models.EmailAttributes
		score  int
		risk   enum.RiskLevel
	}{
		{"clean", enum.StatusDeliverable, models.EmailAttributes{}, 100, enum.RiskLow},
		{"free", enum.StatusDeliverable, models.EmailAttributes{FreeEmail: true}, 90, enum.RiskLow},
		{"role and free", enum.StatusDeliverable, models.EmailAttributes{RoleAccount: true, FreeEmail: true}, 70, enum.RiskMedium},
		{"noreply plus", enum.StatusDeliverable, models.EmailAttributes{NoReply: true, HasPlusTag: true}, 75, enum.RiskMedium},
		{"risky catch-all", enum.StatusRisky, models.EmailAttributes{CatchAll: true}, 20, enum.RiskHigh},
		{"unknown", enum.StatusUnknown, models.EmailAttributes{}, 60, enum.RiskMedium},
		{"clamped", enum.StatusRisky, models.EmailAttributes{CatchAll: true, Disposable: true}, 0, enum.RiskHigh},
		{"undeliverable", enum.StatusUndeliverable, models.EmailAttributes{}, 0, enum.RiskHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := &models.ValidationResult{Status: tc.status, Details: models.ValidationDetails{Attributes: tc.attrs}}

			score := Score(result)

			assert.Equal(t, tc.score, score)
			assert.Equal(t, tc.risk, RiskFromScore(score))
		})
	}
}
