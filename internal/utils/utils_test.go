package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmail(t *testing.T) {
	local, domain, ok := SplitEmail("John.Doe@Example.COM")
	require.True(t, ok)
	assert.Equal(t, "John.Doe", local)
	assert.Equal(t, "example.com", domain)

	for _, invalid := range []string{"", "not-an-email", "a@b@c", "@domain.com", "user@"} {
		_, _, ok := SplitEmail(invalid)
		assert.False(t, ok, invalid)
	}
}

func TestExtractDomainFromEmail(t *testing.T) {
	assert.Equal(t, "domain.com", ExtractDomainFromEmail("Name <user@Domain.com>"))
	assert.Equal(t, "", ExtractDomainFromEmail("broken"))
}

func TestChunk(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	chunks := Chunk(items, 3)

	require.Len(t, chunks, 3)
	assert.Equal(t, []int{1, 2, 3}, chunks[0])
	assert.Equal(t, []int{7}, chunks[2])
	assert.Nil(t, Chunk([]int{}, 3))
	assert.Equal(t, [][]int{{1, 2}}, Chunk([]int{1, 2}, 0))
}

func TestGenerateProbeLocalPart_Unique(t *testing.T) {
	first := GenerateProbeLocalPart()
	second := GenerateProbeLocalPart()

	assert.True(t, strings.HasPrefix(first, "nonexistent"))
	assert.NotEqual(t, first, second)
}

func TestValidateStruct(t *testing.T) {
	type request struct {
		Email  string   `validate:"required,email"`
		Emails []string `validate:"required,min=1"`
	}

	err := ValidateStruct(request{Email: "bad", Emails: []string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email must be a valid email")
	assert.Contains(t, err.Error(), "emails must contain at least 1 item(s)")

	assert.NoError(t, ValidateStruct(request{Email: "a@b.io", Emails: []string{"x"}}))
}
