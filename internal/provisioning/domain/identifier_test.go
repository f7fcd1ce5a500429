package domain

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var projectIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)

func TestNewProjectIDStaysWithinProviderLimits(t *testing.T) {
	domains := []string{
		"",
		"acme.io",
		"a.b",
		"Sub.Domain.Example.CO.UK",
		"very-long-enterprise-domain-name-example.com",
		"münchen-küche.de",
		"例え.jp",
		"@@@...",
		"123numbers.net",
	}
	names := []string{
		"",
		"reports",
		"My Project",
		"Données & Régions 2024",
		strings.Repeat("analytics", 12),
		"---",
		"__init__",
		"UPPER CASE NAME",
	}

	for _, d := range domains {
		for _, n := range names {
			id := NewProjectID(d, n)
			assert.GreaterOrEqual(t, len(id), 6, "domain=%q name=%q id=%q", d, n, id)
			assert.LessOrEqual(t, len(id), 30, "domain=%q name=%q id=%q", d, n, id)
			assert.Regexp(t, projectIDPattern, id, "domain=%q name=%q", d, n)
		}
	}
}

func TestNewProjectIDDropsFragmentWhenOverLimit(t *testing.T) {
	// 20-char prefix + 10-char fragment + suffix would exceed 30 chars.
	id := NewProjectID("twentycharsdomainxyz.com", "abcdefghij")
	assert.Equal(t, len("twentycharsdomainxyz")+1+6, len(id))
	assert.True(t, strings.HasPrefix(id, "twentycharsdomainxyz-"))
	assert.NotContains(t, id, "abcdefghij")
}

func TestNewProjectIDIsRandomized(t *testing.T) {
	a := NewProjectID("acme.io", "reports")
	b := NewProjectID("acme.io", "reports")
	assert.NotEqual(t, a, b)
}

func TestDomainPrefix(t *testing.T) {
	cases := map[string]string{
		"Acme.IO":                 "acmeio",
		"":                        "dc",
		"---":                     "dc",
		"sub.domain.example.com":  "subdomainexamplecom",
		"averyveryverylongdomainname.org": "averyveryverylongdom",
	}
	for in, want := range cases {
		assert.Equal(t, want, DomainPrefix(in), "input %q", in)
	}
}

func TestUniqueFolderName(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9][a-z0-9-]*-\d{6}$`)

	for _, base := range []string{
		"acmeio-Analytics Team",
		"Möbel & Co!!",
		strings.Repeat("long", 20),
		"",
		"---",
	} {
		name := UniqueFolderName(base)
		assert.LessOrEqual(t, len(name), 30, "base %q", base)
		assert.Regexp(t, pattern, name, "base %q", base)
	}
}
