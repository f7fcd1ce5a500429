package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContactDomain(t *testing.T) {
	cases := map[string]string{
		"alice@acme.io":       "acme.io",
		"bob@sub.example.com": "sub.example.com",
		"no-at-sign":          "",
		"":                    "",
		"trailing@":           "",
	}
	for email, want := range cases {
		a := &Account{Email: email}
		assert.Equal(t, want, a.ContactDomain(), "email %q", email)
	}
}
