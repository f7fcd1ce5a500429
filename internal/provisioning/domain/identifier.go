package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Google Cloud naming limits: project IDs are 6-30 chars of lowercase
// letters, digits and hyphens; folder display names are at most 30 chars.
const (
	projectIDMaxLen    = 30
	folderNameMaxLen   = 30
	domainPrefixMaxLen = 20
	nameFragmentMaxLen = 10
	suffixLen          = 6
)

// DomainPrefix derives the short identifier prefix for an account from its
// contact domain: lowercased, non-alphanumerics stripped, truncated. Falls
// back to "dc" so generated IDs never start with a separator.
func DomainPrefix(contactDomain string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(contactDomain) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteByte(byte(r))
		}
	}
	p := b.String()
	if len(p) > domainPrefixMaxLen {
		p = p[:domainPrefixMaxLen]
	}
	if p == "" {
		p = "dc"
	}
	return p
}

// NewProjectID generates a globally-scoped project identifier of the form
// {domain-prefix}-{name-fragment}-{suffix}. The suffix is random, so repeated
// calls with the same inputs yield different IDs: uniqueness is the
// guaranteed property, not determinism. If the combined form would exceed the
// provider limit the name fragment is dropped.
func NewProjectID(contactDomain, projectName string) string {
	prefix := DomainPrefix(contactDomain)
	frag := sanitizeFragment(projectName)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]

	id := prefix + "-" + frag + "-" + suffix
	if frag == "" || len(id) > projectIDMaxLen {
		id = prefix + "-" + suffix
	}
	return id
}

// UniqueFolderName sanitizes base to lowercase alphanumerics and hyphens,
// then appends a time-derived 6-digit suffix, truncating so the result stays
// within the folder display-name limit.
func UniqueFolderName(base string) string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	ts = ts[len(ts)-suffixLen:]

	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteByte(byte(r))
		}
	}
	clean := b.String()

	maxBase := folderNameMaxLen - len(ts) - 1
	if len(clean) > maxBase {
		clean = clean[:maxBase]
	}
	clean = strings.Trim(clean, "-")
	if clean == "" {
		clean = "dc"
	}
	return clean + "-" + ts
}

// sanitizeFragment reduces a human project name to a short lowercase
// alphanumeric-and-hyphen fragment.
func sanitizeFragment(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteByte(byte(r))
		}
	}
	frag := b.String()
	if len(frag) > nameFragmentMaxLen {
		frag = frag[:nameFragmentMaxLen]
	}
	return strings.Trim(frag, "-")
}
