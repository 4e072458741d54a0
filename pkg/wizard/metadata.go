package wizard

import "strings"

// Field names reported by ValidationError.
const (
	FieldOrganization = "organization"
	FieldCategory     = "category"
	FieldPhrase       = "phrase"
)

// Metadata describes the collector and the phrase being recorded.
type Metadata struct {
	// Affiliated is set when the collector records on behalf of an
	// organization.
	Affiliated bool `json:"affiliated" yaml:"affiliated"`

	// Organization is required iff Affiliated.
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`

	// Category groups speakers, for example by voice gender.
	Category string `json:"category" yaml:"category"`

	// Phrase is the word or phrase to pronounce.
	Phrase string `json:"phrase" yaml:"phrase"`
}

// Validate reports the required fields that are empty and the fields that
// would not form a single path segment. Emptiness is checked as entered,
// without trimming.
func (m Metadata) Validate() error {
	var missing, invalid []string
	check := func(field, v string, required bool) {
		switch {
		case v == "":
			if required {
				missing = append(missing, field)
			}
		case !validSegment(v):
			invalid = append(invalid, field)
		}
	}
	check(FieldOrganization, m.OrganizationName(), m.Affiliated && m.Organization == "")
	check(FieldCategory, m.Category, true)
	check(FieldPhrase, m.Phrase, true)
	if len(missing) > 0 || len(invalid) > 0 {
		return &ValidationError{Missing: missing, Invalid: invalid}
	}
	return nil
}

// validSegment reports whether v stays a single folder name once trimmed:
// no separators and not a dot entry.
func validSegment(v string) bool {
	if strings.ContainsAny(v, "/\\\x00") {
		return false
	}
	switch strings.TrimSpace(v) {
	case ".", "..":
		return false
	}
	return true
}

// OrganizationName returns the trimmed organization, or "" when the
// collector is not affiliated.
func (m Metadata) OrganizationName() string {
	if !m.Affiliated {
		return ""
	}
	return strings.TrimSpace(m.Organization)
}
