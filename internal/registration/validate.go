package registration

import (
	"net/mail"
	"slices"
	"strings"
	"unicode"
)

const minPhoneDigits = 7

// ValidationError lists the fields a request got wrong, field name to
// problem.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " " + e.Fields[name]
	}
	return "Please check your details: " + strings.Join(parts, "; ") + "."
}

// Validate checks the required fields. It returns *ValidationError or nil.
func (r Request) Validate() error {
	fields := map[string]string{}

	if strings.TrimSpace(r.Name) == "" {
		fields["name"] = "is required"
	}

	email := strings.TrimSpace(r.Email)
	switch {
	case email == "":
		fields["email"] = "is required"
	case !validEmail(email):
		fields["email"] = "is not a valid address"
	}

	phone := strings.TrimSpace(r.Phone)
	switch {
	case phone == "":
		fields["phone"] = "is required"
	case countDigits(phone) < minPhoneDigits:
		fields["phone"] = "needs at least 7 digits"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// validEmail accepts a bare address with a dotted domain. Display-name forms
// ("Ana <ana@example.com>") are rejected.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
