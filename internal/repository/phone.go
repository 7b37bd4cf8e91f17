package repository

import "strings"

// NormalizePhone converts user input to E.164, defaulting to the Martinique
// prefix (+596) for local formats. Returns "" when the input is not a usable
// number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, c := range phone {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		} else if c == '+' && i == 0 {
			b.WriteRune(c)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "+"):
		if len(digits) >= 11 {
			return digits
		}
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return "+596" + digits[1:]
	case strings.HasPrefix(digits, "596") && len(digits) >= 12:
		return "+" + digits
	case len(digits) == 9:
		return "+596" + digits
	}

	return ""
}

// RedactContact masks a contact identifier for logs and error descriptors:
// first 8 characters followed by "***".
func RedactContact(contact string) string {
	if len(contact) <= 8 {
		return contact + "***"
	}
	return contact[:8] + "***"
}
