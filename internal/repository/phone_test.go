package repository

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0696123456", "+596696123456"},
		{"06 96 12 34 56", "+596696123456"},
		{"+596696123456", "+596696123456"},
		{"596696123456", "+596696123456"},
		{"696123456", "+596696123456"},
		{"+33612345678", "+33612345678"},
		{"12345", ""},
		{"", ""},
		{"abc", ""},
		{"+596", ""},
	}

	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactContact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+596696123456", "+5966961***"},
		{"short", "short***"},
		{"", "***"},
	}

	for _, tt := range tests {
		if got := RedactContact(tt.in); got != tt.want {
			t.Errorf("RedactContact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
