package validation

import (
	"testing"
)

func TestIsValidIP(t *testing.T) {
	tests := []struct {
		ip    string
		valid bool
	}{
		{"192.168.1.1", true},
		{"8.8.8.8", true},
		{"0.0.0.0", true},
		{"2001:db8::1", true},
		{"::1", true},

		// Invalid cases
		{"256.1.1.1", false},
		{"192.168.1", false},
		{"192.168.1.1.1", false},
		{"not-an-ip", false},
		{"", false},
		{"192.168.1.1:8080", false},
	}

	for _, tc := range tests {
		result := IsValidIP(tc.ip)
		if result != tc.valid {
			t.Errorf("IsValidIP(%q) = %v, want %v", tc.ip, result, tc.valid)
		}
	}
}

func TestIsValidCountryCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"US", true},
		{"fr", true},
		{"Kp", true},

		// Invalid cases
		{"USA", false},
		{"U", false},
		{"U1", false},
		{"", false},
		{"  ", false},
	}

	for _, tc := range tests {
		result := IsValidCountryCode(tc.code)
		if result != tc.valid {
			t.Errorf("IsValidCountryCode(%q) = %v, want %v", tc.code, result, tc.valid)
		}
	}
}

func TestSanitizeCountryCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"us", "US"},
		{"US", "US"},
		{"  fr  ", "FR"},
		{"", ""},
	}

	for _, tc := range tests {
		result := SanitizeCountryCode(tc.input)
		if result != tc.expected {
			t.Errorf("SanitizeCountryCode(%q) = %q, want %q", tc.input, result, tc.expected)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	// Test valid input
	errors := Validate(
		Required("user_id", "user-123"),
		ValidIP("ip_address", "203.0.113.10"),
		ValidCountryCode("user_country", "US"),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	// Test invalid input
	errors = Validate(
		Required("user_id", ""),
		ValidIP("ip_address", "invalid"),
		ValidCountryCode("user_country", "USA"),
	)
	if len(errors) != 3 {
		t.Errorf("Expected 3 errors, got %d", len(errors))
	}
}

func TestMaxLength(t *testing.T) {
	// Under limit
	err := MaxLength("field", "hello", 10)()
	if err != nil {
		t.Error("Expected no error for string under limit")
	}

	// At limit
	err = MaxLength("field", "hello", 5)()
	if err != nil {
		t.Error("Expected no error for string at limit")
	}

	// Over limit
	err = MaxLength("field", "hello world", 5)()
	if err == nil {
		t.Error("Expected error for string over limit")
	}
}
