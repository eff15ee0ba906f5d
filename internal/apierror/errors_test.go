package apierror

import "testing"

func TestSanitize_HidesInternalDetails(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "journal log open failure",
			input:    "open journal log: open /var/lib/fql/ledger.db: no such file or directory",
			expected: "An internal error occurred",
		},
		{
			name:     "bolt error",
			input:    "bolt.Open: file size too small",
			expected: "An internal error occurred",
		},
		{
			name:     "mmap error",
			input:    "mmap allocate error: cannot allocate memory",
			expected: "An internal error occurred",
		},
		{
			name:     "file path with write",
			input:    "write /data/ledger.db: disk quota exceeded",
			expected: "An internal error occurred",
		},
		{
			name:     "timeout",
			input:    "timeout waiting for file lock",
			expected: "An internal error occurred",
		},
		{
			name:     "panic",
			input:    "panic: runtime error: index out of range",
			expected: "An internal error occurred",
		},
		{
			name:     "IP address",
			input:    "listen 192.168.1.100: address already in use",
			expected: "An internal error occurred",
		},
		{
			name:     "safe parse error",
			input:    "parse error at line 2, column 7: expected DEBIT or CREDIT",
			expected: "parse error at line 2, column 7: expected DEBIT or CREDIT",
		},
		{
			name:     "safe ledger validation error",
			input:    "account not found: payable",
			expected: "account not found: payable",
		},
		{
			name:     "safe evaluation error",
			input:    "division by zero",
			expected: "division by zero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			if got != tt.expected {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
