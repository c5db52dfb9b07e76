package util

import (
	"strings"
	"testing"
)

func TestMaskSensitiveQuery(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		contains []string
		absent   []string
	}{
		{
			name:     "oauth callback",
			raw:      "code=abcdefghijklmnop&state=0123456789abcdef",
			contains: []string{"code=abcd...mnop", "state=0123...cdef"},
			absent:   []string{"abcdefghijklmnop", "0123456789abcdef"},
		},
		{
			name:     "unrelated params untouched",
			raw:      "limit=10&page=2",
			contains: []string{"limit=10&page=2"},
		},
		{
			name:     "refresh token",
			raw:      "refresh_token=rt-secret-value-123",
			contains: []string{"refresh_token=rt-s...-123"},
			absent:   []string{"rt-secret-value-123"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskSensitiveQuery(tt.raw)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Fatalf("MaskSensitiveQuery(%q) = %q, missing %q", tt.raw, got, want)
				}
			}
			for _, bad := range tt.absent {
				if strings.Contains(got, bad) {
					t.Fatalf("MaskSensitiveQuery(%q) = %q, leaked %q", tt.raw, got, bad)
				}
			}
		})
	}
}

func TestMaskAuthorizationHeader(t *testing.T) {
	if got := MaskAuthorizationHeader("Bearer abcdefghijkl"); got != "Bearer abcd...ijkl" {
		t.Fatalf("MaskAuthorizationHeader = %q", got)
	}
}
