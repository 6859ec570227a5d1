package util

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantLength int
	}{
		{name: "outbox ID format", prefix: "outbox_", hexLength: 32, wantLength: 39},
		{name: "custom prefix", prefix: "test_", hexLength: 16, wantLength: 21},
		{name: "zero length", prefix: "x_", hexLength: 0, wantLength: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := GenerateRandomID(tt.prefix, tt.hexLength)
			if !strings.HasPrefix(id, tt.prefix) {
				t.Errorf("GenerateRandomID() = %q, want prefix %q", id, tt.prefix)
			}
			if len(id) != tt.wantLength {
				t.Errorf("GenerateRandomID() length = %d, want %d", len(id), tt.wantLength)
			}
			for _, c := range strings.TrimPrefix(id, tt.prefix) {
				if !strings.ContainsRune(hexChars, c) {
					t.Errorf("GenerateRandomID() contains non-hex character %q", c)
				}
			}
		})
	}
}

func TestGenerateRandomHex_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		h := GenerateRandomHex(32)
		if seen[h] {
			t.Fatalf("duplicate hex generated: %s", h)
		}
		seen[h] = true
	}
}

func TestGenerateRequestID(t *testing.T) {
	now := time.UnixMilli(1710000000123)
	id := GenerateRequestID(now)
	re := regexp.MustCompile(`^req_1710000000123_[0-9a-z]{9}$`)
	if !re.MatchString(id) {
		t.Errorf("GenerateRequestID() = %q, does not match %s", id, re)
	}
	if GenerateRequestID(now) == id {
		t.Error("GenerateRequestID() returned the same value twice")
	}
}

func TestGenerateTicketReference(t *testing.T) {
	ref := GenerateTicketReference()
	if !regexp.MustCompile(`^SA-[0-9A-F]{6}$`).MatchString(ref) {
		t.Errorf("GenerateTicketReference() = %q", ref)
	}
}
