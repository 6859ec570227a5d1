package util

import (
	"reflect"
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"OFF", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("SHOPASSIST_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("SHOPASSIST_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 30 * time.Second},
		{"45", 45 * time.Second},
		{"2m", 2 * time.Minute},
		{"soon", 30 * time.Second},
		{"-5s", 30 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("SHOPASSIST_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("SHOPASSIST_TEST_DURATION", 30*time.Second); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("SHOPASSIST_TEST_INT", "12")
	if got := ParseIntEnv("SHOPASSIST_TEST_INT", 3); got != 12 {
		t.Errorf("ParseIntEnv() = %d, want 12", got)
	}
	t.Setenv("SHOPASSIST_TEST_INT", "twelve")
	if got := ParseIntEnv("SHOPASSIST_TEST_INT", 3); got != 3 {
		t.Errorf("ParseIntEnv() = %d, want default 3", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" https://a.example , ,https://b.example")
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitList() = %v, want %v", got, want)
	}
	if SplitList("") != nil {
		t.Error("SplitList(\"\") should be nil")
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("SHOPASSIST_TEST_FLOAT", "0.5")
	if got := ParseFloatEnv("SHOPASSIST_TEST_FLOAT", 2); got != 0.5 {
		t.Errorf("ParseFloatEnv() = %v, want 0.5", got)
	}
	t.Setenv("SHOPASSIST_TEST_FLOAT", "fast")
	if got := ParseFloatEnv("SHOPASSIST_TEST_FLOAT", 2); got != 2 {
		t.Errorf("ParseFloatEnv() = %v, want default 2", got)
	}
}
