package schema

import (
	"regexp"
	"strings"
	"testing"
)

func TestSanitizeTableName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain id", "64d3b8f2c1", "64d3b8f2c1"},
		{"mixed case kept", "Tbl_A9", "Tbl_A9"},
		{"dashes mapped", "tbl-a", "tbl_a"},
		{"spaces and punctuation", "my table!", "my_table_"},
		{"sql metacharacters", `x";DROP`, "x__DROP"},
		{"entirely unsafe", "!!!", "___"},
		{"empty input", "", "_"},
		{"unicode", "tāble", "t_ble"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeTableName(tt.input); got != tt.expected {
				t.Errorf("SanitizeTableName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeColumnName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercased", "Title", "title"},
		{"hex slug", "s8f3a2b1c4", "s8f3a2b1c4"},
		{"digit leading prefixed", "9lives", "f_9lives"},
		{"dash mapped", "due-date", "due_date"},
		{"quote stripped", `a'b`, "a_b"},
		{"empty input", "", "_"},
		{"only unsafe", "!!", "__"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeColumnName(tt.input); got != tt.expected {
				t.Errorf("SanitizeColumnName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// Sanitized column names must never carry SQL metacharacters, whatever
// the input alphabet.
func TestSanitizeColumnNameSafeAlphabet(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9_]+$`)
	inputs := []string{
		"normal", "With Space", "semi;colon", "quo'te", `dou"ble`,
		"back`tick", "da-sh", "s3c9b1", "--", "Ünïcode", "123abc", "",
	}
	for _, in := range inputs {
		got := SanitizeColumnName(in)
		if !pattern.MatchString(got) {
			t.Errorf("SanitizeColumnName(%q) = %q, not in safe alphabet", in, got)
		}
		for _, bad := range []string{";", "'", `"`, "`", "-"} {
			if strings.Contains(got, bad) {
				t.Errorf("SanitizeColumnName(%q) = %q contains %q", in, got, bad)
			}
		}
	}
}

func TestUniqueName(t *testing.T) {
	used := map[string]bool{}
	if got := uniqueName("status", used); got != "status" {
		t.Fatalf("first use = %q, want status", got)
	}
	if got := uniqueName("status", used); got != "status_2" {
		t.Fatalf("second use = %q, want status_2", got)
	}
	if got := uniqueName("status", used); got != "status_3" {
		t.Fatalf("third use = %q, want status_3", got)
	}
	// the suffixed name itself is now reserved too
	if got := uniqueName("status_2", used); got != "status_2_2" {
		t.Fatalf("collision with suffixed name = %q, want status_2_2", got)
	}
}
