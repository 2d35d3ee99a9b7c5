package output

import (
	"os"
	"testing"
)

func TestColorSchemes(t *testing.T) {
	for name, scheme := range map[string]*ColorScheme{
		"default":  DefaultColorScheme(),
		"no color": NoColorScheme(),
		"forced":   NewColorScheme(false),
		"disabled": NewColorScheme(true),
	} {
		for i, c := range scheme.all() {
			if c == nil {
				t.Errorf("%s scheme: color %d is nil", name, i)
			}
		}
	}

	if got := NoColorScheme().StatusOK.Sprint("200"); got != "200" {
		t.Errorf("NoColorScheme printed %q, want plain text", got)
	}
	if got := NewColorScheme(false).StatusOK.Sprint("200"); got == "200" {
		t.Errorf("NewColorScheme(false) printed plain text")
	}
}

func TestColorScheme_Status(t *testing.T) {
	s := DefaultColorScheme()
	tests := []struct {
		code int
		want interface{}
	}{
		{200, s.StatusOK},
		{204, s.StatusOK},
		{301, s.StatusWarn},
		{404, s.StatusError},
		{500, s.StatusError},
		{101, s.StatusError},
	}
	for _, tt := range tests {
		if got := s.Status(tt.code); got != tt.want {
			t.Errorf("Status(%d) picked the wrong color", tt.code)
		}
	}
}

func TestColorEnabled(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	if IsTerminal(f) {
		t.Errorf("a regular file is not a terminal")
	}
	if ColorEnabled(false, f) {
		t.Errorf("colors enabled for a regular file")
	}
	if ColorEnabled(true, os.Stdout) {
		t.Errorf("colors enabled despite noColor")
	}

	t.Setenv("NO_COLOR", "1")
	if ColorEnabled(false, os.Stdout) {
		t.Errorf("colors enabled despite NO_COLOR")
	}
}

func TestIcons(t *testing.T) {
	tests := []struct {
		name  string
		icon  func(bool) string
		plain string
	}{
		{"success", SuccessIcon, "✓"},
		{"error", ErrorIcon, "✗"},
		{"info", InfoIcon, "ℹ"},
		{"warning", WarningIcon, "⚠"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.icon(true); got != tt.plain {
				t.Errorf("noColor icon = %q, want %q", got, tt.plain)
			}
			if got := tt.icon(false); got == "" {
				t.Errorf("colored icon is empty")
			}
		})
	}
}
