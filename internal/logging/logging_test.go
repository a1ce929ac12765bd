package logging

import "testing"

func TestNewDefaultsToTerminal(t *testing.T) {
	logger := New(nil)
	if logger == nil {
		t.Fatal("expected a non-nil logger for a nil config")
	}
}

func TestNewEachStyle(t *testing.T) {
	for _, style := range []Style{StyleTerminal, StyleJSON, StyleLogfmt, StyleNoop} {
		t.Run(string(style), func(t *testing.T) {
			logger := New(&Config{Style: style, Level: "info"})
			if logger == nil {
				t.Fatalf("New() returned nil for style %q", style)
			}
			logger.Sugar().Infow("test message", "style", style)
		})
	}
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	logger := New(&Config{Style: StyleNoop, Level: "not-a-level"})
	if logger == nil {
		t.Fatal("expected a non-nil logger even with an invalid level string")
	}
}
