package backoff

import "testing"

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"half_jitter", HalfJitter, false},
		{"HALF-JITTER", HalfJitter, false},
		{" full_jitter ", FullJitter, false},
		{"none", NoJitter, false},
		{"exponential", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPolicy_String(t *testing.T) {
	if HalfJitter.String() != "half_jitter" || FullJitter.String() != "full_jitter" || NoJitter.String() != "none" {
		t.Error("unexpected policy names")
	}

	if Policy(9).String() != "Policy(9)" {
		t.Errorf("unexpected name for unknown policy: %s", Policy(9).String())
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("SQSRECOVERY_TEST_DEFAULTS_")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Policy != "half_jitter" {
		t.Errorf("expected policy half_jitter, got %s", cfg.Policy)
	}

	if cfg.InitialVisibilityTimeoutSeconds != DefaultInitialVisibilityTimeoutSeconds {
		t.Errorf("expected initial timeout %d, got %d", DefaultInitialVisibilityTimeoutSeconds, cfg.InitialVisibilityTimeoutSeconds)
	}

	if cfg.Multiplier != DefaultMultiplier {
		t.Errorf("expected multiplier %v, got %v", DefaultMultiplier, cfg.Multiplier)
	}

	if cfg.MaxVisibilityTimeoutSeconds != MaxVisibilityTimeoutSeconds {
		t.Errorf("expected max timeout %d, got %d", MaxVisibilityTimeoutSeconds, cfg.MaxVisibilityTimeoutSeconds)
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("ORDERS_BACKOFF_POLICY", "full_jitter")
	t.Setenv("ORDERS_BACKOFF_INITIAL_VISIBILITY_TIMEOUT_SECONDS", "10")
	t.Setenv("ORDERS_BACKOFF_MULTIPLIER", "3")
	t.Setenv("ORDERS_BACKOFF_MAX_VISIBILITY_TIMEOUT_SECONDS", "600")

	c, err := NewFromEnv("ORDERS_", WithRandomSource(maxRandom))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Policy() != FullJitter {
		t.Errorf("expected policy %v, got %v", FullJitter, c.Policy())
	}

	if got := c.VisibilityTimeout(3); got != 90 {
		t.Errorf("expected 90, got %d", got)
	}

	if got := c.VisibilityTimeout(10); got != 600 {
		t.Errorf("expected 600, got %d", got)
	}
}

func TestNewFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown policy", "BAD_BACKOFF_POLICY", "linear"},
		{"non-numeric initial", "BAD_BACKOFF_INITIAL_VISIBILITY_TIMEOUT_SECONDS", "soon"},
		{"zero initial", "BAD_BACKOFF_INITIAL_VISIBILITY_TIMEOUT_SECONDS", "0"},
		{"negative multiplier", "BAD_BACKOFF_MULTIPLIER", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			if _, err := NewFromEnv("BAD_"); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
