package config

import "testing"

func validConfig() Config {
	return Config{
		Upstream: UpstreamConfig{
			URL:             "wss://api.hyperliquid.xyz/ws",
			WatchedAccounts: []string{"0x0000000000000000000000000000000000000001"},
		},
		Thresholds: ThresholdsConfig{
			Whale: 1_000_000, Large: 100_000, Medium: 10_000, Notable: 1_000,
		},
	}
}

func TestConfig_Validate_AcceptsAWellFormedConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestConfig_Validate_RejectsEmptyWatchedAccounts(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.WatchedAccounts = nil
	if err := cfg.Validate(); err == nil {
		t.Errorf("Validate() = nil, want an error for empty watched_accounts")
	}
}

func TestConfig_Validate_RejectsNonHexAccount(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.WatchedAccounts = []string{"not-an-address"}
	if err := cfg.Validate(); err == nil {
		t.Errorf("Validate() = nil, want an error for a non-hex account")
	}
}

func TestConfig_Validate_RejectsMissingURL(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Errorf("Validate() = nil, want an error for a missing upstream URL")
	}
}

func TestConfig_Validate_ThresholdOrdering(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ordered_correctly", func(*Config) {}, false},
		{"whale_not_greater_than_large", func(c *Config) { c.Thresholds.Whale = c.Thresholds.Large }, true},
		{"large_not_greater_than_medium", func(c *Config) { c.Thresholds.Large = c.Thresholds.Medium }, true},
		{"medium_not_greater_than_notable", func(c *Config) { c.Thresholds.Medium = c.Thresholds.Notable }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_RejectsUnknownRuleCondition(t *testing.T) {
	cfg := validConfig()
	cfg.Rules = []RuleConfig{{Name: "bad", Condition: "not-a-real-condition"}}
	if err := cfg.Validate(); err == nil {
		t.Errorf("Validate() = nil, want an error for an unknown rule condition")
	}
}

func TestConfig_Validate_AcceptsEveryKnownRuleCondition(t *testing.T) {
	cfg := validConfig()
	cfg.Rules = []RuleConfig{
		{Name: "a", Condition: "position-size"},
		{Name: "b", Condition: "aggregate-volume"},
		{Name: "c", Condition: "frequency"},
		{Name: "d", Condition: "custom"},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for known conditions", err)
	}
}

func TestRuleConfig_RuleTimeWindow(t *testing.T) {
	r := RuleConfig{TimeWindowSeconds: 90}
	if got, want := r.RuleTimeWindow().Seconds(), 90.0; got != want {
		t.Errorf("RuleTimeWindow() = %vs, want %vs", got, want)
	}
}
