// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Channels   ChannelsConfig   `mapstructure:"channels"`
	Rules      []RuleConfig     `mapstructure:"rules"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	HealthPort  int    `mapstructure:"health_port"`
}

// UpstreamConfig holds the Hyperliquid feed connection and the watched set.
type UpstreamConfig struct {
	URL             string   `mapstructure:"url"`
	WatchedAccounts []string `mapstructure:"watched_accounts"`
}

// ThresholdsConfig holds the four monetary size-class cutoffs.
type ThresholdsConfig struct {
	Whale   float64 `mapstructure:"whale"`
	Large   float64 `mapstructure:"large"`
	Medium  float64 `mapstructure:"medium"`
	Notable float64 `mapstructure:"notable"`
}

// DedupConfig holds router deduplication tuning.
type DedupConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
}

// DispatchConfig holds dispatcher-wide retry tuning.
type DispatchConfig struct {
	MaxRetries            int `mapstructure:"max_retries"`
	RetryBaseDelaySeconds int `mapstructure:"retry_base_delay_seconds"`
	RingCapacity          int `mapstructure:"ring_capacity"`
}

// ChannelsConfig holds per-channel credentials and rate limits.
type ChannelsConfig struct {
	Discord  DiscordChannelConfig  `mapstructure:"discord"`
	Telegram TelegramChannelConfig `mapstructure:"telegram"`
	Email    EmailChannelConfig   `mapstructure:"email"`
	Webhook  WebhookChannelConfig `mapstructure:"webhook"`
}

// DiscordChannelConfig configures the Discord chat-webhook channel.
type DiscordChannelConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	WebhookURL      string `mapstructure:"webhook_url"`
	RateLimitSeconds int   `mapstructure:"rate_limit_seconds"`
}

// TelegramChannelConfig configures the Telegram bot channel.
type TelegramChannelConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	BotToken         string `mapstructure:"bot_token"`
	ChatID           string `mapstructure:"chat_id"`
	RateLimitSeconds int    `mapstructure:"rate_limit_seconds"`
}

// EmailChannelConfig configures the SMTP email channel.
type EmailChannelConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	SMTPServer       string   `mapstructure:"smtp_server"`
	SMTPPort         int      `mapstructure:"smtp_port"`
	Username         string   `mapstructure:"username"`
	Password         string   `mapstructure:"password"`
	To               []string `mapstructure:"to"`
	RateLimitSeconds int      `mapstructure:"rate_limit_seconds"`
}

// WebhookChannelConfig configures the generic outbound HTTP webhook channel.
type WebhookChannelConfig struct {
	Enabled          bool              `mapstructure:"enabled"`
	URL              string            `mapstructure:"url"`
	Headers          map[string]string `mapstructure:"headers"`
	RateLimitSeconds int               `mapstructure:"rate_limit_seconds"`
}

// RuleConfig is the declarative, file-configurable form of a rule. The
// "custom" condition cannot be expressed here; it is registered in code via
// rules.Engine.RegisterCustomRule.
type RuleConfig struct {
	Name              string  `mapstructure:"name"`
	Enabled           bool    `mapstructure:"enabled"`
	Severity          string  `mapstructure:"severity"`
	Condition         string  `mapstructure:"condition"`
	Threshold         float64 `mapstructure:"threshold"`
	TimeWindowSeconds int     `mapstructure:"time_window_seconds"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("HYPERLIQUIDWALLETTRACKER")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "HYPERLIQUIDWALLETTRACKER_APP_NAME")
	v.BindEnv("app.environment", "HYPERLIQUIDWALLETTRACKER_ENVIRONMENT")
	v.BindEnv("app.log_level", "HYPERLIQUIDWALLETTRACKER_LOG_LEVEL")
	v.BindEnv("app.health_port", "HYPERLIQUIDWALLETTRACKER_HEALTH_PORT")

	v.BindEnv("upstream.url", "HYPERLIQUIDWALLETTRACKER_UPSTREAM_URL")
	v.BindEnv("upstream.watched_accounts", "HYPERLIQUIDWALLETTRACKER_WATCHED_ACCOUNTS")

	v.BindEnv("thresholds.whale", "HYPERLIQUIDWALLETTRACKER_THRESHOLD_WHALE")
	v.BindEnv("thresholds.large", "HYPERLIQUIDWALLETTRACKER_THRESHOLD_LARGE")
	v.BindEnv("thresholds.medium", "HYPERLIQUIDWALLETTRACKER_THRESHOLD_MEDIUM")
	v.BindEnv("thresholds.notable", "HYPERLIQUIDWALLETTRACKER_THRESHOLD_NOTABLE")

	v.BindEnv("dedup.window_seconds", "HYPERLIQUIDWALLETTRACKER_DEDUP_WINDOW_SECONDS")

	v.BindEnv("dispatch.max_retries", "HYPERLIQUIDWALLETTRACKER_MAX_RETRIES")
	v.BindEnv("dispatch.retry_base_delay_seconds", "HYPERLIQUIDWALLETTRACKER_RETRY_BASE_DELAY_SECONDS")
	v.BindEnv("dispatch.ring_capacity", "HYPERLIQUIDWALLETTRACKER_RING_CAPACITY")

	v.BindEnv("channels.discord.webhook_url", "HYPERLIQUIDWALLETTRACKER_DISCORD_WEBHOOK_URL")
	v.BindEnv("channels.telegram.bot_token", "HYPERLIQUIDWALLETTRACKER_TELEGRAM_BOT_TOKEN")
	v.BindEnv("channels.telegram.chat_id", "HYPERLIQUIDWALLETTRACKER_TELEGRAM_CHAT_ID")
	v.BindEnv("channels.email.smtp_server", "HYPERLIQUIDWALLETTRACKER_EMAIL_SMTP_SERVER")
	v.BindEnv("channels.webhook.url", "HYPERLIQUIDWALLETTRACKER_WEBHOOK_URL")

	v.BindEnv("telemetry.enabled", "HYPERLIQUIDWALLETTRACKER_OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "HYPERLIQUIDWALLETTRACKER_OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "HYPERLIQUIDWALLETTRACKER_OTEL_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hyperliquid-wallet-tracker")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8081)

	v.SetDefault("thresholds.whale", 1_000_000.0)
	v.SetDefault("thresholds.large", 100_000.0)
	v.SetDefault("thresholds.medium", 10_000.0)
	v.SetDefault("thresholds.notable", 1_000.0)

	v.SetDefault("dedup.window_seconds", 30)

	v.SetDefault("dispatch.max_retries", 3)
	v.SetDefault("dispatch.retry_base_delay_seconds", 5)
	v.SetDefault("dispatch.ring_capacity", 1000)

	v.SetDefault("channels.discord.rate_limit_seconds", 60)
	v.SetDefault("channels.telegram.rate_limit_seconds", 60)
	v.SetDefault("channels.email.rate_limit_seconds", 10)
	v.SetDefault("channels.webhook.rate_limit_seconds", 60)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "hyperliquid-wallet-tracker")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration, failing fast at startup.
func (c *Config) Validate() error {
	if len(c.Upstream.WatchedAccounts) == 0 {
		return fmt.Errorf("upstream.watched_accounts cannot be empty")
	}
	for _, acct := range c.Upstream.WatchedAccounts {
		if !common.IsHexAddress(acct) {
			return fmt.Errorf("invalid watched account %q: not a hex address", acct)
		}
	}
	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	if !(c.Thresholds.Whale > c.Thresholds.Large &&
		c.Thresholds.Large > c.Thresholds.Medium &&
		c.Thresholds.Medium > c.Thresholds.Notable) {
		return fmt.Errorf("thresholds must satisfy whale > large > medium > notable")
	}
	for _, r := range c.Rules {
		switch r.Condition {
		case "position-size", "aggregate-volume", "frequency", "custom":
		default:
			return fmt.Errorf("rule %q has unknown condition %q", r.Name, r.Condition)
		}
	}
	return nil
}

// RuleTimeWindow returns the rule's time window as a time.Duration.
func (r RuleConfig) RuleTimeWindow() time.Duration {
	return time.Duration(r.TimeWindowSeconds) * time.Second
}
