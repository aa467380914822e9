// Package dispatch implements the dispatch bounded context: per-channel
// rate limiting, queueing, circuit-broken sends, and retry.
package dispatch

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	classifierapp "github.com/hlwatch/tracker/business/classifier/app"
	"github.com/hlwatch/tracker/business/dispatch/app"
	dispatchDI "github.com/hlwatch/tracker/business/dispatch/di"
	"github.com/hlwatch/tracker/business/dispatch/domain"
	"github.com/hlwatch/tracker/business/dispatch/infra"
	"github.com/hlwatch/tracker/internal/config"
	"github.com/hlwatch/tracker/internal/di"
	"github.com/hlwatch/tracker/internal/httpclient"
	"github.com/hlwatch/tracker/internal/logger"
	"github.com/hlwatch/tracker/internal/monolith"
)

// Module implements the dispatch bounded context.
type Module struct{}

// RegisterServices wires one ChannelSender per enabled channel and builds
// the Dispatcher around them. Registered before rules so that module can
// resolve it as its AlertSink dependency.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, dispatchDI.Dispatcher, func(sr di.ServiceRegistry) *app.Dispatcher {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface).With("component", "dispatch")

		httpClient, err := httpclient.NewInstrumentedClient(httpclient.WithProviderName("dispatch"))
		if err != nil {
			panic("failed to create dispatch http client: " + err.Error())
		}

		senders := make(map[domain.Channel]app.ChannelSender)
		channelCfgs := make(map[domain.Channel]app.ChannelConfig)

		if cfg.Channels.Discord.Enabled {
			senders[domain.ChannelDiscord] = infra.NewDiscordSender(cfg.Channels.Discord.WebhookURL, httpClient)
			channelCfgs[domain.ChannelDiscord] = app.ChannelConfig{
				Enabled: true,
				RateLimit: app.RateLimitConfig{
					Strategy:     "sliding-window",
					MaxRequests:  10,
					WindowSeconds: cfg.Channels.Discord.RateLimitSeconds,
				},
			}
		}
		if cfg.Channels.Telegram.Enabled {
			senders[domain.ChannelTelegram] = infra.NewTelegramSender(cfg.Channels.Telegram.BotToken, cfg.Channels.Telegram.ChatID, httpClient)
			channelCfgs[domain.ChannelTelegram] = app.ChannelConfig{
				Enabled: true,
				RateLimit: app.RateLimitConfig{
					Strategy:     "sliding-window",
					MaxRequests:  20,
					WindowSeconds: cfg.Channels.Telegram.RateLimitSeconds,
				},
			}
		}
		if cfg.Channels.Email.Enabled {
			senders[domain.ChannelEmail] = infra.NewEmailSender(
				cfg.Channels.Email.SMTPServer,
				cfg.Channels.Email.SMTPPort,
				cfg.Channels.Email.Username,
				cfg.Channels.Email.Password,
				cfg.Channels.Email.To,
			)
			channelCfgs[domain.ChannelEmail] = app.ChannelConfig{
				Enabled: true,
				RateLimit: app.RateLimitConfig{
					Strategy:        "token-bucket",
					RefillPerSecond: 0.1,
					BurstCapacity:   5,
				},
			}
		}
		if cfg.Channels.Webhook.Enabled {
			senders[domain.ChannelWebhook] = infra.NewWebhookSender(cfg.Channels.Webhook.URL, cfg.Channels.Webhook.Headers, httpClient)
			channelCfgs[domain.ChannelWebhook] = app.ChannelConfig{
				Enabled: true,
				RateLimit: app.RateLimitConfig{
					Strategy:     "sliding-window",
					MaxRequests:  30,
					WindowSeconds: cfg.Channels.Webhook.RateLimitSeconds,
				},
			}
		}

		dispatcherCfg := app.Config{
			MaxRetries:     cfg.Dispatch.MaxRetries,
			RetryBaseDelay: time.Duration(cfg.Dispatch.RetryBaseDelaySeconds) * time.Second,
			Thresholds: classifierapp.Thresholds{
				Whale:   decimal.NewFromFloat(cfg.Thresholds.Whale),
				Large:   decimal.NewFromFloat(cfg.Thresholds.Large),
				Medium:  decimal.NewFromFloat(cfg.Thresholds.Medium),
				Notable: decimal.NewFromFloat(cfg.Thresholds.Notable),
			},
			Channels: channelCfgs,
		}

		dispatcher, err := app.NewDispatcher(dispatcherCfg, senders, log)
		if err != nil {
			panic("failed to create dispatcher: " + err.Error())
		}
		return dispatcher
	})

	return nil
}

// Startup starts the dispatcher's channel and retry-sweeper goroutines.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	dispatcher := dispatchDI.GetDispatcherService(mono.Services())

	dispatcher.Run(ctx)

	log.Info(ctx, "dispatch module started")
	return nil
}
