// Package domain contains the dispatch bounded context's core types.
package domain

import (
	"time"

	rulesdomain "github.com/hlwatch/tracker/business/rules/domain"
)

// Channel is the closed set of outbound notification destinations.
type Channel string

const (
	ChannelDiscord  Channel = "discord"
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelWebhook  Channel = "webhook"
)

// DispatchTask is one channel's unit of delivery for a triggered alert.
type DispatchTask struct {
	ID            string
	Channel       Channel
	Account       string
	Alert         rulesdomain.TriggeredAlert
	Payload       []byte
	AttemptCount  int
	NextAttemptAt time.Time
	CreatedAt     time.Time
	Priority      int
}

// ChannelStats is a single channel's observable send history.
type ChannelStats struct {
	Attempted      uint64
	Succeeded      uint64
	Failed         uint64
	Retried        uint64
	RateLimited    uint64
	TotalLatencyMs int64
}

// AverageLatencyMs returns the mean latency across successful sends.
func (c ChannelStats) AverageLatencyMs() float64 {
	if c.Succeeded == 0 {
		return 0
	}
	return float64(c.TotalLatencyMs) / float64(c.Succeeded)
}

// Stats is the dispatcher's full observable state, keyed by channel.
type Stats struct {
	PerChannel map[Channel]ChannelStats
}
