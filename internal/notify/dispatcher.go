package notify

import (
	"context"
	"encoding/json"

	"github.com/infra-mapper/infra-mapper/internal/metrics"
	"github.com/infra-mapper/infra-mapper/internal/model"
)

// Dispatcher builds a Notifier per configured model.AlertChannel and
// fans a fired/resolved alert out to every channel whose severity and
// rule-type filters match, satisfying internal/alert's Notifier
// interface. Each channel's failure is recorded independently — one
// broken webhook must not suppress delivery to the others.
type Dispatcher struct {
	store ChannelStore
	log   Logger
}

// ChannelStore is the subset of internal/store the dispatcher needs.
type ChannelStore interface {
	ListAlertChannels() ([]model.AlertChannel, error)
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store ChannelStore, log Logger) *Dispatcher {
	return &Dispatcher{store: store, log: log}
}

// Notify sends one alert to every matching, enabled channel and
// returns a per-channel NotifyResult.
func (d *Dispatcher) Notify(ctx context.Context, a model.Alert) []model.NotifyResult {
	channels, err := d.store.ListAlertChannels()
	if err != nil {
		d.log.Error("dispatcher: list channels failed", "error", err.Error())
		return nil
	}

	eventType := EventAlertFired
	if a.Status == model.AlertResolved {
		eventType = EventAlertResolved
	}
	event := Event{
		Type:          eventType,
		AlertID:       a.ID,
		RuleType:      string(a.RuleType),
		Severity:      string(a.Severity),
		Title:         a.Title,
		Message:       a.Message,
		HostRefs:      a.HostRefs,
		ContainerRefs: a.ContainerRefs,
		Timestamp:     a.TriggeredAt,
	}

	var results []model.NotifyResult
	for _, ch := range channels {
		if !ch.Enabled || !matchesChannel(ch, a) {
			continue
		}

		settings, err := json.Marshal(ch.Config)
		if err != nil {
			results = append(results, failResult(ch.ID, err))
			continue
		}
		n, err := BuildNotifier(Channel{
			ID:       ch.ID,
			Type:     ProviderType(ch.ChannelType),
			Name:     ch.Name,
			Enabled:  ch.Enabled,
			Settings: settings,
		})
		if err != nil {
			results = append(results, failResult(ch.ID, err))
			continue
		}

		err = n.Send(ctx, event)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			d.log.Error("notification failed", "channel_id", ch.ID, "channel_type", ch.ChannelType, "error", err.Error())
		}
		metrics.NotificationsTotal.WithLabelValues(ch.ChannelType, outcome).Inc()
		results = append(results, model.NotifyResult{
			ChannelID: ch.ID,
			Success:   err == nil,
			Error:     errString(err),
			SentAt:    a.TriggeredAt,
		})
	}
	return results
}

// TestChannel sends a synthetic info-severity alert to one channel,
// bypassing severity/rule-type filters, for the channel-test endpoint.
func (d *Dispatcher) TestChannel(ctx context.Context, ch model.AlertChannel) error {
	settings, err := json.Marshal(ch.Config)
	if err != nil {
		return err
	}
	n, err := BuildNotifier(Channel{ID: ch.ID, Type: ProviderType(ch.ChannelType), Name: ch.Name, Settings: settings})
	if err != nil {
		return err
	}
	return n.Send(ctx, Event{
		Type:     EventAlertFired,
		AlertID:  "test",
		Severity: string(model.SeverityInfo),
		Title:    "Test notification",
		Message:  "This is a test notification from Infra-Mapper.",
	})
}

// matchesChannel applies a channel's severity_filter / rule_type_filter
// (empty list = match everything).
func matchesChannel(ch model.AlertChannel, a model.Alert) bool {
	if len(ch.SeverityFilter) > 0 && !containsStr(ch.SeverityFilter, string(a.Severity)) {
		return false
	}
	if len(ch.RuleTypeFilter) > 0 && !containsStr(ch.RuleTypeFilter, string(a.RuleType)) {
		return false
	}
	return true
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func failResult(channelID string, err error) model.NotifyResult {
	return model.NotifyResult{ChannelID: channelID, Success: false, Error: err.Error()}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
