package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/totegamma/customeradmin/internal/domain"
)

var realtimeChannels = map[string]bool{
	domain.ChannelCustomerEvents: true,
	domain.ChannelAccountRole:    true,
}

type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, channel string, event domain.CustomerEvent) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, channel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Realtime forwards events of the requested channels to output until ctx is
// done or input is closed. Each value read from input replaces the current
// subscription. It starts on the customer event channel.
func (s *SignalService) Realtime(ctx context.Context, input <-chan []string, output chan<- domain.CustomerEvent) {
	current := []string{domain.ChannelCustomerEvents}
	pubsub := s.rdb.Subscribe(ctx, current...)
	defer pubsub.Close()

	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case requested, ok := <-input:
			if !ok {
				return
			}
			channels := filterChannels(requested)
			if len(channels) == 0 {
				continue
			}
			if err := pubsub.Unsubscribe(ctx, current...); err != nil {
				slog.ErrorContext(ctx, "failed to unsubscribe", slog.String("error", err.Error()), slog.String("module", "signal"))
			}
			if err := pubsub.Subscribe(ctx, channels...); err != nil {
				slog.ErrorContext(ctx, "failed to subscribe", slog.String("error", err.Error()), slog.String("module", "signal"))
				return
			}
			current = channels
		case msg, ok := <-messages:
			if !ok {
				return
			}
			event, err := decodeEvent(msg.Payload)
			if err != nil {
				slog.DebugContext(ctx, "dropping malformed event", slog.String("error", err.Error()), slog.String("module", "signal"))
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func filterChannels(requested []string) []string {
	seen := make(map[string]bool, len(requested))
	channels := make([]string, 0, len(requested))
	for _, ch := range requested {
		if realtimeChannels[ch] && !seen[ch] {
			seen[ch] = true
			channels = append(channels, ch)
		}
	}
	return channels
}

func decodeEvent(payload string) (domain.CustomerEvent, error) {
	var event domain.CustomerEvent
	err := json.Unmarshal([]byte(payload), &event)
	return event, err
}
