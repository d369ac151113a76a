package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"mediapipe/internal/config"
	"mediapipe/internal/logging"
)

// Subscriber receives completion events.
type Subscriber interface {
	Name() string
	Notify(ctx context.Context, event Event) error
}

// Observer is told the outcome of each delivery.
type Observer interface {
	Notification(subscriber string, err error)
}

// Notifier fans events out to a subscriber list fixed at construction.
type Notifier struct {
	subscribers []Subscriber
	logger      *slog.Logger
	observer    Observer
}

// New builds a Notifier. Nil subscribers are dropped.
func New(logger *slog.Logger, subscribers ...Subscriber) *Notifier {
	subs := make([]Subscriber, 0, len(subscribers))
	for _, s := range subscribers {
		if s != nil {
			subs = append(subs, s)
		}
	}
	return &Notifier{
		subscribers: subs,
		logger:      logging.NewComponentLogger(logger, "notifications"),
	}
}

// SetObserver attaches a delivery observer such as the metrics recorder.
func (n *Notifier) SetObserver(o Observer) {
	n.observer = o
}

// Subscribers returns the subscriber names in delivery order.
func (n *Notifier) Subscribers() []string {
	names := make([]string, 0, len(n.subscribers))
	for _, s := range n.subscribers {
		names = append(names, s.Name())
	}
	return names
}

// Publish delivers event to every subscriber in order. Failures are logged and
// joined into the returned error after all subscribers have been tried.
func (n *Notifier) Publish(ctx context.Context, event Event) error {
	if n == nil {
		return nil
	}
	logger := logging.WithContext(ctx, n.logger)

	var errs []error
	for _, sub := range n.subscribers {
		err := sub.Notify(ctx, event)
		if n.observer != nil {
			n.observer.Notification(sub.Name(), err)
		}
		if err == nil {
			continue
		}
		logging.WarnWithContext(logger, "completion event delivery failed", "notification_failed",
			logging.String("subscriber", sub.Name()),
			logging.String("event", string(event.Type)),
			logging.Int64(logging.FieldAssetID, event.AssetID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the subscriber endpoint in config"),
			logging.String(logging.FieldImpact, "subscriber missed this event"),
		)
		errs = append(errs, fmt.Errorf("%s: %w", sub.Name(), err))
	}
	return errors.Join(errs...)
}

// Close releases subscriber connections.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	var errs []error
	for _, sub := range n.subscribers {
		if closer, ok := sub.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", sub.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the Notifier for the configured sinks.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Notifier, error) {
	n := cfg.Notifications
	var subs []Subscriber
	if n.LogEvents {
		subs = append(subs, NewLogSubscriber(logger))
	}
	if topic := strings.TrimSpace(n.NtfyTopic); topic != "" {
		subs = append(subs, NewNtfySubscriber(topic, time.Duration(n.RequestTimeout)*time.Second))
	}
	if url := strings.TrimSpace(n.NATSURL); url != "" {
		sub, err := DialNATS(url, n.NATSSubject)
		if err != nil {
			closeAll(subs)
			return nil, err
		}
		subs = append(subs, sub)
	}
	if len(n.KafkaBrokers) > 0 {
		subs = append(subs, NewKafkaSubscriber(n.KafkaBrokers, n.KafkaTopic))
	}
	return New(logger, subs...), nil
}

func closeAll(subs []Subscriber) {
	for _, sub := range subs {
		if closer, ok := sub.(io.Closer); ok {
			_ = closer.Close()
		}
	}
}
