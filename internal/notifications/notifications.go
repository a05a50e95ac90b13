// Package notifications tells farmers about newly published schemes and
// subsidies. Each notice is a message on the notification topic keyed by
// farmer id; delivery to devices is owned by the consumers of that topic.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/kisaanseva/pkg/events"
)

// Notice is the content sent to every matched farmer.
type Notice struct {
	SchemeID uuid.UUID `json:"scheme_id"`
	ItemType string    `json:"item_type"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
}

// Message is the record published for one farmer.
type Message struct {
	FarmerID string    `json:"farmer_id"`
	Notice   Notice    `json:"notice"`
	SentAt   time.Time `json:"sent_at"`
}

// Notifier delivers a notice to a batch of farmers and reports how many
// were accepted.
type Notifier interface {
	Notify(ctx context.Context, farmerIDs []string, notice Notice) (int, error)
}

type publisher struct {
	events events.Publisher
	topic  string
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Notifier that publishes to topic.
func New(pub events.Publisher, topic string, logger *slog.Logger) Notifier {
	return &publisher{
		events: pub,
		topic:  topic,
		now:    time.Now,
		logger: logger.With("module", "notifications"),
	}
}

func (p *publisher) Notify(ctx context.Context, farmerIDs []string, notice Notice) (int, error) {
	if len(farmerIDs) == 0 {
		return 0, nil
	}

	sent := p.now().UTC()
	msgs := make([]events.Message, len(farmerIDs))
	for i, id := range farmerIDs {
		msgs[i] = events.Message{
			Topic: p.topic,
			Key:   id,
			Value: Message{FarmerID: id, Notice: notice, SentAt: sent},
			Headers: map[string]string{
				"item_type": notice.ItemType,
			},
		}
	}

	if err := p.events.Publish(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("publish notifications: %w", err)
	}

	p.logger.Debug("notifications published", "scheme_id", notice.SchemeID, "count", len(farmerIDs))
	return len(farmerIDs), nil
}
