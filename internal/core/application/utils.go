package application

import (
	"context"
	"time"

	"github.com/anchoros/anchord/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

func newBaseEvent(id string, eventType domain.EventType) domain.BaseEvent {
	return domain.BaseEvent{
		Id:        id,
		Type:      eventType,
		Timestamp: time.Now().Unix(),
	}
}

func saveEvents(
	ctx context.Context, eventRepo domain.EventRepository,
	topic, id string, events ...domain.Event,
) {
	if err := eventRepo.Save(ctx, topic, id, events); err != nil {
		log.WithError(err).Warnf("failed to save %s events for %s", topic, id)
	}
}
