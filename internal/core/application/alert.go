package application

import (
	"context"
	"time"

	"github.com/anchoros/anchord/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

func publishAlert(alerts ports.Alerts, topic ports.Topic, message interface{}) {
	if alerts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := alerts.Publish(ctx, topic, message); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("failed to publish alert")
	}
}
