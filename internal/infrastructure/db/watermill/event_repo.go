package watermilldb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/anchoros/anchord/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

type subscriber struct {
	topic   string
	handler func(events []domain.Event)
}

// eventRepository journals serialized events per (topic, aggregate id) and
// fans them out twice: to the watermill publisher for external consumers and
// to the registered in-process handlers with the aggregate's full history.
type eventRepository struct {
	publisher message.Publisher

	journalLock sync.RWMutex
	journal     map[string]map[string][][]byte // topic -> id -> ordered payloads

	subscriberLock sync.Mutex
	subscribers    map[string][]subscriber // topic -> subscribers
}

func NewWatermillEventRepository(publisher message.Publisher) domain.EventRepository {
	return &eventRepository{
		publisher:   publisher,
		journal:     make(map[string]map[string][][]byte),
		subscribers: make(map[string][]subscriber),
	}
}

func (e *eventRepository) Save(
	ctx context.Context, topic string, id string, events []domain.Event,
) error {
	payloads := make([][]byte, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize %s event: %s", event.GetType(), err)
		}
		payloads = append(payloads, payload)
	}

	e.journalLock.Lock()
	if _, ok := e.journal[topic]; !ok {
		e.journal[topic] = make(map[string][][]byte)
	}
	e.journal[topic][id] = append(e.journal[topic][id], payloads...)
	e.journalLock.Unlock()

	if err := e.publish(topic, payloads); err != nil {
		return err
	}
	if err := e.dispatch(topic, id); err != nil {
		log.WithError(err).Error("failed to dispatch saved events")
	}
	return nil
}

func (e *eventRepository) Get(
	ctx context.Context, topic, id string,
) ([]domain.Event, error) {
	e.journalLock.RLock()
	payloads := e.journal[topic][id]
	e.journalLock.RUnlock()

	events := make([]domain.Event, 0, len(payloads))
	for _, payload := range payloads {
		event, err := deserializeEvent(payload)
		if err != nil {
			log.WithError(err).Warnf("failed to deserialize event: %s", string(payload))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (e *eventRepository) RegisterEventsHandler(
	topic string, handler func(events []domain.Event),
) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	if _, ok := e.subscribers[topic]; !ok {
		e.subscribers[topic] = make([]subscriber, 0)
	}

	e.subscribers[topic] = append(e.subscribers[topic], subscriber{
		topic:   topic,
		handler: handler,
	})
}

func (e *eventRepository) ClearRegisteredHandlers(topics ...string) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	if len(topics) == 0 {
		e.subscribers = make(map[string][]subscriber)
		return
	}

	for _, topic := range topics {
		delete(e.subscribers, topic)
	}
}

func (e *eventRepository) Close() {
	//nolint:errcheck
	e.publisher.Close()
}

func (e *eventRepository) dispatch(topic, id string) error {
	events, err := e.Get(context.Background(), topic, id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()
	for _, subscriber := range e.subscribers[topic] {
		go subscriber.handler(events)
	}
	return nil
}

func (e *eventRepository) publish(topic string, payloads [][]byte) error {
	watermillMessages := make([]*message.Message, 0, len(payloads))
	for _, payload := range payloads {
		watermillMessages = append(
			watermillMessages,
			message.NewMessage(watermill.NewUUID(), payload),
		)
	}
	return e.publisher.Publish(topic, watermillMessages...)
}

func deserializeEvent(buf []byte) (domain.Event, error) {
	var eventType struct {
		Type domain.EventType
	}

	if err := json.Unmarshal(buf, &eventType); err != nil {
		return nil, err
	}

	switch eventType.Type {
	case domain.EventTypeCommitmentSubmitted:
		var event = domain.CommitmentSubmitted{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeCommitmentVerified:
		var event = domain.CommitmentVerified{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeCommitmentUnverified:
		var event = domain.CommitmentUnverified{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeCommitmentClosed:
		var event = domain.CommitmentClosed{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeTxProposed:
		var event = domain.TxProposed{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeTxSigned:
		var event = domain.TxSigned{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeTxExecuted:
		var event = domain.TxExecuted{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeTxExpired:
		var event = domain.TxExpired{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeTxVoided:
		var event = domain.TxVoided{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeChannelOpened:
		var event = domain.ChannelOpened{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeChannelUpdated:
		var event = domain.ChannelUpdated{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeChannelDisputed:
		var event = domain.ChannelDisputed{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	case domain.EventTypeChannelSettled:
		var event = domain.ChannelSettled{}
		if err := json.Unmarshal(buf, &event); err == nil {
			return event, nil
		}
	}

	return nil, fmt.Errorf("unknown event")
}
