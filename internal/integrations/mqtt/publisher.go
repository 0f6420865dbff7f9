package mqtt

import (
	"sync"

	"photo-indexer/internal/core/events"

	log "github.com/sirupsen/logrus"
)

// publisher ist die Schnittstelle, die der EventPublisher vom Client braucht
type publisher interface {
	Topic(parts ...string) string
	PublishMessage(topic string, payload interface{}, retain bool) error
}

// EventPublisher veröffentlicht Pipeline-Ereignisse unter <prefix>/events/<type>.
// Der Abschlussbericht eines Scans wird zusätzlich retained unter <prefix>/scan/last abgelegt.
type EventPublisher struct {
	client publisher
	queue  chan events.Event
	done   chan struct{}
	once   sync.Once
}

var _ events.Notifier = (*EventPublisher)(nil)

// NewEventPublisher erstellt den Publisher und startet die Sendeschleife
func NewEventPublisher(client publisher) *EventPublisher {
	p := &EventPublisher{
		client: client,
		queue:  make(chan events.Event, 100),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Notify implementiert events.Notifier und blockiert nie
func (p *EventPublisher) Notify(e events.Event) {
	select {
	case p.queue <- e:
	default:
		log.Warnf("MQTT event queue full, dropping %s event", e.Type)
	}
}

// Close beendet die Sendeschleife, nachdem die Queue geleert ist
func (p *EventPublisher) Close() {
	p.once.Do(func() { close(p.queue) })
	<-p.done
}

func (p *EventPublisher) run() {
	defer close(p.done)
	for e := range p.queue {
		if err := p.client.PublishMessage(p.client.Topic("events", string(e.Type)), e, false); err != nil {
			log.Debugf("Failed to publish %s event: %v", e.Type, err)
			continue
		}
		if e.Type == events.ScanFinished && e.Data != nil {
			if err := p.client.PublishMessage(p.client.Topic("scan", "last"), e.Data, true); err != nil {
				log.Debugf("Failed to publish scan report: %v", err)
			}
		}
	}
}
