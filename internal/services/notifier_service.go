package services

import (
	"sync"

	"photo-indexer/internal/core/events"

	log "github.com/sirupsen/logrus"
)

// NotifierService verteilt Pipeline-Ereignisse an alle registrierten Empfänger (SSE, MQTT)
type NotifierService struct {
	mu        sync.RWMutex
	notifiers []events.Notifier
}

var _ events.Notifier = (*NotifierService)(nil)

// NewNotifierService erstellt einen neuen NotifierService
func NewNotifierService(notifiers ...events.Notifier) *NotifierService {
	s := &NotifierService{}
	for _, n := range notifiers {
		s.Add(n)
	}
	return s
}

// Add registriert einen weiteren Empfänger
func (s *NotifierService) Add(n events.Notifier) {
	if n == nil {
		return
	}
	s.mu.Lock()
	s.notifiers = append(s.notifiers, n)
	count := len(s.notifiers)
	s.mu.Unlock()
	log.Debugf("NotifierService: %d receivers registered", count)
}

// Notify implementiert events.Notifier
func (s *NotifierService) Notify(e events.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log.Debugf("NotifierService: dispatching %s event", e.Type)
	for _, n := range s.notifiers {
		n.Notify(e)
	}
}
