package services

import (
	"testing"

	"photo-indexer/internal/core/events"

	"github.com/stretchr/testify/assert"
)

func TestNotifierServiceFanOut(t *testing.T) {
	var first, second []events.Type
	svc := NewNotifierService(
		events.NotifierFunc(func(e events.Event) { first = append(first, e.Type) }),
		nil,
	)
	svc.Add(events.NotifierFunc(func(e events.Event) { second = append(second, e.Type) }))

	svc.Notify(events.Event{Type: events.ScanStarted})
	svc.Notify(events.Event{Type: events.ProfileCreated, ProfileID: 3})

	want := []events.Type{events.ScanStarted, events.ProfileCreated}
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
}

func TestNotifierServiceWithoutReceivers(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNotifierService().Notify(events.Event{Type: events.ImageIndexed})
	})
}
