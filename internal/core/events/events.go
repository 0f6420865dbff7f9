// Package events beschreibt die Ereignisse, die die Indexierung nach außen meldet.
package events

import "time"

// Type ist die Art eines Ereignisses
type Type string

const (
	ScanStarted    Type = "scan_started"
	ScanFinished   Type = "scan_finished"
	ImageIndexed   Type = "image_indexed"
	ImageSkipped   Type = "image_skipped"
	ImageFailed    Type = "image_failed"
	ProfileCreated Type = "profile_created"
)

// Event ist eine einzelne Meldung der Indexierung
type Event struct {
	Type      Type      `json:"type"`
	RunID     string    `json:"run_id"`
	Path      string    `json:"path,omitempty"`
	ImageID   uint      `json:"image_id,omitempty"`
	ProfileID uint      `json:"profile_id,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Faces     int       `json:"faces,omitempty"`
	Error     string    `json:"error,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier nimmt Ereignisse entgegen. Implementierungen dürfen nicht blockieren.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc erlaubt einfache Funktionen als Notifier
type NotifierFunc func(Event)

// Notify implementiert Notifier
func (f NotifierFunc) Notify(e Event) { f(e) }

// Nop verwirft alle Ereignisse
type Nop struct{}

// Notify implementiert Notifier
func (Nop) Notify(Event) {}
