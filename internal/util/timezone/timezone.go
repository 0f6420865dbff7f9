package timezone

import (
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	currentLocation *time.Location
	initOnce        sync.Once
)

// Initialize setzt die Zeitzone basierend auf der TZ-Umgebungsvariable.
// Standard ist UTC.
func Initialize() {
	initOnce.Do(func() {
		currentLocation = load(os.Getenv("TZ"))
	})
}

func load(tzName string) *time.Location {
	if tzName == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s from environment: %v. Falling back to UTC.", tzName, err)
		return time.UTC
	}
	log.Debugf("Using timezone %s", tzName)
	return loc
}

// Location gibt die konfigurierte Zeitzone zurück, z.B. für den Scheduler
func Location() *time.Location {
	Initialize()
	return currentLocation
}

// Now gibt die aktuelle Zeit in der konfigurierten Zeitzone zurück
func Now() time.Time {
	return time.Now().In(Location())
}

// RFC3339 formatiert die Zeit im RFC3339-Format in der konfigurierten Zeitzone
func RFC3339(t time.Time) string {
	return t.In(Location()).Format(time.RFC3339)
}
