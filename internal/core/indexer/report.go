package indexer

import (
	"time"
)

// FileError beschreibt eine fehlgeschlagene Datei
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Report fasst einen Scan zusammen
type Report struct {
	RunID           string      `json:"run_id"`
	Root            string      `json:"root"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at"`
	Discovered      int         `json:"discovered"`
	Indexed         int         `json:"indexed"`
	Skipped         int         `json:"skipped"`
	Failed          []FileError `json:"failed"`
	TagsWritten     int         `json:"tags_written"`
	FacesWritten    int         `json:"faces_written"`
	ProfilesCreated int         `json:"profiles_created"`
}

// Duration gibt die Laufzeit des Scans zurück
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) fail(path string, err error) {
	r.Failed = append(r.Failed, FileError{Path: path, Error: err.Error()})
}

// Status ist der aktuelle Zustand der Indexierung
type Status struct {
	Running    bool    `json:"running"`
	RunID      string  `json:"run_id,omitempty"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	ActiveJobs int     `json:"active_jobs"`
	Workers    int     `json:"workers"`
	Strategy   string  `json:"strategy"`
	LastReport *Report `json:"last_report,omitempty"`
}
