// Package hasher berechnet Inhalts-Fingerprints für die Deduplizierung.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ChunkSize ist die Blockgröße, in der Dateien gelesen werden
const ChunkSize = 4096

// ErrNotFound signalisiert, dass die Datei nicht geöffnet werden konnte
var ErrNotFound = errors.New("file not found")

// Fingerprint berechnet den SHA-256-Hash des Dateiinhalts als Hex-String.
// Pfad und Änderungszeit fließen nicht ein.
func Fingerprint(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, filePath, err)
	}
	defer file.Close()

	return FingerprintReader(file)
}

// FingerprintReader berechnet den Fingerprint eines beliebigen Readers blockweise
func FingerprintReader(r io.Reader) (string, error) {
	hash := sha256.New()
	buf := make([]byte, ChunkSize)
	// Ohne Wrapper nutzt io.CopyBuffer WriterTo (z.B. *os.File) und ignoriert buf
	if _, err := io.CopyBuffer(hash, struct{ io.Reader }{r}, buf); err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
