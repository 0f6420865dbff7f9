package faceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG-Decoder registrieren
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"photo-indexer/config"

	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp" // WebP-Decoder registrieren
)

var logFields = log.Fields{
	"component": "faceapi",
}

// APIClient spricht mit dem Embedding-Dienst
type APIClient struct {
	config     config.FaceAPIConfig
	baseURL    string
	httpClient *http.Client
}

type apiInfoResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Model   string `json:"model"`
}

// apiFace ist ein Gesicht in der Antwort; bbox ist (x1, y1, x2, y2)
type apiFace struct {
	BoundingBox []int     `json:"bbox"`
	Confidence  float64   `json:"confidence"`
	Embedding   []float64 `json:"embedding,omitempty"`
}

type apiDetectResponse struct {
	Status      string    `json:"status"`
	FacesCount  int       `json:"faces_count"`
	Faces       []apiFace `json:"faces"`
	ProcessTime float64   `json:"process_time"`
}

// NewAPIClient erstellt einen neuen APIClient
func NewAPIClient(cfg config.FaceAPIConfig) *APIClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		config:  cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping prüft, ob der Dienst verfügbar ist
func (c *APIClient) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/info", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach face API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("face API unavailable, status: %d", resp.StatusCode)
	}

	var info apiInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	return info.Status == "ok", nil
}

// decodeImage liest JPEG, PNG oder WebP und kodiert es für die Übertragung als JPEG
func decodeImage(r io.Reader) ([]byte, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode %s image: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Detect sendet das Bild an /detect und liefert Gesichter samt Embeddings
func (c *APIClient) Detect(ctx context.Context, imgData []byte) (*apiDetectResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imgData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	fields := map[string]string{
		"threshold":         strconv.FormatFloat(c.config.DetectionThreshold, 'f', -1, 64),
		"extract_embedding": "true",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var apiResp apiDetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.Status != "ok" {
		return nil, fmt.Errorf("face API error: %s", apiResp.Status)
	}

	log.WithFields(logFields).Debugf("Face API returned %d faces in %.2fs", len(apiResp.Faces), apiResp.ProcessTime)
	return &apiResp, nil
}
