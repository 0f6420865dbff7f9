package opencv

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"photo-indexer/config"
	"photo-indexer/internal/integrations/detection"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// Unterstützte DNN-Modelle
const (
	ModelYOLO         = "yolo"          // YOLOv8/YOLO11 ONNX-Export, Ausgabe [1, 4+C, N]
	ModelSSDMobileNet = "ssd_mobilenet" // TensorFlow SSD, Ausgabe [1, 1, N, 7]
)

const defaultInputSize = 640

// candidate ist eine Erkennung vor der Non-Maximum-Suppression
type candidate struct {
	classID    int
	confidence float32
	box        image.Rectangle
}

// ObjectDetector kapselt das DNN-Netz. Nicht threadsicher, der Service serialisiert.
type ObjectDetector struct {
	model         string
	net           gocv.Net
	classNames    []string
	inputSize     int
	confThreshold float32
	nmsThreshold  float32
}

// NewObjectDetector lädt Modell und Klassenliste
func NewObjectDetector(cfg *config.OpenCVConfig) (*ObjectDetector, error) {
	model := cfg.Model
	if model == "" {
		model = ModelYOLO
	}

	modelPath := cfg.ModelPath
	if modelPath == "" {
		modelPath = filepath.Join("models", "yolo11s.onnx")
	}
	if !fileExists(modelPath) {
		return nil, fmt.Errorf("%w: model file not found: %s", detection.ErrUnavailable, modelPath)
	}
	if cfg.ConfigPath != "" && !fileExists(cfg.ConfigPath) {
		return nil, fmt.Errorf("%w: model config not found: %s", detection.ErrUnavailable, cfg.ConfigPath)
	}

	classNames, err := loadClassNames(cfg.ClassesPath, model)
	if err != nil {
		return nil, err
	}

	net := gocv.ReadNet(modelPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("could not load DNN model: %s", modelPath)
	}

	backend := gocv.ParseNetBackend(cfg.Backend)
	target := gocv.ParseNetTarget(cfg.Target)
	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set DNN backend: %w", err)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set DNN target: %w", err)
	}

	inputSize := cfg.InputSize
	if inputSize <= 0 {
		inputSize = defaultInputSize
	}

	log.Infof("DNN model %s loaded (%s, %d classes, backend %v, target %v)",
		filepath.Base(modelPath), model, len(classNames), backend, target)

	return &ObjectDetector{
		model:         model,
		net:           net,
		classNames:    classNames,
		inputSize:     inputSize,
		confThreshold: float32(cfg.ConfidenceThreshold),
		nmsThreshold:  float32(cfg.NMSThreshold),
	}, nil
}

// Detect führt das Netz auf einem Bild aus und liefert die Tags nach NMS
func (d *ObjectDetector) Detect(ctx context.Context, imgPath string) ([]detection.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := gocv.IMRead(imgPath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("could not decode image: %s", imgPath)
	}
	defer img.Close()

	var candidates []candidate
	switch d.model {
	case ModelSSDMobileNet:
		candidates = d.forwardSSD(img)
	default:
		candidates = d.forwardYOLO(img)
	}

	tags := d.suppress(candidates)
	log.Debugf("OpenCV: %d objects in %s", len(tags), filepath.Base(imgPath))
	return tags, nil
}

// forwardYOLO wertet die Ausgabe [1, 4+C, N] aus. Boxen sind (cx, cy, w, h) in Eingabepixeln.
func (d *ObjectDetector) forwardYOLO(img gocv.Mat) []candidate {
	size := image.Pt(d.inputSize, d.inputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	sizes := out.Size()
	if len(sizes) != 3 || sizes[1] <= 4 {
		log.Warnf("Unexpected YOLO output shape %v", sizes)
		return nil
	}
	attrs := sizes[1]

	reshaped := out.Reshape(1, attrs)
	defer reshaped.Close()
	rows := gocv.NewMat()
	defer rows.Close()
	gocv.Transpose(reshaped, &rows)

	scaleX := float32(img.Cols()) / float32(d.inputSize)
	scaleY := float32(img.Rows()) / float32(d.inputSize)
	threshold := d.confThreshold

	var candidates []candidate
	for i := 0; i < rows.Rows(); i++ {
		scores := rows.Region(image.Rect(4, i, attrs, i+1))
		_, maxScore, _, maxLoc := gocv.MinMaxLoc(scores)
		scores.Close()

		if maxScore < threshold {
			continue
		}

		cx := rows.GetFloatAt(i, 0) * scaleX
		cy := rows.GetFloatAt(i, 1) * scaleY
		w := rows.GetFloatAt(i, 2) * scaleX
		h := rows.GetFloatAt(i, 3) * scaleY

		candidates = append(candidates, candidate{
			classID:    maxLoc.X,
			confidence: maxScore,
			box:        image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)),
		})
	}
	return candidates
}

// forwardSSD wertet die Ausgabe [1, 1, N, 7] aus:
// [img_id, class_id, confidence, left, top, right, bottom] mit relativen Koordinaten
func (d *ObjectDetector) forwardSSD(img gocv.Mat) []candidate {
	size := image.Pt(d.inputSize, d.inputSize)
	blob := gocv.BlobFromImage(img, 1.0/127.5, size, gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	detections := out.Reshape(1, out.Total()/7)
	defer detections.Close()

	width := float32(img.Cols())
	height := float32(img.Rows())
	threshold := d.confThreshold

	var candidates []candidate
	for i := 0; i < detections.Rows(); i++ {
		confidence := detections.GetFloatAt(i, 2)
		if confidence < threshold {
			continue
		}
		candidates = append(candidates, candidate{
			classID:    int(detections.GetFloatAt(i, 1)),
			confidence: confidence,
			box: image.Rect(
				int(detections.GetFloatAt(i, 3)*width),
				int(detections.GetFloatAt(i, 4)*height),
				int(detections.GetFloatAt(i, 5)*width),
				int(detections.GetFloatAt(i, 6)*height),
			),
		})
	}
	return candidates
}

// suppress entfernt überlappende Boxen pro Klasse und wandelt das Ergebnis in Tags um.
// Die Konfidenz bleibt ungerundet.
func (d *ObjectDetector) suppress(candidates []candidate) []detection.Tag {
	if len(candidates) == 0 {
		return nil
	}

	byClass := make(map[int][]candidate)
	var order []int
	for _, c := range candidates {
		if _, ok := byClass[c.classID]; !ok {
			order = append(order, c.classID)
		}
		byClass[c.classID] = append(byClass[c.classID], c)
	}

	var tags []detection.Tag
	for _, classID := range order {
		group := byClass[classID]
		boxes := make([]image.Rectangle, len(group))
		scores := make([]float32, len(group))
		for i, c := range group {
			boxes[i] = c.box
			scores[i] = c.confidence
		}

		keep := gocv.NMSBoxes(boxes, scores, d.confThreshold, d.nmsThreshold)
		for _, idx := range keep {
			tags = append(tags, detection.Tag{
				Label:      className(d.classNames, classID),
				Confidence: float64(group[idx].confidence),
			})
		}
	}
	return tags
}

// Close gibt das Netz frei
func (d *ObjectDetector) Close() error {
	if !d.net.Empty() {
		return d.net.Close()
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
