package opencv

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// cocoClasses sind die 80 COCO-Klassen in der Reihenfolge der YOLO-Modelle
var cocoClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// loadClassNames liest eine Klassenliste (eine Klasse pro Zeile) oder liefert die
// COCO-Standardliste. SSD-Modelle haben "background" als Klasse 0.
func loadClassNames(path, model string) ([]string, error) {
	if path == "" {
		if model == ModelSSDMobileNet {
			return append([]string{"background"}, cocoClasses...), nil
		}
		return cocoClasses, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open class list: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read class list: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("class list %s is empty", path)
	}
	return names, nil
}

// className liefert den Namen zu einer Klassen-ID oder einen Platzhalter
func className(names []string, id int) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	return fmt.Sprintf("class_%d", id)
}
