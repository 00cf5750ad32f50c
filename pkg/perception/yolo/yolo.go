// Package yolo runs a YOLOv8 ONNX model through OpenCV and reports the
// results in the detection format the controllers consume.
package yolo

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/pkg/perception"
)

// Object is one detection with its box in source-image pixels.
type Object struct {
	ClassID    int
	ClassName  string
	Confidence float64
	Box        image.Rectangle
}

// CenterX returns the horizontal centre of the box in pixels.
func (o Object) CenterX() float64 {
	return float64(o.Box.Min.X+o.Box.Max.X) / 2
}

// Config holds detector settings.
type Config struct {
	ModelPath        string  `yaml:"model_path"`
	ConfidenceThresh float32 `yaml:"confidence"`
	NMSThresh        float32 `yaml:"nms"`
	InputWidth       int     `yaml:"input_width"`
	InputHeight      int     `yaml:"input_height"`
}

// DefaultConfig returns defaults for YOLOv8n.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// Detector wraps a loaded network. Safe for concurrent use.
type Detector struct {
	net       gocv.Net
	config    Config
	names     []string
	mu        sync.Mutex
	inputSize image.Point
}

var _ perception.Detector = (*Detector)(nil)

// New loads the model at cfg.ModelPath. Class names default to COCO.
func New(cfg Config, names []string) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	if len(names) == 0 {
		names = perception.COCOClasses
	}
	log.Component("yolo").Info("model loaded", "path", cfg.ModelPath, "classes", len(names))

	return &Detector{
		net:       net,
		config:    cfg,
		names:     names,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect implements perception.Detector. Detections keep the order NMS
// returns them in.
func (d *Detector) Detect(jpeg []byte) ([]perception.Detection, error) {
	objs, err := d.DetectObjects(jpeg)
	if err != nil {
		return nil, err
	}
	out := make([]perception.Detection, len(objs))
	for i, o := range objs {
		out[i] = perception.Detection{ClassID: o.ClassID, BBoxCenterX: o.CenterX()}
	}
	return out, nil
}

// DetectObjects finds objects in a JPEG image.
func (d *Detector) DetectObjects(jpeg []byte) ([]Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, errors.New("empty image")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	return d.parse(output, float32(img.Cols()), float32(img.Rows()))
}

// parse decodes the [1, 4+classes, anchors] YOLOv8 output tensor.
func (d *Detector) parse(output gocv.Mat, imgW, imgH float32) ([]Object, error) {
	anchors := output.Cols()
	fields := output.Rows()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	var (
		boxes       []image.Rectangle
		confidences []float32
		classIDs    []int
	)
	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)

	for i := 0; i < anchors; i++ {
		best, classID := float32(0), 0
		for c := 4; c < fields; c++ {
			if s := data[c*anchors+i]; s > best {
				best, classID = s, c-4
			}
		}
		if best < d.config.ConfidenceThresh {
			continue
		}

		cx, cy := data[i], data[anchors+i]
		w, h := data[2*anchors+i], data[3*anchors+i]
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		confidences = append(confidences, best)
		classIDs = append(classIDs, classID)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)
	objs := make([]Object, 0, len(indices))
	for _, idx := range indices {
		objs = append(objs, Object{
			ClassID:    classIDs[idx],
			ClassName:  d.name(classIDs[idx]),
			Confidence: float64(confidences[idx]),
			Box:        boxes[idx],
		})
	}
	return objs, nil
}

func (d *Detector) name(id int) string {
	if id >= 0 && id < len(d.names) {
		return d.names[id]
	}
	return fmt.Sprintf("class_%d", id)
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
