package perception

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ClassTable maps class names to detector class ids. It is built once and
// never modified, so one table can be shared by every controller.
type ClassTable struct {
	ids   map[string]int
	names map[int]string
}

// NewClassTable copies m into a new table.
func NewClassTable(m map[string]int) *ClassTable {
	t := &ClassTable{
		ids:   make(map[string]int, len(m)),
		names: make(map[int]string, len(m)),
	}
	for name, id := range m {
		t.ids[name] = id
		t.names[id] = name
	}
	return t
}

// Lookup returns the id for name, or ErrClassNotFound.
func (t *ClassTable) Lookup(name string) (int, error) {
	if t != nil {
		if id, ok := t.ids[name]; ok {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrClassNotFound, name)
}

// Name returns the class name for id.
func (t *ClassTable) Name(id int) (string, bool) {
	if t == nil {
		return "", false
	}
	name, ok := t.names[id]
	return name, ok
}

// Len returns the number of classes.
func (t *ClassTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ids)
}

// Names returns all class names ordered by id.
func (t *ClassTable) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.ids))
	for name := range t.ids {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return t.ids[out[i]] < t.ids[out[j]] })
	return out
}

// ParseClassList reads one class name per line; the id is the index among
// non-empty, non-comment lines. Lines starting with '#' are comments.
func ParseClassList(r io.Reader) (*ClassTable, error) {
	m := make(map[string]int)
	scanner := bufio.NewScanner(r)
	id := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := m[line]; !dup {
			m[line] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read class list: %w", err)
	}
	if len(m) == 0 {
		return nil, ErrEmptyClassTable
	}
	return NewClassTable(m), nil
}

// LoadClassFile parses a coco.txt style class file.
func LoadClassFile(path string) (*ClassTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open class file: %w", err)
	}
	defer f.Close()
	return ParseClassList(f)
}

// COCOClassTable returns the 80-class COCO table (ids 0-79) matching the
// YOLOv8 detector output.
func COCOClassTable() *ClassTable {
	m := make(map[string]int, len(COCOClasses))
	for i, name := range COCOClasses {
		m[name] = i
	}
	return NewClassTable(m)
}

// COCOClasses contains the 80 COCO class names in detector id order.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
