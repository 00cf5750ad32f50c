// Package perception holds the detection data model consumed by the
// controllers: classified detections, the latest-snapshot buffer they are
// delivered through, and the class name table used to resolve targets.
package perception

import "time"

// Detection is a single classified object at one sampling instant.
type Detection struct {
	ClassID     int     `json:"class_id"`
	BBoxCenterX float64 `json:"bbox_center_x"` // Pixels from the left image edge
}

// DetectionSet is everything observed at one instant, in producer order.
type DetectionSet struct {
	Detections []Detection `json:"detections"`
	Stamp      time.Time   `json:"stamp"`
}

// Len returns the number of detections in the set.
func (s DetectionSet) Len() int {
	return len(s.Detections)
}

// First returns the first detection with the given class id.
// Order is the producer's order; there is no ranking by confidence or size.
func (s DetectionSet) First(classID int) (Detection, bool) {
	for _, d := range s.Detections {
		if d.ClassID == classID {
			return d, true
		}
	}
	return Detection{}, false
}

// clone returns a copy that shares no backing array with s.
func (s DetectionSet) clone() DetectionSet {
	out := DetectionSet{Stamp: s.Stamp}
	if len(s.Detections) > 0 {
		out.Detections = make([]Detection, len(s.Detections))
		copy(out.Detections, s.Detections)
	}
	return out
}
