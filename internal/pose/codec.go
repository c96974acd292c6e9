package pose

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireSample is the line format spoken by detectors. At most one of
// Keypoints (named) or COCO (17 [x, y, c] triples) is set; a line with
// neither is a frame in which no body was found.
type wireSample struct {
	TimeNanos int64               `json:"t"`
	Keypoints map[string]Keypoint `json:"keypoints,omitempty"`
	COCO      [][3]float64        `json:"coco,omitempty"`
}

// Decode parses one detector line. A zero or missing "t" is stamped with
// now so replayed fixtures without timestamps still order correctly.
func Decode(line []byte, now time.Time) (Sample, error) {
	var w wireSample
	if err := json.Unmarshal(line, &w); err != nil {
		return Sample{}, fmt.Errorf("failed to unmarshal sample: %w", err)
	}

	s := Sample{Time: now, Keypoints: make(map[Landmark]Keypoint)}
	if w.TimeNanos != 0 {
		s.Time = time.Unix(0, w.TimeNanos)
	}

	switch {
	case len(w.COCO) > 0:
		if len(w.COCO) != len(COCOOrder) {
			return Sample{}, fmt.Errorf("coco sample has %d keypoints, expected %d", len(w.COCO), len(COCOOrder))
		}
		for i, kp := range w.COCO {
			// detectors emit zeroed triples for undetected points
			if kp[2] <= 0 {
				continue
			}
			s.Keypoints[COCOOrder[i]] = Keypoint{X: kp[0], Y: kp[1], Confidence: kp[2]}
		}
	default:
		for name, kp := range w.Keypoints {
			s.Keypoints[Landmark(name)] = kp
		}
	}
	return s, nil
}

// Encode renders s in the named wire form.
func Encode(s Sample) ([]byte, error) {
	w := wireSample{TimeNanos: s.Time.UnixNano(), Keypoints: make(map[string]Keypoint, len(s.Keypoints))}
	for l, kp := range s.Keypoints {
		w.Keypoints[string(l)] = kp
	}
	return json.Marshal(w)
}
