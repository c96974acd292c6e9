package pose

import (
	"math"
	"time"
)

// Landmark names an anatomical keypoint.
type Landmark string

const (
	Nose          Landmark = "nose"
	LeftEye       Landmark = "left_eye"
	RightEye      Landmark = "right_eye"
	LeftEar       Landmark = "left_ear"
	RightEar      Landmark = "right_ear"
	LeftShoulder  Landmark = "left_shoulder"
	RightShoulder Landmark = "right_shoulder"
	LeftElbow     Landmark = "left_elbow"
	RightElbow    Landmark = "right_elbow"
	LeftWrist     Landmark = "left_wrist"
	RightWrist    Landmark = "right_wrist"
	LeftHip       Landmark = "left_hip"
	RightHip      Landmark = "right_hip"
	LeftKnee      Landmark = "left_knee"
	RightKnee     Landmark = "right_knee"
	LeftAnkle     Landmark = "left_ankle"
	RightAnkle    Landmark = "right_ankle"
)

// COCOOrder is the 17-keypoint order used by COCO-trained pose models
// (YOLOv8-pose, RTMPose, MoveNet).
var COCOOrder = [17]Landmark{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow,
	LeftWrist, RightWrist, LeftHip, RightHip,
	LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

// RequiredLandmarks must all be confidently detected for the body to count
// as fully framed.
var RequiredLandmarks = []Landmark{Nose, LeftWrist, RightWrist, LeftAnkle, RightAnkle}

// Keypoint is one detected landmark in normalised image coordinates.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"c"`
}

// Sample is the detector output for one processed frame.
type Sample struct {
	Time      time.Time
	Keypoints map[Landmark]Keypoint
}

// Confident reports whether l is present with confidence strictly above
// threshold.
func (s Sample) Confident(l Landmark, threshold float64) bool {
	kp, ok := s.Keypoints[l]
	return ok && kp.Confidence > threshold
}

// Complete reports whether every required landmark is confidently detected.
func (s Sample) Complete(required []Landmark, threshold float64) bool {
	if len(s.Keypoints) == 0 {
		return false
	}
	for _, l := range required {
		if !s.Confident(l, threshold) {
			return false
		}
	}
	return true
}

// ShoulderAngle returns the angle in degrees of the line from the right
// shoulder to the left shoulder relative to horizontal, in (-180, 180].
// ok is false when either shoulder is missing or below threshold.
func (s Sample) ShoulderAngle(threshold float64) (deg float64, ok bool) {
	if !s.Confident(LeftShoulder, threshold) || !s.Confident(RightShoulder, threshold) {
		return 0, false
	}
	l, r := s.Keypoints[LeftShoulder], s.Keypoints[RightShoulder]
	return math.Atan2(l.Y-r.Y, l.X-r.X) * 180 / math.Pi, true
}

// TurnAngle returns |ShoulderAngle - 90|, the adjusted stance turn angle.
func (s Sample) TurnAngle(threshold float64) (deg float64, ok bool) {
	a, ok := s.ShoulderAngle(threshold)
	if !ok {
		return 0, false
	}
	return math.Abs(a - 90), true
}
