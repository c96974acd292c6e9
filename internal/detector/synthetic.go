package detector

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/jab.report/internal/pose"
	"github.com/banshee-data/jab.report/internal/timeutil"
)

// Phase is one stretch of a synthetic script: Frames samples of a subject
// with the given framing and stance.
type Phase struct {
	Name      string
	Frames    int
	Framed    bool    // all required landmarks confidently in view
	TurnAngle float64 // adjusted turn angle in degrees; NaN hides the shoulders
}

// DefaultScript walks a subject through the whole guidance flow: empty
// frame, partly in view, square to the camera, then turned into stance and
// held.
func DefaultScript() []Phase {
	return []Phase{
		{Name: "empty", Frames: 15, TurnAngle: math.NaN()},
		{Name: "partial", Frames: 15, TurnAngle: math.NaN()},
		{Name: "square", Frames: 30, Framed: true, TurnAngle: 0},
		{Name: "stance", Frames: 600, Framed: true, TurnAngle: 7},
	}
}

// SyntheticPort generates keypoint lines from a script, for running without
// a camera. Writing "reset" restarts the script; the stream ends after the
// last phase unless Loop is set.
type SyntheticPort struct {
	*pacedPort

	mu    sync.Mutex
	frame int
}

// SyntheticOptions configure a SyntheticPort.
type SyntheticOptions struct {
	FPS    float64
	Script []Phase
	Loop   bool
	Clock  timeutil.Clock
}

// NewSyntheticPort starts generating frames.
func NewSyntheticPort(opts SyntheticOptions) *SyntheticPort {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	script := opts.Script
	if len(script) == 0 {
		script = DefaultScript()
	}
	total := 0
	for _, ph := range script {
		total += ph.Frames
	}

	p := &SyntheticPort{}
	next := func(now time.Time) ([]byte, bool) {
		p.mu.Lock()
		i := p.frame
		p.frame++
		p.mu.Unlock()
		if total == 0 {
			return nil, false
		}
		if i >= total {
			if !opts.Loop {
				return nil, false
			}
			i %= total
		}
		line, err := pose.Encode(SyntheticSample(phaseAt(script, i), now))
		if err != nil {
			logf("synthetic encode: %v", err)
			return nil, false
		}
		return line, true
	}
	p.pacedPort = newPacedPort(clock, frameInterval(opts.FPS), next)
	p.pacedPort.onCmd = func(cmd string) {
		if cmd == "reset" {
			p.mu.Lock()
			p.frame = 0
			p.mu.Unlock()
		}
	}
	return p
}

func phaseAt(script []Phase, i int) Phase {
	for _, ph := range script {
		if i < ph.Frames {
			return ph
		}
		i -= ph.Frames
	}
	return script[len(script)-1]
}

// SyntheticSample builds the keypoints for one frame of ph.
func SyntheticSample(ph Phase, at time.Time) pose.Sample {
	kps := map[pose.Landmark]pose.Keypoint{}
	if ph.Name == "empty" {
		return pose.Sample{Time: at, Keypoints: kps}
	}
	conf := 0.9
	kps[pose.Nose] = pose.Keypoint{X: 0.5, Y: 0.15, Confidence: conf}
	kps[pose.LeftWrist] = pose.Keypoint{X: 0.6, Y: 0.35, Confidence: conf}
	kps[pose.RightWrist] = pose.Keypoint{X: 0.42, Y: 0.33, Confidence: conf}
	kps[pose.LeftHip] = pose.Keypoint{X: 0.55, Y: 0.55, Confidence: conf}
	kps[pose.RightHip] = pose.Keypoint{X: 0.45, Y: 0.55, Confidence: conf}
	ankleConf := conf
	if !ph.Framed {
		ankleConf = 0.1
	}
	kps[pose.LeftAnkle] = pose.Keypoint{X: 0.56, Y: 0.92, Confidence: ankleConf}
	kps[pose.RightAnkle] = pose.Keypoint{X: 0.44, Y: 0.92, Confidence: ankleConf}

	if !math.IsNaN(ph.TurnAngle) {
		// The shoulder line sits at 90+turn degrees, so the adjusted turn
		// angle |line - 90| is ph.TurnAngle.
		rad := (90 + ph.TurnAngle) * math.Pi / 180
		const half = 0.08
		kps[pose.RightShoulder] = pose.Keypoint{X: 0.5 - half*math.Cos(rad), Y: 0.3 - half*math.Sin(rad), Confidence: conf}
		kps[pose.LeftShoulder] = pose.Keypoint{X: 0.5 + half*math.Cos(rad), Y: 0.3 + half*math.Sin(rad), Confidence: conf}
	}
	return pose.Sample{Time: at, Keypoints: kps}
}
