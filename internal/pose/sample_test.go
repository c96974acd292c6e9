package pose

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullBody(conf float64) map[Landmark]Keypoint {
	kps := make(map[Landmark]Keypoint)
	for _, l := range RequiredLandmarks {
		kps[l] = Keypoint{X: 0.5, Y: 0.5, Confidence: conf}
	}
	return kps
}

func TestSample_Complete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample Sample
		want   bool
	}{
		{"empty", Sample{}, false},
		{"all confident", Sample{Keypoints: fullBody(0.9)}, true},
		{"exactly at threshold is not confident", Sample{Keypoints: fullBody(0.3)}, false},
		{"just above threshold", Sample{Keypoints: fullBody(0.31)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sample.Complete(RequiredLandmarks, 0.3))
		})
	}

	t.Run("missing ankle", func(t *testing.T) {
		kps := fullBody(0.9)
		delete(kps, RightAnkle)
		assert.False(t, Sample{Keypoints: kps}.Complete(RequiredLandmarks, 0.3))
	})

	t.Run("one weak wrist", func(t *testing.T) {
		kps := fullBody(0.9)
		kps[LeftWrist] = Keypoint{X: 0.2, Y: 0.4, Confidence: 0.1}
		assert.False(t, Sample{Keypoints: kps}.Complete(RequiredLandmarks, 0.3))
	})
}

func TestSample_TurnAngle(t *testing.T) {
	t.Parallel()

	shoulders := func(lineDeg float64) Sample {
		rad := lineDeg * math.Pi / 180
		kps := fullBody(0.9)
		kps[RightShoulder] = Keypoint{X: 0.5, Y: 0.5, Confidence: 0.9}
		kps[LeftShoulder] = Keypoint{X: 0.5 + 0.1*math.Cos(rad), Y: 0.5 + 0.1*math.Sin(rad), Confidence: 0.9}
		return Sample{Keypoints: kps}
	}

	for _, tc := range []struct {
		line, want float64
	}{
		{90, 0},
		{97, 7},
		{83, 7},
		{0, 90},
		{180, 90},
	} {
		got, ok := shoulders(tc.line).TurnAngle(0.3)
		require.True(t, ok)
		assert.InDelta(t, tc.want, got, 1e-9, "line %v°", tc.line)
	}

	t.Run("missing shoulder", func(t *testing.T) {
		_, ok := Sample{Keypoints: fullBody(0.9)}.TurnAngle(0.3)
		assert.False(t, ok)
	})
}

func TestDecode_NamedAndCOCO(t *testing.T) {
	t.Parallel()
	now := time.Unix(100, 0)

	named, err := Decode([]byte(`{"t": 5000, "keypoints": {"nose": {"x": 0.1, "y": 0.2, "c": 0.8}}}`), now)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0, 5000), named.Time)
	assert.Equal(t, Keypoint{X: 0.1, Y: 0.2, Confidence: 0.8}, named.Keypoints[Nose])

	coco := `{"coco": [[0.5,0.1,0.9],[0,0,0],[0,0,0],[0,0,0],[0,0,0],
		[0.6,0.3,0.8],[0.4,0.3,0.8],[0,0,0],[0,0,0],[0.7,0.5,0.7],[0.3,0.5,0.7],
		[0,0,0],[0,0,0],[0,0,0],[0,0,0],[0.55,0.95,0.6],[0.45,0.95,0.6]]}`
	s, err := Decode([]byte(coco), now)
	require.NoError(t, err)
	assert.Equal(t, now, s.Time)
	assert.True(t, s.Complete(RequiredLandmarks, 0.3))
	_, hasEye := s.Keypoints[LeftEye]
	assert.False(t, hasEye, "zero-confidence triples are dropped")
	assert.Equal(t, 0.6, s.Keypoints[LeftShoulder].X)
}

func TestDecode_NoBodyAndErrors(t *testing.T) {
	t.Parallel()
	now := time.Unix(100, 0)

	s, err := Decode([]byte(`{"t": 1}`), now)
	require.NoError(t, err)
	assert.False(t, s.Complete(RequiredLandmarks, 0.3))

	_, err = Decode([]byte(`not json`), now)
	assert.Error(t, err)

	_, err = Decode([]byte(`{"coco": [[0,0,0]]}`), now)
	assert.ErrorContains(t, err, "expected 17")
}

func TestEncode_DecodeRoundTripKeepsKeypoints(t *testing.T) {
	t.Parallel()
	in := Sample{Time: time.Unix(0, 42), Keypoints: fullBody(0.75)}
	line, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(line, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, in.Time.UnixNano(), out.Time.UnixNano())
	assert.Equal(t, in.Keypoints, out.Keypoints)
}
