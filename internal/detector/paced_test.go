package detector

import (
	"bufio"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/jab.report/internal/guidance"
	"github.com/banshee-data/jab.report/internal/pose"
	"github.com/banshee-data/jab.report/internal/timeutil"
)

type seekCloser struct{ *strings.Reader }

func (seekCloser) Close() error { return nil }

// waitTicker blocks until the port goroutine has armed its ticker.
func waitTicker(t *testing.T, clk *timeutil.MockClock) {
	t.Helper()
	require.Eventually(t, func() bool { return clk.Active() == 1 }, time.Second, time.Millisecond)
}

func TestReplayPort_PacesAndLoops(t *testing.T) {
	t.Parallel()

	clk := timeutil.NewMockClock(time.Unix(0, 0))
	src := seekCloser{strings.NewReader("a\n\n# comment\nb\n")}
	port := NewReplayPort(src, ReplayOptions{FPS: 10, Loop: true, Clock: clk})
	defer port.Close()
	waitTicker(t, clk)

	r := bufio.NewReader(port)
	var got []string
	for i := 0; i < 3; i++ {
		clk.Advance(100 * time.Millisecond)
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		got = append(got, strings.TrimSpace(line))
	}
	assert.Equal(t, []string{"a", "b", "a"}, got)

	_, err := port.Write([]byte("pause\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"pause"}, port.Commands())
}

func TestReplayPort_EndsAtEOF(t *testing.T) {
	t.Parallel()

	clk := timeutil.NewMockClock(time.Unix(0, 0))
	port := NewReplayPort(seekCloser{strings.NewReader("only\n")}, ReplayOptions{FPS: 30, Clock: clk})
	defer port.Close()
	waitTicker(t, clk)

	r := bufio.NewReader(port)
	clk.Advance(time.Second)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "only\n", line)

	clk.Advance(time.Second)
	_, err = r.ReadString('\n')
	assert.Error(t, err)
}

func TestSyntheticSample_DrivesGuidanceGeometry(t *testing.T) {
	t.Parallel()

	cfg := guidance.DefaultConfig()
	at := time.Unix(10, 0)

	empty := SyntheticSample(Phase{Name: "empty", TurnAngle: math.NaN()}, at)
	assert.False(t, empty.Complete(pose.RequiredLandmarks, cfg.ConfidenceThreshold))

	partial := SyntheticSample(Phase{Name: "partial", TurnAngle: math.NaN()}, at)
	assert.False(t, partial.Complete(pose.RequiredLandmarks, cfg.ConfidenceThreshold))
	_, ok := partial.TurnAngle(cfg.ConfidenceThreshold)
	assert.False(t, ok)

	stance := SyntheticSample(Phase{Name: "stance", Framed: true, TurnAngle: 7}, at)
	require.True(t, stance.Complete(pose.RequiredLandmarks, cfg.ConfidenceThreshold))
	angle, ok := stance.TurnAngle(cfg.ConfidenceThreshold)
	require.True(t, ok)
	assert.InDelta(t, 7, angle, 1e-9)
	assert.True(t, cfg.InTurnBand(angle))
	assert.Equal(t, at, stance.Time)
}

func TestSyntheticPort_FollowsScriptAndResets(t *testing.T) {
	t.Parallel()

	clk := timeutil.NewMockClock(time.Unix(0, 0))
	port := NewSyntheticPort(SyntheticOptions{
		FPS:   30,
		Clock: clk,
		Script: []Phase{
			{Name: "empty", Frames: 1, TurnAngle: math.NaN()},
			{Name: "stance", Frames: 1, Framed: true, TurnAngle: 5},
		},
	})
	defer port.Close()
	waitTicker(t, clk)

	r := bufio.NewReader(port)
	next := func() pose.Sample {
		t.Helper()
		clk.Advance(time.Second / 30)
		line, err := r.ReadBytes('\n')
		require.NoError(t, err)
		s, err := pose.Decode(line, time.Time{})
		require.NoError(t, err)
		return s
	}

	assert.Empty(t, next().Keypoints)
	assert.Len(t, next().Keypoints, 9)

	_, err := port.Write([]byte("reset\n"))
	require.NoError(t, err)
	assert.Empty(t, next().Keypoints, "reset restarts at the first phase")
}
