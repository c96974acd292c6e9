package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/jab.report/internal/capture"
	"github.com/banshee-data/jab.report/internal/cue"
	"github.com/banshee-data/jab.report/internal/guidance"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, ":8080", *listen)
	assert.Equal(t, "synthetic", *sourceKind)
	assert.Equal(t, "poselog", *recorderKind)
	assert.True(t, *autoStart)
	assert.Empty(t, *cueDir)
	assert.Empty(t, *timezone)
}

func TestLoadGuidanceConfig(t *testing.T) {
	t.Parallel()

	cfg, err := loadGuidanceConfig("", "", "ffmpeg")
	require.NoError(t, err)
	assert.Equal(t, guidance.DefaultConfig(), cfg)

	cfg, err = loadGuidanceConfig("", "/tmp/jabs", "ffmpeg")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/jabs", cfg.OutputDir)

	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"stable_frames": 7, "output_ext": ".mp4"}`), 0o644))
	cfg, err = loadGuidanceConfig(path, "", "poselog")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.StableFrames)
	assert.Equal(t, ".mp4", cfg.OutputExt)

	_, err = loadGuidanceConfig(filepath.Join(t.TempDir(), "missing.json"), "", "poselog")
	assert.Error(t, err)
}

func TestLoadGuidanceConfig_PoseLogExtension(t *testing.T) {
	t.Parallel()

	cfg, err := loadGuidanceConfig("", "", *recorderKind)
	require.NoError(t, err)
	assert.Equal(t, capture.PoseLogExtension, cfg.OutputExt, "default recorder writes pose logs")

	cfg, err = loadGuidanceConfig("", "", "ffmpeg")
	require.NoError(t, err)
	assert.Equal(t, guidance.DefaultConfig().OutputExt, cfg.OutputExt)

	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"output_ext": ".jsonl"}`), 0o644))
	cfg, err = loadGuidanceConfig(path, "", "poselog")
	require.NoError(t, err)
	assert.Equal(t, ".jsonl", cfg.OutputExt, "explicit extension wins")
}

func TestOpenSource(t *testing.T) {
	t.Parallel()

	src, err := openSource(sourceFlags{kind: "synthetic", fps: 30})
	require.NoError(t, err)
	require.NoError(t, src.Close())

	replay := filepath.Join(t.TempDir(), "frames.jsonl")
	require.NoError(t, os.WriteFile(replay, []byte("{\"keypoints\":{}}\n"), 0o644))
	src, err = openSource(sourceFlags{kind: "replay", replayPath: replay, fps: 30})
	require.NoError(t, err)
	require.NoError(t, src.Close())

	for _, f := range []sourceFlags{
		{kind: "replay"},
		{kind: "replay", replayPath: filepath.Join(t.TempDir(), "missing.jsonl")},
		{kind: "serial"},
		{kind: "webcam"},
	} {
		_, err := openSource(f)
		assert.Error(t, err, f.kind)
	}
}

func TestNewRecorder(t *testing.T) {
	t.Parallel()

	rec, err := newRecorder(recorderFlags{kind: "ffmpeg", ffmpegDevice: "/dev/video0"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &capture.FFmpegRecorder{}, rec)

	rec, err = newRecorder(recorderFlags{kind: "poselog"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &capture.PoseLogRecorder{}, rec)

	_, err = newRecorder(recorderFlags{kind: "vhs"}, nil)
	assert.Error(t, err)
}

func TestNewCuePlayer(t *testing.T) {
	t.Parallel()

	p, err := newCuePlayer("", "aplay", ".wav")
	require.NoError(t, err)
	assert.Equal(t, cue.LogPlayer{}, p)

	_, err = newCuePlayer(t.TempDir(), "definitely-not-an-audio-player", ".wav")
	assert.Error(t, err)
}
