package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/banshee-data/jab.report/internal/capture"
	"github.com/banshee-data/jab.report/internal/cue"
	"github.com/banshee-data/jab.report/internal/detector"
	"github.com/banshee-data/jab.report/internal/guidance"
	"github.com/banshee-data/jab.report/internal/pose"
)

// poseSource is what main needs from a detector.SourceMux, whatever its
// port type.
type poseSource interface {
	Monitor(ctx context.Context) error
	SubscribeSamples(buffer int) (string, chan pose.Sample)
	UnsubscribeSamples(id string)
	AttachAdminRoutes(mux *http.ServeMux)
	Close() error
}

type sourceFlags struct {
	kind       string
	port       string
	baudRate   int
	parity     string
	stopBits   int
	replayPath string
	fps        float64
	loop       bool
}

func openSource(f sourceFlags) (poseSource, error) {
	switch strings.ToLower(f.kind) {
	case "serial":
		if f.port == "" {
			return nil, fmt.Errorf("serial source needs -port")
		}
		mux, err := detector.NewRealSourceMux(f.port, detector.PortOptions{
			BaudRate: f.baudRate,
			StopBits: f.stopBits,
			Parity:   f.parity,
		})
		if err != nil {
			return nil, err
		}
		return mux, nil
	case "replay":
		if f.replayPath == "" {
			return nil, fmt.Errorf("replay source needs -replay")
		}
		p, err := detector.OpenReplay(f.replayPath, detector.ReplayOptions{FPS: f.fps, Loop: f.loop})
		if err != nil {
			return nil, err
		}
		return detector.NewSourceMux(p), nil
	case "synthetic", "":
		p := detector.NewSyntheticPort(detector.SyntheticOptions{FPS: f.fps, Loop: f.loop})
		return detector.NewSourceMux(p), nil
	}
	return nil, fmt.Errorf("unknown source %q (want serial, replay or synthetic)", f.kind)
}

type recorderFlags struct {
	kind         string
	ffmpegBinary string
	ffmpegFormat string
	ffmpegDevice string
	sourceName   string
}

func newRecorder(f recorderFlags, src capture.SampleSource) (guidance.Recorder, error) {
	switch strings.ToLower(f.kind) {
	case "ffmpeg":
		return capture.NewFFmpegRecorder(capture.FFmpegOptions{
			Binary:      f.ffmpegBinary,
			InputFormat: f.ffmpegFormat,
			Device:      f.ffmpegDevice,
		}, nil), nil
	case recorderPoseLog, "":
		return capture.NewPoseLogRecorder(src, f.sourceName, nil, nil), nil
	}
	return nil, fmt.Errorf("unknown recorder %q (want ffmpeg or poselog)", f.kind)
}

func newCuePlayer(dir, binary, ext string) (cue.Player, error) {
	if dir == "" {
		return cue.LogPlayer{}, nil
	}
	return cue.NewCommandPlayer(binary, dir, ext)
}

const recorderPoseLog = "poselog"

func isPoseLogRecorder(kind string) bool {
	k := strings.ToLower(kind)
	return k == recorderPoseLog || k == ""
}
