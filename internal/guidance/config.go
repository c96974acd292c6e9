package guidance

import (
	"time"

	"github.com/banshee-data/jab.report/internal/config"
	"github.com/banshee-data/jab.report/internal/pose"
)

// Config holds the tuning parameters for a Machine.
type Config struct {
	ConfidenceThreshold float64         // Minimum landmark confidence (exclusive)
	RequiredLandmarks   []pose.Landmark // Landmarks that must all be confident
	StableFrames        int             // Consecutive complete samples to stabilise
	LossFrames          int             // Consecutive incomplete samples to destabilise
	AbortLossFrames     int             // Incomplete streak that aborts the attempt (0 = never)

	SmoothingWindow int           // Turn-angle window capacity
	TurnBandMin     float64       // Inclusive lower bound of the target turn (degrees)
	TurnBandMax     float64       // Inclusive upper bound of the target turn (degrees)
	ConfirmDelay    time.Duration // Presentation delay after turn confirmation

	SettleTicks    int           // Silent ticks before the visible countdown
	CountdownTicks int           // Visible countdown ticks (display N..1)
	TickInterval   time.Duration // Period of both tick phases

	ProgressStep         float64       // Progress added per progress tick
	ProgressInterval     time.Duration // Period of the progress ticker
	RecorderStartRetries int           // Start failures tolerated before aborting
	FinalizeTimeout      time.Duration // Wait for recorder completion (0 = forever)
	OutputDir            string
	OutputExt            string
}

// DefaultConfig returns the built-in product defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyGuidanceConfig())
}

// ConfigFromTuning builds a Config from a loaded GuidanceConfig.
func ConfigFromTuning(cfg *config.GuidanceConfig) Config {
	return Config{
		ConfidenceThreshold:  cfg.GetConfidenceThreshold(),
		RequiredLandmarks:    append([]pose.Landmark(nil), pose.RequiredLandmarks...),
		StableFrames:         cfg.GetStableFrames(),
		LossFrames:           cfg.GetLossFrames(),
		AbortLossFrames:      cfg.GetAbortLossFrames(),
		SmoothingWindow:      cfg.GetSmoothingWindow(),
		TurnBandMin:          cfg.GetTurnBandMinDeg(),
		TurnBandMax:          cfg.GetTurnBandMaxDeg(),
		ConfirmDelay:         cfg.GetConfirmDelay(),
		SettleTicks:          cfg.GetSettleTicks(),
		CountdownTicks:       cfg.GetCountdownTicks(),
		TickInterval:         cfg.GetTickInterval(),
		ProgressStep:         cfg.GetProgressStep(),
		ProgressInterval:     cfg.GetProgressInterval(),
		RecorderStartRetries: cfg.GetRecorderStartRetries(),
		FinalizeTimeout:      cfg.GetFinalizeTimeout(),
		OutputDir:            cfg.GetOutputDir(),
		OutputExt:            cfg.GetOutputExt(),
	}
}

// InTurnBand reports whether a smoothed turn angle confirms the stance.
func (c Config) InTurnBand(deg float64) bool {
	return deg >= c.TurnBandMin && deg <= c.TurnBandMax
}

// TotalTicks is the number of ticks from PreCountdown entry to Recording.
func (c Config) TotalTicks() int {
	return c.SettleTicks + c.CountdownTicks
}
