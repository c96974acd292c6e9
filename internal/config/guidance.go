package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical guidance defaults file.
const DefaultConfigPath = "config/guidance.defaults.json"

// GuidanceConfig is the on-disk tuning for the capture guidance flow. Every
// field is optional; the Get* accessors fall back to the product-tuned
// defaults for anything the file omits.
type GuidanceConfig struct {
	// Body detection
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	StableFrames        *int     `json:"stable_frames,omitempty"`
	LossFrames          *int     `json:"loss_frames,omitempty"`
	AbortLossFrames     *int     `json:"abort_loss_frames,omitempty"` // 0 disables

	// Stance turn
	SmoothingWindow *int     `json:"smoothing_window,omitempty"`
	TurnBandMinDeg  *float64 `json:"turn_band_min_deg,omitempty"`
	TurnBandMaxDeg  *float64 `json:"turn_band_max_deg,omitempty"`
	ConfirmDelay    *string  `json:"confirm_delay,omitempty"` // duration string like "2s"

	// Countdown
	SettleTicks    *int    `json:"settle_ticks,omitempty"`
	CountdownTicks *int    `json:"countdown_ticks,omitempty"`
	TickInterval   *string `json:"tick_interval,omitempty"`

	// Recording
	ProgressStep         *float64 `json:"progress_step,omitempty"`
	ProgressInterval     *string  `json:"progress_interval,omitempty"`
	RecorderStartRetries *int     `json:"recorder_start_retries,omitempty"`
	FinalizeTimeout      *string  `json:"finalize_timeout,omitempty"`
	OutputDir            *string  `json:"output_dir,omitempty"`
	OutputExt            *string  `json:"output_ext,omitempty"`
}

// EmptyGuidanceConfig returns a GuidanceConfig with all fields unset, so
// every accessor reports its default.
func EmptyGuidanceConfig() *GuidanceConfig {
	return &GuidanceConfig{}
}

// LoadGuidanceConfig loads a GuidanceConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadGuidanceConfig(path string) (*GuidanceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyGuidanceConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *GuidanceConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // deeper packages
		"../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadGuidanceConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *GuidanceConfig) Validate() error {
	if c.ConfidenceThreshold != nil {
		if *c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1 {
			return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", *c.ConfidenceThreshold)
		}
	}

	for name, v := range map[string]*int{
		"stable_frames":    c.StableFrames,
		"loss_frames":      c.LossFrames,
		"smoothing_window": c.SmoothingWindow,
		"countdown_ticks":  c.CountdownTicks,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}
	for name, v := range map[string]*int{
		"abort_loss_frames":      c.AbortLossFrames,
		"settle_ticks":           c.SettleTicks,
		"recorder_start_retries": c.RecorderStartRetries,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}

	if c.GetTurnBandMinDeg() > c.GetTurnBandMaxDeg() {
		return fmt.Errorf("turn_band_min_deg (%f) exceeds turn_band_max_deg (%f)", c.GetTurnBandMinDeg(), c.GetTurnBandMaxDeg())
	}

	if c.ProgressStep != nil {
		if *c.ProgressStep <= 0 || *c.ProgressStep > 1 {
			return fmt.Errorf("progress_step must be in (0, 1], got %f", *c.ProgressStep)
		}
	}

	for name, v := range map[string]*string{
		"confirm_delay":     c.ConfirmDelay,
		"tick_interval":     c.TickInterval,
		"progress_interval": c.ProgressInterval,
		"finalize_timeout":  c.FinalizeTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}
	if c.GetTickInterval() <= 0 || c.GetProgressInterval() <= 0 {
		return fmt.Errorf("tick_interval and progress_interval must be positive")
	}

	return nil
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetConfidenceThreshold returns the per-landmark confidence floor.
func (c *GuidanceConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.3
	}
	return *c.ConfidenceThreshold
}

// GetStableFrames returns the consecutive complete samples needed to stabilise.
func (c *GuidanceConfig) GetStableFrames() int {
	if c.StableFrames == nil {
		return 5
	}
	return *c.StableFrames
}

// GetLossFrames returns the consecutive incomplete samples needed to destabilise.
func (c *GuidanceConfig) GetLossFrames() int {
	if c.LossFrames == nil {
		return 10
	}
	return *c.LossFrames
}

// GetAbortLossFrames returns the loss streak that aborts an attempt (0 = never).
func (c *GuidanceConfig) GetAbortLossFrames() int {
	if c.AbortLossFrames == nil {
		return 0
	}
	return *c.AbortLossFrames
}

// GetSmoothingWindow returns the turn-angle window capacity.
func (c *GuidanceConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return 5
	}
	return *c.SmoothingWindow
}

func (c *GuidanceConfig) GetTurnBandMinDeg() float64 {
	if c.TurnBandMinDeg == nil {
		return 2.0
	}
	return *c.TurnBandMinDeg
}

func (c *GuidanceConfig) GetTurnBandMaxDeg() float64 {
	if c.TurnBandMaxDeg == nil {
		return 12.0
	}
	return *c.TurnBandMaxDeg
}

func (c *GuidanceConfig) GetConfirmDelay() time.Duration {
	return durationOr(c.ConfirmDelay, 2*time.Second)
}

func (c *GuidanceConfig) GetSettleTicks() int {
	if c.SettleTicks == nil {
		return 3
	}
	return *c.SettleTicks
}

func (c *GuidanceConfig) GetCountdownTicks() int {
	if c.CountdownTicks == nil {
		return 5
	}
	return *c.CountdownTicks
}

func (c *GuidanceConfig) GetTickInterval() time.Duration {
	return durationOr(c.TickInterval, time.Second)
}

func (c *GuidanceConfig) GetProgressStep() float64 {
	if c.ProgressStep == nil {
		return 0.05
	}
	return *c.ProgressStep
}

func (c *GuidanceConfig) GetProgressInterval() time.Duration {
	return durationOr(c.ProgressInterval, 100*time.Millisecond)
}

func (c *GuidanceConfig) GetRecorderStartRetries() int {
	if c.RecorderStartRetries == nil {
		return 3
	}
	return *c.RecorderStartRetries
}

// GetFinalizeTimeout returns how long to wait for the recorder to report
// completion after stop (0 waits forever).
func (c *GuidanceConfig) GetFinalizeTimeout() time.Duration {
	return durationOr(c.FinalizeTimeout, 5*time.Second)
}

func (c *GuidanceConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "recordings"
	}
	return *c.OutputDir
}

func (c *GuidanceConfig) GetOutputExt() string {
	if c.OutputExt == nil || *c.OutputExt == "" {
		return ".mov"
	}
	return *c.OutputExt
}
