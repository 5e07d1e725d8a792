package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// Its calibration and threshold values match the built-in defaults of
// internal/geometry, internal/tracker and internal/laser.
const DefaultConfigPath = "config/tuning.defaults.json"

// requiredTuningKeys lists every JSON key a complete tuning file must
// set. LoadTuningConfig rejects a file missing any of these so a typo'd
// or half-written deployment config fails loudly instead of silently
// falling back to zero values.
var requiredTuningKeys = []string{
	"frame_w", "frame_h", "lens_focal_len",
	"k1", "k2", "k3", "p1", "p2", "p3",
	"in_per_pixel", "camera_height",
	"m1x", "m1y", "m1z", "m2z",
	"m1_min", "m1_max", "m2_min", "m2_max",
	"accel", "max_v",
	"ant_len_mm", "ant_width_mm",
	"close_blob", "max_score", "score_floor", "max_idle_age",
	"min_blob_pixels", "min_bright_pixels", "neural_threshold",
	"uv_window", "speed_window",
	"take_snapshots",
}

// TuningConfig is the deployment-overridable set of controller
// tunables: camera/lens/mirror calibration, the ant-size model, and
// the tracker/FSM thresholds. Fields are pointers so a JSON file can
// be checked for which keys it actually set; LoadTuningConfig requires
// every key in requiredTuningKeys be present.
type TuningConfig struct {
	// Frame and lens geometry
	FrameW       *int     `json:"frame_w,omitempty"`
	FrameH       *int     `json:"frame_h,omitempty"`
	LensFocalLen *float64 `json:"lens_focal_len,omitempty"`
	K1           *float64 `json:"k1,omitempty"`
	K2           *float64 `json:"k2,omitempty"`
	K3           *float64 `json:"k3,omitempty"`
	P1           *float64 `json:"p1,omitempty"`
	P2           *float64 `json:"p2,omitempty"`
	P3           *float64 `json:"p3,omitempty"`
	InPerPixel   *float64 `json:"in_per_pixel,omitempty"`
	CameraHeight *float64 `json:"camera_height,omitempty"`

	// Mirror geometry and step limits
	M1X   *float64 `json:"m1x,omitempty"`
	M1Y   *float64 `json:"m1y,omitempty"`
	M1Z   *float64 `json:"m1z,omitempty"`
	M2Z   *float64 `json:"m2z,omitempty"`
	M1Min *int     `json:"m1_min,omitempty"`
	M1Max *int     `json:"m1_max,omitempty"`
	M2Min *int     `json:"m2_min,omitempty"`
	M2Max *int     `json:"m2_max,omitempty"`

	// Move profile
	Accel *float64 `json:"accel,omitempty"`
	MaxV  *float64 `json:"max_v,omitempty"`

	// Ant-size model (see internal/geometry AntLenMM/AntWidthMM)
	AntLenMM   *float64 `json:"ant_len_mm,omitempty"`
	AntWidthMM *float64 `json:"ant_width_mm,omitempty"`

	// Tracker thresholds (see internal/tracker)
	CloseBlob  *int `json:"close_blob,omitempty"`
	MaxScore   *int `json:"max_score,omitempty"`
	ScoreFloor *int `json:"score_floor,omitempty"`
	MaxIdleAge *int `json:"max_idle_age,omitempty"`

	// Laser locator thresholds (see internal/laser)
	MinBlobPixels   *int     `json:"min_blob_pixels,omitempty"`
	MinBrightPixels *int     `json:"min_bright_pixels,omitempty"`
	NeuralThreshold *float64 `json:"neural_threshold,omitempty"`

	// Smoothing window sizes, as durations (see internal/avg)
	UVWindow    *string `json:"uv_window,omitempty"`
	SpeedWindow *string `json:"speed_window,omitempty"`

	// Snapshot toggle (see internal/snapshot)
	TakeSnapshots *bool `json:"take_snapshots,omitempty"`
}

func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension, be under the max file size, and set every
// key in requiredTuningKeys -- a partial config is rejected rather than
// silently falling back to zero values for the fields it omits.
func LoadTuningConfig(path string) (*TuningConfig, error) {
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

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	var missing []string
	for _, key := range requiredTuningKeys {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config file missing required keys: %v", missing)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching from the current directory up through
// common parent directories. Panics if the file cannot be loaded;
// intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	var lastErr error
	for _, path := range candidates {
		cfg, err := LoadTuningConfig(path)
		if err == nil {
			return cfg
		}
		lastErr = err
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root: " + lastErr.Error())
}

// Validate checks that any set configuration values are sane. Unset
// (nil) fields are skipped, so it is safe to call on a partial config.
func (c *TuningConfig) Validate() error {
	if c.FrameW != nil && *c.FrameW <= 0 {
		return fmt.Errorf("frame_w must be positive, got %d", *c.FrameW)
	}
	if c.FrameH != nil && *c.FrameH <= 0 {
		return fmt.Errorf("frame_h must be positive, got %d", *c.FrameH)
	}
	if c.AntLenMM != nil && *c.AntLenMM <= 0 {
		return fmt.Errorf("ant_len_mm must be positive, got %f", *c.AntLenMM)
	}
	if c.AntWidthMM != nil && *c.AntWidthMM <= 0 {
		return fmt.Errorf("ant_width_mm must be positive, got %f", *c.AntWidthMM)
	}
	if c.CloseBlob != nil && *c.CloseBlob <= 0 {
		return fmt.Errorf("close_blob must be positive, got %d", *c.CloseBlob)
	}
	if c.MaxScore != nil && *c.MaxScore <= 0 {
		return fmt.Errorf("max_score must be positive, got %d", *c.MaxScore)
	}
	if c.NeuralThreshold != nil && (*c.NeuralThreshold < 0 || *c.NeuralThreshold > 1) {
		return fmt.Errorf("neural_threshold must be between 0 and 1, got %f", *c.NeuralThreshold)
	}
	if c.UVWindow != nil {
		if _, err := time.ParseDuration(*c.UVWindow); err != nil {
			return fmt.Errorf("uv_window must be a valid duration, got %q: %w", *c.UVWindow, err)
		}
	}
	if c.SpeedWindow != nil {
		if _, err := time.ParseDuration(*c.SpeedWindow); err != nil {
			return fmt.Errorf("speed_window must be a valid duration, got %q: %w", *c.SpeedWindow, err)
		}
	}
	if c.M1Min != nil && c.M1Max != nil && *c.M1Min >= *c.M1Max {
		return fmt.Errorf("m1_min (%d) must be less than m1_max (%d)", *c.M1Min, *c.M1Max)
	}
	if c.M2Min != nil && c.M2Max != nil && *c.M2Min >= *c.M2Max {
		return fmt.Errorf("m2_min (%d) must be less than m2_max (%d)", *c.M2Min, *c.M2Max)
	}
	return nil
}

// ValidateComplete additionally requires every tunable to be set, for
// callers (like the startup path loading the canonical defaults file)
// that need a config with no gaps.
func (c *TuningConfig) ValidateComplete() error {
	if err := c.Validate(); err != nil {
		return err
	}
	v := map[string]bool{
		"frame_w": c.FrameW != nil, "frame_h": c.FrameH != nil,
		"lens_focal_len": c.LensFocalLen != nil,
		"k1":             c.K1 != nil, "k2": c.K2 != nil, "k3": c.K3 != nil,
		"p1": c.P1 != nil, "p2": c.P2 != nil, "p3": c.P3 != nil,
		"in_per_pixel": c.InPerPixel != nil, "camera_height": c.CameraHeight != nil,
		"m1x": c.M1X != nil, "m1y": c.M1Y != nil, "m1z": c.M1Z != nil, "m2z": c.M2Z != nil,
		"m1_min": c.M1Min != nil, "m1_max": c.M1Max != nil,
		"m2_min": c.M2Min != nil, "m2_max": c.M2Max != nil,
		"accel": c.Accel != nil, "max_v": c.MaxV != nil,
		"ant_len_mm": c.AntLenMM != nil, "ant_width_mm": c.AntWidthMM != nil,
		"close_blob": c.CloseBlob != nil, "max_score": c.MaxScore != nil,
		"score_floor": c.ScoreFloor != nil, "max_idle_age": c.MaxIdleAge != nil,
		"min_blob_pixels": c.MinBlobPixels != nil, "min_bright_pixels": c.MinBrightPixels != nil,
		"neural_threshold": c.NeuralThreshold != nil,
		"uv_window":        c.UVWindow != nil, "speed_window": c.SpeedWindow != nil,
		"take_snapshots": c.TakeSnapshots != nil,
	}
	for _, key := range requiredTuningKeys {
		if !v[key] {
			return fmt.Errorf("missing required tuning value: %s", key)
		}
	}
	return nil
}

const (
	defaultFrameW       = 1280
	defaultFrameH       = 960
	defaultCloseBlob    = 40
	defaultMaxScore     = 50
	defaultScoreFloor   = 25
	defaultMaxIdleAge   = 3
	defaultMinBlobPix   = 80
	defaultMinBrightPix = 60
	defaultNeuralThresh = 0.9
	defaultUVWindow     = "500ms"
	defaultSpeedWindow  = "1s"
)

func (c *TuningConfig) GetFrameW() int {
	if c.FrameW != nil {
		return *c.FrameW
	}
	return defaultFrameW
}

func (c *TuningConfig) GetFrameH() int {
	if c.FrameH != nil {
		return *c.FrameH
	}
	return defaultFrameH
}

func (c *TuningConfig) GetCloseBlob() int {
	if c.CloseBlob != nil {
		return *c.CloseBlob
	}
	return defaultCloseBlob
}

func (c *TuningConfig) GetMaxScore() int {
	if c.MaxScore != nil {
		return *c.MaxScore
	}
	return defaultMaxScore
}

func (c *TuningConfig) GetScoreFloor() int {
	if c.ScoreFloor != nil {
		return *c.ScoreFloor
	}
	return defaultScoreFloor
}

func (c *TuningConfig) GetMaxIdleAge() int {
	if c.MaxIdleAge != nil {
		return *c.MaxIdleAge
	}
	return defaultMaxIdleAge
}

func (c *TuningConfig) GetMinBlobPixels() int {
	if c.MinBlobPixels != nil {
		return *c.MinBlobPixels
	}
	return defaultMinBlobPix
}

func (c *TuningConfig) GetMinBrightPixels() int {
	if c.MinBrightPixels != nil {
		return *c.MinBrightPixels
	}
	return defaultMinBrightPix
}

func (c *TuningConfig) GetNeuralThreshold() float64 {
	if c.NeuralThreshold != nil {
		return *c.NeuralThreshold
	}
	return defaultNeuralThresh
}

func (c *TuningConfig) GetUVWindow() time.Duration {
	if c.UVWindow != nil {
		if d, err := time.ParseDuration(*c.UVWindow); err == nil {
			return d
		}
	}
	d, _ := time.ParseDuration(defaultUVWindow)
	return d
}

func (c *TuningConfig) GetSpeedWindow() time.Duration {
	if c.SpeedWindow != nil {
		if d, err := time.ParseDuration(*c.SpeedWindow); err == nil {
			return d
		}
	}
	d, _ := time.ParseDuration(defaultSpeedWindow)
	return d
}

func (c *TuningConfig) GetTakeSnapshots() bool {
	if c.TakeSnapshots != nil {
		return *c.TakeSnapshots
	}
	return false
}
