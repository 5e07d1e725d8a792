package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.FrameW == nil {
		t.Fatal("FrameW must be set")
	}
	if cfg.CloseBlob == nil {
		t.Fatal("CloseBlob must be set")
	}
	if cfg.UVWindow == nil {
		t.Fatal("UVWindow must be set")
	}

	if *cfg.FrameW <= 0 {
		t.Errorf("FrameW must be positive, got %d", *cfg.FrameW)
	}
	if cfg.GetNeuralThreshold() < 0 || cfg.GetNeuralThreshold() > 1 {
		t.Errorf("GetNeuralThreshold() out of range: %f", cfg.GetNeuralThreshold())
	}
	if cfg.GetUVWindow() <= 0 {
		t.Errorf("GetUVWindow() must be positive: %v", cfg.GetUVWindow())
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must pass Validate(): %v", err)
	}
	if err := cfg.ValidateComplete(); err != nil {
		t.Errorf("defaults must pass ValidateComplete(): %v", err)
	}
}

func TestEmptyTuningConfig(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.FrameW != nil {
		t.Error("Expected FrameW to be nil")
	}
	if cfg.CloseBlob != nil {
		t.Error("Expected CloseBlob to be nil")
	}
	if cfg.TakeSnapshots != nil {
		t.Error("Expected TakeSnapshots to be nil")
	}

	if err := cfg.ValidateComplete(); err == nil {
		t.Error("Expected ValidateComplete to fail on empty config")
	}
}

func TestDefaultsFileComplete(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if err := cfg.ValidateComplete(); err != nil {
		t.Errorf("defaults file is missing a required key: %v", err)
	}

	if *cfg.M1Min >= *cfg.M1Max {
		t.Errorf("m1_min must be less than m1_max, got %d >= %d", *cfg.M1Min, *cfg.M1Max)
	}
	if *cfg.M2Min >= *cfg.M2Max {
		t.Errorf("m2_min must be less than m2_max, got %d >= %d", *cfg.M2Min, *cfg.M2Max)
	}
	if *cfg.Accel <= 0 {
		t.Errorf("accel must be positive, got %v", *cfg.Accel)
	}
	if *cfg.MaxV <= 0 {
		t.Errorf("max_v must be positive, got %v", *cfg.MaxV)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.example.json")
	if err != nil {
		t.Fatalf("failed to load example config: %v", err)
	}
	if cfg.CloseBlob == nil || *cfg.CloseBlob != 25 {
		t.Errorf("expected close_blob 25, got %v", cfg.CloseBlob)
	}
	if cfg.TakeSnapshots == nil || *cfg.TakeSnapshots != true {
		t.Errorf("expected take_snapshots true, got %v", cfg.TakeSnapshots)
	}
	if cfg.GetUVWindow() != 750*time.Millisecond {
		t.Errorf("expected uv_window 750ms, got %v", cfg.GetUVWindow())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "frame_w": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("expected error when loading invalid JSON, got nil")
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "frame_w": 1280
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Fatal("expected error for partial config (missing required keys), got nil")
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("expected error for file size > 1MB, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "valid config from defaults file",
			cfg:     MustLoadDefaultConfig(),
			wantErr: false,
		},
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "invalid neural threshold (too high)",
			cfg: &TuningConfig{
				NeuralThreshold: ptrFloat64(1.5),
			},
			wantErr: true,
		},
		{
			name: "invalid uv window",
			cfg: &TuningConfig{
				UVWindow: ptrString("invalid"),
			},
			wantErr: true,
		},
		{
			name: "negative close blob",
			cfg: &TuningConfig{
				CloseBlob: ptrInt(-1),
			},
			wantErr: true,
		},
		{
			name: "inverted step range",
			cfg: &TuningConfig{
				M1Min: ptrInt(400),
				M1Max: ptrInt(100),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetUVWindow(t *testing.T) {
	cfg := &TuningConfig{UVWindow: ptrString("250ms")}
	if got := cfg.GetUVWindow(); got != 250*time.Millisecond {
		t.Errorf("GetUVWindow() = %v, want 250ms", got)
	}
}

func TestGetSpeedWindow(t *testing.T) {
	cfg := &TuningConfig{SpeedWindow: ptrString("3s")}
	if got := cfg.GetSpeedWindow(); got != 3*time.Second {
		t.Errorf("GetSpeedWindow() = %v, want 3s", got)
	}
}

func TestGetterDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetFrameW() != defaultFrameW {
		t.Errorf("GetFrameW() = %d, want %d", cfg.GetFrameW(), defaultFrameW)
	}
	if cfg.GetCloseBlob() != defaultCloseBlob {
		t.Errorf("GetCloseBlob() = %d, want %d", cfg.GetCloseBlob(), defaultCloseBlob)
	}
	if cfg.GetTakeSnapshots() != false {
		t.Error("GetTakeSnapshots() should default to false")
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}
	if cfg.GetFrameW() <= 0 {
		t.Errorf("frame_w out of range: %d", cfg.GetFrameW())
	}
	if err := cfg.ValidateComplete(); err != nil {
		t.Errorf("defaults must pass ValidateComplete(): %v", err)
	}
}
