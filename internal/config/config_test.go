package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
wandb_opt: true
train:
  backbone: vgg
test:
  trained_model: weights/craft.onnx
  custom_data:
    text_threshold: 0.75
    link_threshold: 0.2
    low_text: 0.5
    cuda: true
    poly: false
    canvas_size: 2240
    mag_ratio: 1.75
    vis_opt: true
    test_data_dir: data/custom
  sparse:
    vis_opt: true
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return dir
}

func TestLoadExperiment(t *testing.T) {
	dir := writeConfig(t, "custom_data_train", sampleYAML)

	exp, err := LoadExperiment(dir, "custom_data_train")
	if err != nil {
		t.Fatalf("LoadExperiment failed: %v", err)
	}

	if exp.Name != "custom_data_train" {
		t.Errorf("name: got %q, want custom_data_train", exp.Name)
	}
	if !exp.WandbOpt {
		t.Error("wandb_opt: got false, want true")
	}
	if exp.Train.Backbone != "vgg" {
		t.Errorf("backbone: got %q, want vgg", exp.Train.Backbone)
	}
	if exp.Test.TrainedModel != "weights/craft.onnx" {
		t.Errorf("trained_model: got %q", exp.Test.TrainedModel)
	}

	p, ok := exp.Params("custom_data")
	if !ok {
		t.Fatal("custom_data params missing")
	}
	if p.TextThreshold != 0.75 || p.LinkThreshold != 0.2 || p.LowText != 0.5 {
		t.Errorf("thresholds: got %v/%v/%v", p.TextThreshold, p.LinkThreshold, p.LowText)
	}
	if !p.Cuda || p.Poly || !p.VisOpt {
		t.Errorf("flags: cuda=%v poly=%v vis=%v", p.Cuda, p.Poly, p.VisOpt)
	}
	if p.CanvasSize != 2240 || p.MagRatio != 1.75 {
		t.Errorf("canvas: got %d x %v", p.CanvasSize, p.MagRatio)
	}
	if p.TestDataDir != "data/custom" {
		t.Errorf("test_data_dir: got %q", p.TestDataDir)
	}

	if err := exp.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadExperiment_DefaultsFillMissingFields(t *testing.T) {
	dir := writeConfig(t, "c", sampleYAML)
	exp, err := LoadExperiment(dir, "c")
	if err != nil {
		t.Fatalf("LoadExperiment failed: %v", err)
	}

	p, ok := exp.Params("sparse")
	if !ok {
		t.Fatal("sparse params missing")
	}
	def := DefaultTestParams()
	if p.TextThreshold != def.TextThreshold || p.CanvasSize != def.CanvasSize || p.MagRatio != def.MagRatio {
		t.Errorf("defaults not applied: %+v", p)
	}
	if !p.VisOpt {
		t.Error("explicit vis_opt lost")
	}
	if exp.ONNX.InputName != "input" || exp.ONNX.OutputName != "output" {
		t.Errorf("onnx defaults: got %q/%q", exp.ONNX.InputName, exp.ONNX.OutputName)
	}
}

func TestLoadExperiment_NonExistent(t *testing.T) {
	if _, err := LoadExperiment(t.TempDir(), "missing"); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestLoadExperiment_InvalidYAML(t *testing.T) {
	dir := writeConfig(t, "broken", "test: [unterminated")
	if _, err := LoadExperiment(dir, "broken"); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadExperiment_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no trained model", "train:\n  backbone: vgg\ntest:\n  custom_data:\n    vis_opt: true\n"},
		{"no backbone", "test:\n  trained_model: m.onnx\n"},
		{"zero canvas", "train:\n  backbone: vgg\ntest:\n  trained_model: m.onnx\n  custom_data:\n    canvas_size: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, "exp", tt.body)
			if _, err := LoadExperiment(dir, "exp"); err == nil {
				t.Error("LoadExperiment accepted an invalid experiment")
			}
		})
	}
}

func TestExperiment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		exp     Experiment
		wantErr bool
	}{
		{"missing model", Experiment{Train: TrainConfig{Backbone: "vgg"}}, true},
		{"missing backbone", Experiment{Test: TestConfig{TrainedModel: "m.onnx"}}, true},
		{
			"bad canvas",
			Experiment{
				Train: TrainConfig{Backbone: "vgg"},
				Test:  TestConfig{TrainedModel: "m.onnx", Datasets: map[string]TestParams{"d": {MagRatio: 1}}},
			},
			true,
		},
		{
			"ok",
			Experiment{
				Train: TrainConfig{Backbone: "resnet"},
				Test:  TestConfig{TrainedModel: "m.onnx", Datasets: map[string]TestParams{"d": DefaultTestParams()}},
			},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.exp.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigPath(t *testing.T) {
	tests := []struct {
		dir, name, want string
	}{
		{"config", "custom_data_train", filepath.Join("config", "custom_data_train.yaml")},
		{"config", "x.yaml", filepath.Join("config", "x.yaml")},
		{"config", "x.yml", filepath.Join("config", "x.yml")},
		{"config", "/abs/x.yaml", "/abs/x.yaml"},
	}
	for _, tt := range tests {
		if got := ConfigPath(tt.dir, tt.name); got != tt.want {
			t.Errorf("ConfigPath(%q, %q) = %q, want %q", tt.dir, tt.name, got, tt.want)
		}
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"CRAFT_DEMO_CONFIG_DIR", "CRAFT_DEMO_OCR_POOL", "CRAFT_DEMO_BUFFER_TIMEOUT", "CRAFT_DEMO_FLAG_DIR", "CRAFT_DEMO_DATABASE_URL"} {
		t.Setenv(key, "")
	}

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.ConfigDir != "config" {
		t.Errorf("ConfigDir: got %q, want config", s.ConfigDir)
	}
	if s.FlagDir != "Results" {
		t.Errorf("FlagDir: got %q, want Results", s.FlagDir)
	}
	if s.OCRPoolSize != 1 {
		t.Errorf("OCRPoolSize: got %d, want 1", s.OCRPoolSize)
	}
	if s.BufferTimeout != 5*time.Minute {
		t.Errorf("BufferTimeout: got %v, want 5m", s.BufferTimeout)
	}
	if s.DatabaseURL != "" {
		t.Errorf("DatabaseURL: got %q, want empty", s.DatabaseURL)
	}
}

func TestLoadSettings_FromDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CRAFT_DEMO_DATABASE_URL", "")
	os.Unsetenv("CRAFT_DEMO_DATABASE_URL")
	t.Setenv("CRAFT_DEMO_BUFFER_TIMEOUT", "30s")

	env := "CRAFT_DEMO_DATABASE_URL=postgres://demo@localhost/ocr\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.DatabaseURL != "postgres://demo@localhost/ocr" {
		t.Errorf("DatabaseURL: got %q", s.DatabaseURL)
	}
	if s.BufferTimeout != 30*time.Second {
		t.Errorf("BufferTimeout: got %v, want 30s", s.BufferTimeout)
	}
}

func TestSettings_Validate(t *testing.T) {
	s := Settings{ConfigDir: "config", OCRPoolSize: 0, BufferTimeout: time.Second}
	if err := s.Validate(); err == nil {
		t.Error("expected error for zero pool size")
	}
	s.OCRPoolSize = 2
	s.BufferTimeout = 0
	if err := s.Validate(); err == nil {
		t.Error("expected error for zero timeout")
	}
	s.BufferTimeout = time.Second
	if err := s.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
