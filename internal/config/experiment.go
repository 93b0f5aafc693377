package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Experiment is the parsed experiment YAML.
type Experiment struct {
	WandbOpt bool        `yaml:"wandb_opt"`
	Train    TrainConfig `yaml:"train"`
	Test     TestConfig  `yaml:"test"`
	ONNX     ONNXConfig  `yaml:"onnx"`

	// Name is the config name the experiment was loaded from.
	Name string `yaml:"-"`
}

// TrainConfig holds the training section. Only the backbone is read.
type TrainConfig struct {
	Backbone string `yaml:"backbone"`
}

// TestConfig holds the trained model path and one TestParams block per
// dataset name.
type TestConfig struct {
	TrainedModel string
	Datasets     map[string]TestParams
}

// TestParams are the detection parameters for one dataset.
type TestParams struct {
	TextThreshold float64 `yaml:"text_threshold"`
	LinkThreshold float64 `yaml:"link_threshold"`
	LowText       float64 `yaml:"low_text"`
	Cuda          bool    `yaml:"cuda"`
	Poly          bool    `yaml:"poly"`
	CanvasSize    int     `yaml:"canvas_size"`
	MagRatio      float64 `yaml:"mag_ratio"`
	VisOpt        bool    `yaml:"vis_opt"`
	TestDataDir   string  `yaml:"test_data_dir"`
}

// ONNXConfig points at the onnxruntime shared library and names the graph
// input and output of the exported detector.
type ONNXConfig struct {
	LibraryPath string `yaml:"library_path"`
	InputName   string `yaml:"input_name"`
	OutputName  string `yaml:"output_name"`
	Threads     int    `yaml:"threads"`
}

// DefaultTestParams returns the thresholds used when a dataset block omits
// a value.
func DefaultTestParams() TestParams {
	return TestParams{
		TextThreshold: 0.7,
		LinkThreshold: 0.4,
		LowText:       0.4,
		CanvasSize:    1280,
		MagRatio:      1.5,
	}
}

// UnmarshalYAML decodes trained_model and treats every other mapping key as
// a dataset block, starting from DefaultTestParams.
func (t *TestConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := value.Decode(&raw); err != nil {
		return err
	}

	t.Datasets = make(map[string]TestParams)
	for key, node := range raw {
		if key == "trained_model" {
			if err := node.Decode(&t.TrainedModel); err != nil {
				return fmt.Errorf("test.trained_model: %w", err)
			}
			continue
		}
		if node.Kind != yaml.MappingNode {
			continue
		}
		params := DefaultTestParams()
		if err := node.Decode(&params); err != nil {
			return fmt.Errorf("test.%s: %w", key, err)
		}
		t.Datasets[key] = params
	}
	return nil
}

// Params returns the parameters for a dataset.
func (e *Experiment) Params(dataset string) (TestParams, bool) {
	p, ok := e.Test.Datasets[dataset]
	return p, ok
}

// Validate checks the fields every evaluation needs.
func (e *Experiment) Validate() error {
	if e.Test.TrainedModel == "" {
		return fmt.Errorf("test.trained_model is required")
	}
	if e.Train.Backbone == "" {
		return fmt.Errorf("train.backbone is required")
	}
	for name, p := range e.Test.Datasets {
		if p.CanvasSize <= 0 {
			return fmt.Errorf("test.%s.canvas_size must be positive, got %d", name, p.CanvasSize)
		}
		if p.MagRatio <= 0 {
			return fmt.Errorf("test.%s.mag_ratio must be positive, got %v", name, p.MagRatio)
		}
	}
	return nil
}

// ConfigPath resolves a config name to a file path. A name that already
// carries a .yaml or .yml extension is joined as-is.
func ConfigPath(dir, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".yaml" && ext != ".yml" {
		name += ".yaml"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// LoadExperiment reads config/<name>.yaml from dir and validates it.
//
// Parameters:
//   - dir: Directory holding the experiment files
//   - name: Config name, with or without a .yaml extension
//
// Returns:
//   - *Experiment: The parsed experiment, named after the file
//   - error: Read, parse or validation failure
func LoadExperiment(dir, name string) (*Experiment, error) {
	path := ConfigPath(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	exp, err := ParseExperiment(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	exp.Name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if err := exp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experiment %s: %w", path, err)
	}
	return exp, nil
}

// ParseExperiment decodes experiment YAML and applies ONNX defaults.
func ParseExperiment(data []byte) (*Experiment, error) {
	exp := &Experiment{}
	if err := yaml.Unmarshal(data, exp); err != nil {
		return nil, err
	}
	if exp.Test.Datasets == nil {
		exp.Test.Datasets = make(map[string]TestParams)
	}
	if exp.ONNX.InputName == "" {
		exp.ONNX.InputName = "input"
	}
	if exp.ONNX.OutputName == "" {
		exp.ONNX.OutputName = "output"
	}
	return exp, nil
}
