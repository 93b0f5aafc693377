package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/craft-text-demo/internal/config"
	"github.com/ironsheep/craft-text-demo/internal/eval"
)

func TestEvalFlags_YAMLAlias(t *testing.T) {
	fs := evalCMD.Flags()
	if err := fs.Parse([]string{"--yaml_file_name", "other_exp", "--img_path", "card.jpg"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got, _ := fs.GetString("yaml"); got != "other_exp" {
		t.Errorf("yaml: got %q", got)
	}
	if got, _ := fs.GetString("img_path"); got != "card.jpg" {
		t.Errorf("img_path: got %q", got)
	}
}

func TestEvalFlags_Defaults(t *testing.T) {
	tests := []struct {
		flag string
		want string
	}{
		{"yaml", "custom_data_train"},
		{"img_path", "custom_data_train.png"},
	}
	for _, tt := range tests {
		f := evalCMD.Flags().Lookup(tt.flag)
		if f == nil {
			t.Fatalf("flag --%s missing", tt.flag)
		}
		if f.DefValue != tt.want {
			t.Errorf("--%s default: got %q, want %q", tt.flag, f.DefValue, tt.want)
		}
	}
}

func TestMigrateArgs(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr bool
	}{
		{[]string{"up"}, false},
		{[]string{"down"}, false},
		{[]string{"sideways"}, true},
		{nil, true},
		{[]string{"up", "down"}, true},
	}
	for _, tt := range tests {
		err := migrateCMD.Args(migrateCMD, tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("args %v: err=%v, wantErr %v", tt.args, err, tt.wantErr)
		}
	}
}

func TestSubcommands(t *testing.T) {
	for _, name := range []string{"eval", "serve", "worker", "migrate"} {
		cmd, _, err := mainCMD.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}

func TestResultDirFor(t *testing.T) {
	exp := &config.Experiment{Name: "custom_data_train"}
	tests := []struct {
		name string
		flag string
		want string
	}{
		{"explicit flag wins", "out/run1", "out/run1"},
		{"default uses experiment name", "", filepath.Join("exp", "custom_data_train", "custom_data_train-ic15-iou")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resultDirFor(tt.flag, exp); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResultDirFor_MatchesRun(t *testing.T) {
	// --yaml may carry a path and extension; the directory follows the
	// loaded experiment's name either way.
	dir := t.TempDir()
	body := "train:\n  backbone: vgg\ntest:\n  trained_model: m.onnx\n  custom_data:\n    vis_opt: false\n"
	if err := os.WriteFile(filepath.Join(dir, "receipts.yaml"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	exp, err := config.LoadExperiment(dir, filepath.Join(dir, "receipts.yaml"))
	if err != nil {
		t.Fatalf("LoadExperiment: %v", err)
	}
	want := eval.DefaultResultDir("receipts")
	if got := resultDirFor("", exp); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
