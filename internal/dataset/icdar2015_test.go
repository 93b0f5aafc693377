package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/craft-text-demo/internal/geometry"
)

// createICDARDir lays out a minimal ICDAR-2015 style directory.
func createICDARDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{imagesDir, gtDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	for stem, content := range files {
		if err := os.WriteFile(filepath.Join(dir, imagesDir, stem+".jpg"), []byte("jpg"), 0644); err != nil {
			t.Fatalf("write image: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, gtDir, "gt_"+stem+".txt"), []byte(content), 0644); err != nil {
			t.Fatalf("write gt: %v", err)
		}
	}
	return dir
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantText   string
		wantIgnore bool
		wantErr    bool
	}{
		{"plain word", "1,2,11,2,11,12,1,12,HELLO", "HELLO", false, false},
		{"ignored", "1,2,11,2,11,12,1,12,###", "###", true, false},
		{"comma in text", "1,2,11,2,11,12,1,12,1,000", "1,000", false, false},
		{"empty text", "1,2,11,2,11,12,1,12,", "", false, false},
		{"too few fields", "1,2,3", "", false, true},
		{"bad coordinate", "1,2,x,2,11,12,1,12,A", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLine(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Text != tt.wantText || got.Ignore != tt.wantIgnore {
				t.Errorf("got text=%q ignore=%v, want %q %v", got.Text, got.Ignore, tt.wantText, tt.wantIgnore)
			}
			want := geometry.QuadFromInts([8]int{1, 2, 11, 2, 11, 12, 1, 12})
			if got.Points != want {
				t.Errorf("points: got %v, want %v", got.Points, want)
			}
		})
	}
}

func TestLoadICDAR2015(t *testing.T) {
	dir := createICDARDir(t, map[string]string{
		"img_2": "0,0,10,0,10,10,0,10,B\n",
		"img_1": "\xEF\xBB\xBF377,117,463,117,465,130,378,130,Genaxis\r\n" +
			"493,115,519,115,519,131,493,131,###\r\n\r\n",
	})

	gt, err := LoadICDAR2015(dir)
	if err != nil {
		t.Fatalf("LoadICDAR2015 failed: %v", err)
	}
	if gt.Len() != 2 {
		t.Fatalf("got %d images, want 2", gt.Len())
	}
	if filepath.Base(gt.Images[0]) != "img_1.jpg" {
		t.Errorf("images not sorted: %v", gt.Images)
	}
	first := gt.Boxes[0]
	if len(first) != 2 {
		t.Fatalf("img_1: got %d boxes, want 2", len(first))
	}
	if first[0].Text != "Genaxis" || first[0].Ignore {
		t.Errorf("BOM not stripped or wrong text: %+v", first[0])
	}
	if first[0].Points[0] != (geometry.Point{X: 377, Y: 117}) {
		t.Errorf("first point: got %v", first[0].Points[0])
	}
	if !first[1].Ignore {
		t.Error("### box not ignored")
	}
}

func TestResolve(t *testing.T) {
	dir := createICDARDir(t, map[string]string{"img_1": "0,0,10,0,10,10,0,10,A\n"})

	gt, err := Resolve(CustomData, dir)
	if err != nil {
		t.Fatalf("Resolve(custom_data) failed: %v", err)
	}
	if gt.Len() == 0 {
		t.Error("custom_data resolved to an empty list")
	}

	for _, name := range []string{"icdar2013", "synthtext", ""} {
		gt, err := Resolve(name, dir)
		if gt != nil {
			t.Errorf("Resolve(%q) returned data", name)
		}
		var unknown *UnknownDatasetError
		if !errors.As(err, &unknown) || unknown.Name != name {
			t.Errorf("Resolve(%q) error = %v, want UnknownDatasetError", name, err)
		}
	}
}

func TestLoadICDAR2015_Errors(t *testing.T) {
	if _, err := LoadICDAR2015(t.TempDir()); err == nil {
		t.Error("empty directory accepted")
	}

	dir := createICDARDir(t, map[string]string{"img_1": "0,0,10,0,10,10,0,10,A\n"})
	os.Remove(filepath.Join(dir, imagesDir, "img_1.jpg"))
	if _, err := LoadICDAR2015(dir); err == nil {
		t.Error("missing image accepted")
	}

	dir = createICDARDir(t, map[string]string{"img_1": "0,0,10\n"})
	if _, err := LoadICDAR2015(dir); err == nil {
		t.Error("malformed line accepted")
	}
}
