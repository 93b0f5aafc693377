package imaging

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/ironsheep/craft-text-demo/internal/geometry"
	"github.com/ironsheep/craft-text-demo/internal/logging"
)

func TestCompose_DoublesDimensions(t *testing.T) {
	tests := []struct {
		w, h       int
		mapW, mapH int
	}{
		{100, 80, 50, 40},
		{33, 17, 16, 8},
		{1, 1, 1, 1},
	}
	for _, tt := range tests {
		img := createPatternImage(tt.w, tt.h)
		region := Heatmap(make([]float32, tt.mapW*tt.mapH), tt.mapW, tt.mapH)
		affinity := Heatmap(make([]float32, tt.mapW*tt.mapH), tt.mapW, tt.mapH)

		out := Compose(img, region, affinity, nil, nil)

		if out.Bounds().Dx() != 2*tt.w || out.Bounds().Dy() != 2*tt.h {
			t.Errorf("composite for %dx%d: got %dx%d, want %dx%d",
				tt.w, tt.h, out.Bounds().Dx(), out.Bounds().Dy(), 2*tt.w, 2*tt.h)
		}
	}
}

func TestCompose_Layout(t *testing.T) {
	img := createInMemoryImage(40, 40, color.RGBA{200, 200, 200, 255})
	region := Heatmap(make([]float32, 20*20), 20, 20)
	box := geometry.Quad{{5, 5}, {35, 5}, {35, 35}, {5, 35}}

	out := Compose(img, region, nil, []geometry.Quad{box}, nil)

	// top-left is the untouched original
	if got := rgbaAt(out, 5, 5); got != (color.RGBA{200, 200, 200, 255}) {
		t.Errorf("original tile at (5,5): got %v", got)
	}
	// top-right carries the predicted box
	if got := rgbaAt(out, 40+20, 5); got != PredictedColor {
		t.Errorf("boxed tile at (60,5): got %v, want green", got)
	}
	// bottom-left is 0.4*200 + 0.6*jet(0) + 5
	jet := JetColor(0)
	want := color.RGBA{
		R: uint8(0.4*200 + 0.6*float64(jet.R) + 5),
		G: uint8(0.4*200 + 0.6*float64(jet.G) + 5),
		B: uint8(0.4*200 + 0.6*float64(jet.B) + 5),
		A: 255,
	}
	got := rgbaAt(out, 10, 50)
	if absInt(int(got.R)-int(want.R)) > 1 || absInt(int(got.G)-int(want.G)) > 1 || absInt(int(got.B)-int(want.B)) > 1 {
		t.Errorf("region overlay at (10,50): got %v, want about %v", got, want)
	}
}

func TestOverlay_ClampsOffset(t *testing.T) {
	img := createInMemoryImage(4, 4, color.White)
	heat := createInMemoryImage(2, 2, color.White)

	out := Overlay(img, heat)

	if got := rgbaAt(out, 1, 1); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("white over white: got %v, want clamped white", got)
	}
	if out.Bounds().Dx() != 4 || out.Bounds().Dy() != 4 {
		t.Errorf("overlay size: got %v, want 4x4", out.Bounds())
	}
}

func TestHeatmap(t *testing.T) {
	scores := []float32{0, 0.5, 1, 2, -1, 0.25}
	img := Heatmap(scores, 3, 2)

	if img.Bounds() != image.Rect(0, 0, 3, 2) {
		t.Fatalf("bounds: got %v", img.Bounds())
	}
	if got := rgbaAt(img, 0, 0); got != JetColor(0) {
		t.Errorf("score 0: got %v, want %v", got, JetColor(0))
	}
	if got := rgbaAt(img, 0, 1); got != JetColor(2) {
		t.Errorf("score 2 should clamp to 1: got %v, want %v", got, JetColor(1))
	}
	if JetColor(-1) != JetColor(0) {
		t.Error("negative score should clamp to 0")
	}
}

func TestJetColor_Endpoints(t *testing.T) {
	low := JetColor(0)
	if low.B < 120 || low.R != 0 || low.G != 0 {
		t.Errorf("jet(0): got %v, want dark blue", low)
	}
	high := JetColor(1)
	if high.R < 120 || high.G != 0 || high.B != 0 {
		t.Errorf("jet(1): got %v, want dark red", high)
	}
	mid := JetColor(0.5)
	if mid.G < 200 {
		t.Errorf("jet(0.5): got %v, want green-dominant", mid)
	}
}

func TestResultNames(t *testing.T) {
	boxed, composite := ResultNames("/data/imgs/img_12.png")
	if boxed != "res_img_12.jpg" {
		t.Errorf("boxed: got %q", boxed)
	}
	if composite != "res_img_12_box.jpg" {
		t.Errorf("composite: got %q", composite)
	}
}

func TestSaveResult(t *testing.T) {
	imgPath := writeCard(t, "img_7.png", 64, 32)

	img, err := Open(imgPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "exp", "nested")
	region := Heatmap(make([]float32, 32*16), 32, 16)
	ann := Annotations{
		Predicted:   []geometry.Quad{{{2, 2}, {20, 2}, {20, 10}, {2, 10}}},
		GroundTruth: []geometry.Quad{{{30, 2}, {60, 2}, {60, 10}, {30, 10}}},
		Ignored:     []geometry.Quad{{{30, 20}, {60, 20}, {60, 30}, {30, 30}}},
	}

	paths, err := SaveResult(dir, imgPath, img, region, region, ann, logging.Discard())
	if err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	boxedName, compositeName := ResultNames(imgPath)
	if filepath.Base(paths.Boxed) != boxedName || filepath.Base(paths.Composite) != compositeName {
		t.Errorf("paths: got %+v", paths)
	}

	boxed, err := Open(paths.Boxed)
	if err != nil {
		t.Fatalf("boxed result unreadable: %v", err)
	}
	if boxed.Bounds().Dx() != 64 || boxed.Bounds().Dy() != 32 {
		t.Errorf("boxed size: got %v, want 64x32", boxed.Bounds())
	}

	composite, err := Open(paths.Composite)
	if err != nil {
		t.Fatalf("composite result unreadable: %v", err)
	}
	if composite.Bounds().Dx() != 128 || composite.Bounds().Dy() != 64 {
		t.Errorf("composite size: got %v, want 128x64", composite.Bounds())
	}
}
