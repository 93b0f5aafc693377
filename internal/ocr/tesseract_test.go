package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"reflect"
	"strings"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/craft-text-demo/internal/geometry"
)

// drawText draws text on an image using basicfont
func drawText(img *image.RGBA, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// createImageWithText renders text in black on white and scales it up by
// whole pixels so Tesseract has enough resolution to work with.
func createImageWithText(text string, scale int) *image.RGBA {
	width := len(text)*7 + 40
	height := 40

	small := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)
	drawText(small, 20, 25, text, color.Black)

	img := image.NewRGBA(image.Rect(0, 0, width*scale, height*scale))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := small.At(x, y)
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.Set(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}
	return img
}

// requireLanguage skips the test when Tesseract has no data for code.
func requireLanguage(t *testing.T, code string) {
	t.Helper()
	installed, err := gosseract.GetAvailableLanguages()
	if err != nil {
		t.Skipf("Tesseract not available: %v", err)
	}
	for _, l := range installed {
		if l == code {
			return
		}
	}
	t.Skipf("Tesseract language data %q not installed", code)
}

func TestTesseractLanguages(t *testing.T) {
	tests := []struct {
		name  string
		langs []string
		want  []string
	}{
		{"default", nil, []string{"vie"}},
		{"english", []string{"en"}, []string{"eng"}},
		{"all", []string{"en", "uk", "vi"}, []string{"eng", "ukr", "vie"}},
		{"order kept", []string{"vi", "en"}, []string{"vie", "eng"}},
		{"duplicates", []string{"en", "en"}, []string{"eng"}},
		{"case and space", []string{" EN "}, []string{"eng"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TesseractLanguages(tt.langs)
			if err != nil {
				t.Fatalf("TesseractLanguages(%v): %v", tt.langs, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TesseractLanguages(%v) = %v, want %v", tt.langs, got, tt.want)
			}
		})
	}
}

func TestTesseractLanguages_Unsupported(t *testing.T) {
	for _, lang := range []string{"fr", "eng", ""} {
		t.Run(lang, func(t *testing.T) {
			_, err := TesseractLanguages([]string{"en", lang})
			var langErr *UnsupportedLanguageError
			if !errors.As(err, &langErr) {
				t.Fatalf("got %v, want *UnsupportedLanguageError", err)
			}
			if langErr.Lang != lang {
				t.Errorf("Lang = %q, want %q", langErr.Lang, lang)
			}
			if !strings.Contains(err.Error(), "en, uk, vi") {
				t.Errorf("error should list supported codes: %v", err)
			}
		})
	}
}

func TestRecognize_UnsupportedLanguageSkipsEngine(t *testing.T) {
	pool := NewTesseractPool(PoolConfig{Size: 1})
	// Hold the only engine; an unsupported language must fail before waiting.
	if err := pool.workLock.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer pool.workLock.Release(1)

	_, err := pool.Recognize(context.Background(), createImageWithText("HI", 1), []string{"de"})
	var langErr *UnsupportedLanguageError
	if !errors.As(err, &langErr) {
		t.Errorf("got %v, want *UnsupportedLanguageError", err)
	}
}

func TestRecognize_ContextCancelledWhileWaiting(t *testing.T) {
	pool := NewTesseractPool(PoolConfig{Size: 1})
	if err := pool.workLock.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer pool.workLock.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.Recognize(ctx, createImageWithText("HI", 1), []string{"en"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestNewTesseractPool_MinimumSize(t *testing.T) {
	pool := NewTesseractPool(PoolConfig{})
	if pool.cfg.Size != 1 {
		t.Errorf("Size = %d, want 1", pool.cfg.Size)
	}
	if !pool.workLock.TryAcquire(1) {
		t.Fatal("pool should have one engine")
	}
	if pool.workLock.TryAcquire(1) {
		t.Error("pool should have only one engine")
	}
}

func TestWordRecords(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(10, 5, 40, 20), Word: "HELLO", Confidence: 91},
		{Box: image.Rect(0, 0, 1, 1), Word: "  ", Confidence: 10},
		{Box: image.Rect(50, 5, 90, 20), Word: "WORLD ", Confidence: 50.5},
	}

	got := wordRecords(boxes)
	want := []Record{
		{Text: "HELLO", Confidence: 0.91, Box: geometry.Quad{{10, 5}, {40, 5}, {40, 20}, {10, 20}}},
		{Text: "WORLD", Confidence: 0.505, Box: geometry.Quad{{50, 5}, {90, 5}, {90, 20}, {50, 20}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("wordRecords:\n got %+v\nwant %+v", got, want)
	}

	if got := wordRecords(nil); got == nil || len(got) != 0 {
		t.Errorf("wordRecords(nil) = %#v, want empty slice", got)
	}
}

func TestBinarize(t *testing.T) {
	img := createImageWithText("ID 1234", 2)
	// Shift the origin to make sure the output is rebased.
	shifted := img.SubImage(image.Rect(10, 10, img.Bounds().Dx(), img.Bounds().Dy()))

	bin := Binarize(shifted)
	b := shifted.Bounds()
	if bin.Bounds() != image.Rect(0, 0, b.Dx(), b.Dy()) {
		t.Fatalf("bounds: got %v, want origin rect of %v", bin.Bounds(), b)
	}

	black := 0
	for _, v := range bin.Pix {
		switch v {
		case 0:
			black++
		case 255:
		default:
			t.Fatalf("non-binary pixel value %d", v)
		}
	}
	if black == 0 {
		t.Error("text pixels should stay black")
	}
	if black > len(bin.Pix)/2 {
		t.Errorf("too many black pixels: %d of %d", black, len(bin.Pix))
	}
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Error != "" {
		t.Skipf("Tesseract not available: %s", info.Error)
	}
	if info.Version == "" {
		t.Error("Version should be reported")
	}
	if info.Available != (len(info.Missing) == 0) {
		t.Errorf("Available=%v inconsistent with Missing=%v", info.Available, info.Missing)
	}
}

// --- Tests with actual rendered text ---

func TestRecognize_RealText(t *testing.T) {
	requireLanguage(t, "eng")

	img := createImageWithText("HELLO WORLD", 4)
	pool := NewTesseractPool(PoolConfig{Size: 2})
	records, err := pool.Recognize(context.Background(), img, []string{"en"})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	var words []string
	for _, r := range records {
		words = append(words, r.Text)
		if r.Confidence < 0 || r.Confidence > 1 {
			t.Errorf("%q: confidence %v outside [0,1]", r.Text, r.Confidence)
		}
		if !r.Box.Bounds().In(img.Bounds()) {
			t.Errorf("%q: box %v outside image %v", r.Text, r.Box.Bounds(), img.Bounds())
		}
	}
	t.Logf("Recognized: %q", words)
	if len(records) == 0 {
		t.Log("Warning: no words recognized - may need larger scale or different font")
	}
}

func TestRecognize_Binarized(t *testing.T) {
	requireLanguage(t, "eng")

	pool := NewTesseractPool(PoolConfig{Size: 1, Binarize: true})
	records, err := pool.Recognize(context.Background(), createImageWithText("12345", 4), []string{"en"})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	t.Logf("Recognized %d words", len(records))
}
