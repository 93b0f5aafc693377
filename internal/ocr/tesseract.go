package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"slices"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/sync/semaphore"
	"rescribe.xyz/preproc"

	"github.com/ironsheep/craft-text-demo/internal/geometry"
)

// sauvolaK is the k parameter of the Sauvola threshold.
const sauvolaK = 0.5

// Record is one recognized word.
type Record struct {
	// Text is the recognized word.
	Text string `json:"text"`

	// Confidence is the engine's confidence, 0.0 to 1.0.
	Confidence float64 `json:"confidence"`

	// Box is the word's bounding rectangle as a clockwise quad.
	Box geometry.Quad `json:"box"`
}

// Recognizer reads words from an image in the given form languages.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, langs []string) ([]Record, error)
}

// PoolConfig configures a TesseractPool.
type PoolConfig struct {
	// Size is the number of engines allowed to run at once.
	Size int

	// Binarize enables Sauvola thresholding before recognition.
	Binarize bool

	// TessdataPrefix overrides the language data directory.
	TessdataPrefix string
}

// TesseractPool runs Tesseract with bounded concurrency.
type TesseractPool struct {
	cfg      PoolConfig
	workLock *semaphore.Weighted
}

var _ Recognizer = (*TesseractPool)(nil)

// NewTesseractPool returns a pool; a Size below 1 is treated as 1.
func NewTesseractPool(cfg PoolConfig) *TesseractPool {
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	return &TesseractPool{
		cfg:      cfg,
		workLock: semaphore.NewWeighted(int64(cfg.Size)),
	}
}

// Recognize implements Recognizer. Word boxes are in img's coordinates
// relative to its bounds origin.
//
// Parameters:
//   - ctx: Bounds the wait for a free engine slot
//   - img: The image to read; binarized first when the pool is configured to
//   - langs: Form language codes, mapped to Tesseract language names
//
// Returns:
//   - []Record: One record per non-blank word, in reading order
//   - error: *UnsupportedLanguageError for an unknown code, the context error
//     (wrapped) while waiting, or an engine failure
//
// # Concurrency
//
// At most PoolConfig.Size recognitions run at once. Each call gets its own
// Tesseract client, so callers never share engine state.
func (p *TesseractPool) Recognize(ctx context.Context, img image.Image, langs []string) ([]Record, error) {
	codes, err := TesseractLanguages(langs)
	if err != nil {
		return nil, err
	}

	if p.cfg.Binarize {
		img = Binarize(img)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	if err := p.workLock.Acquire(ctx, 1); err != nil {
		return nil, errors.Join(errors.New("failed to acquire OCR engine"), err)
	}
	defer p.workLock.Release(1)

	return p.recognize(buf.Bytes(), codes)
}

func (p *TesseractPool) recognize(data []byte, codes []string) ([]Record, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if p.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(p.cfg.TessdataPrefix); err != nil {
			return nil, errors.Join(errors.New("failed to set tessdata prefix"), err)
		}
	}
	if err := client.SetLanguage(codes...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, errors.Join(errors.New("failed to prepare image for OCR"), err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}
	return wordRecords(boxes), nil
}

// wordRecords converts word boxes, skipping blank words.
func wordRecords(boxes []gosseract.BoundingBox) []Record {
	records := make([]Record, 0, len(boxes))
	for _, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" {
			continue
		}
		records = append(records, Record{
			Text:       word,
			Confidence: box.Confidence / 100.0,
			Box:        geometry.QuadFromRect(box.Box),
		})
	}
	return records
}

// Binarize converts img to black and white with Sauvola's algorithm. The
// window is a sixtieth of the width, rounded up to an odd size of at
// least 3.
func Binarize(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)

	window := b.Dx() / 60
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	return preproc.IntegralSauvola(gray, sauvolaK, window)
}

// Info describes the OCR engine for the health endpoint.
type Info struct {
	Available bool     `json:"available"`
	Version   string   `json:"version,omitempty"`
	Installed []string `json:"installed,omitempty"`
	Missing   []string `json:"missing,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// GetInfo reports the Tesseract version and which form languages lack
// language data. The engine counts as available when every form language
// is installed.
func GetInfo() Info {
	installed, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return Info{Error: err.Error()}
	}

	var missing []string
	for _, l := range Languages {
		if code := tesseractCodes[l]; !slices.Contains(installed, code) {
			missing = append(missing, code)
		}
	}

	return Info{
		Available: len(missing) == 0,
		Version:   gosseract.Version(),
		Installed: installed,
		Missing:   missing,
	}
}
