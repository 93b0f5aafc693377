// Package dataset resolves evaluation datasets and parses their ground truth.
//
// The only supported dataset name is "custom_data", laid out like the
// ICDAR-2015 incidental text test set:
//
//	<dir>/ch4_test_images/<stem>.jpg
//	<dir>/ch4_test_localization_transcription_gt/gt_<stem>.txt
//
// Each ground-truth line is "x1,y1,x2,y2,x3,y3,x4,y4,transcription". The
// transcription may itself contain commas. "###" marks a region that should
// be ignored during scoring.
package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ironsheep/craft-text-demo/internal/geometry"
)

const (
	// CustomData is the dataset name backed by the ICDAR-2015 loader.
	CustomData = "custom_data"

	// UnlabeledText is the transcription of boxes without a usable label.
	// Ground-truth boxes carrying it are ignored; detector output uses it
	// for every box.
	UnlabeledText = "###"

	imagesDir = "ch4_test_images"
	gtDir     = "ch4_test_localization_transcription_gt"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BoxRecord is one text box with its transcription.
type BoxRecord struct {
	Points geometry.Quad `json:"points"`
	Text   string        `json:"text"`
	Ignore bool          `json:"ignore"`
}

// GroundTruth pairs every image path with its annotated boxes.
type GroundTruth struct {
	Images []string
	Boxes  [][]BoxRecord
}

// Len returns the number of images.
func (g *GroundTruth) Len() int {
	return len(g.Images)
}

// UnknownDatasetError is returned for dataset names without a loader.
type UnknownDatasetError struct {
	Name string
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("unknown test dataset %q", e.Name)
}

// Resolve loads the ground truth for a named dataset from dataDir.
func Resolve(name, dataDir string) (*GroundTruth, error) {
	switch name {
	case CustomData:
		return LoadICDAR2015(dataDir)
	default:
		return nil, &UnknownDatasetError{Name: name}
	}
}

// LoadICDAR2015 reads every ground-truth file under dir in name order.
func LoadICDAR2015(dir string) (*GroundTruth, error) {
	gtPaths, err := filepath.Glob(filepath.Join(dir, gtDir, "*.txt"))
	if err != nil {
		return nil, err
	}
	if len(gtPaths) == 0 {
		return nil, fmt.Errorf("no ground truth files in %s", filepath.Join(dir, gtDir))
	}
	sort.Strings(gtPaths)

	gt := &GroundTruth{}
	for _, p := range gtPaths {
		stem := strings.TrimPrefix(strings.TrimSuffix(filepath.Base(p), ".txt"), "gt_")
		img := filepath.Join(dir, imagesDir, stem+".jpg")
		if _, err := os.Stat(img); err != nil {
			return nil, fmt.Errorf("image for %s: %w", filepath.Base(p), err)
		}

		boxes, err := ReadGroundTruthFile(p)
		if err != nil {
			return nil, err
		}
		gt.Images = append(gt.Images, img)
		gt.Boxes = append(gt.Boxes, boxes)
	}
	return gt, nil
}

// ReadGroundTruthFile parses one gt_<stem>.txt file.
func ReadGroundTruthFile(path string) ([]BoxRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var boxes []BoxRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(string(bytes.TrimPrefix(scanner.Bytes(), utf8BOM)))
		if line == "" {
			continue
		}
		box, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		boxes = append(boxes, box)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return boxes, nil
}

// ParseLine parses "x1,y1,...,x4,y4,transcription".
func ParseLine(line string) (BoxRecord, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 8 {
		return BoxRecord{}, errors.New("expected 8 coordinates")
	}

	var coords [8]int
	for i := 0; i < 8; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return BoxRecord{}, fmt.Errorf("coordinate %d: %w", i+1, err)
		}
		coords[i] = v
	}

	text := strings.Join(fields[8:], ",")
	return BoxRecord{
		Points: geometry.QuadFromInts(coords),
		Text:   text,
		Ignore: text == UnlabeledText,
	}, nil
}
