package server

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/craft-text-demo/internal/ocr"
	"github.com/ironsheep/craft-text-demo/internal/results"
)

// Flag labels offered under each result.
const (
	LabelCorrect = "Correct"
	LabelWrong   = "Wrong"
)

// Labels lists the accepted flag labels in display order.
var Labels = []string{LabelCorrect, LabelWrong}

// ValidLabel reports whether label is one of Labels.
func ValidLabel(label string) bool {
	return slices.Contains(Labels, label)
}

const (
	flagLogName   = "log.csv"
	flagImageDir  = "Input"
	flagOutputDir = "Output"
)

var flagHeader = []string{"image", "result", "records", "languages", "label", "flagged_at"}

// FlagRequest describes one flagged result.
type FlagRequest struct {
	// ImagePath is the uploaded image.
	ImagePath string
	// ResultPath is the annotated result image. Optional.
	ResultPath string
	Languages  []string
	Label      string
	// Records are the recognized words the label applies to.
	Records []ocr.Record
}

// FlagEntry is one row of the flag log. Paths are relative to the log
// directory.
type FlagEntry struct {
	ID        string    `json:"id"`
	Image     string    `json:"image"`
	Result    string    `json:"result,omitempty"`
	Records   string    `json:"records"`
	Languages []string  `json:"languages"`
	Label     string    `json:"label"`
	FlaggedAt time.Time `json:"flagged_at"`
}

// FlagLog appends flagged results to <dir>/log.csv. Each flag keeps a copy
// of the upload under <dir>/Input and the annotated result plus the
// recognized words under <dir>/Output.
type FlagLog struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// NewFlagLog returns a log rooted at dir. Nothing is created until the
// first Append.
func NewFlagLog(dir string) *FlagLog {
	return &FlagLog{dir: dir, now: time.Now}
}

// Path returns the CSV file path.
func (f *FlagLog) Path() string {
	return filepath.Join(f.dir, flagLogName)
}

// Append copies the flagged files into the log directory and records the
// flag.
//
// Parameters:
//   - req: The flagged upload, its result image, words and label
//
// Returns:
//   - *FlagEntry: The appended row
//   - error: Invalid label, or a copy or write failure
func (f *FlagLog) Append(req FlagRequest) (*FlagEntry, error) {
	if !ValidLabel(req.Label) {
		return nil, fmt.Errorf("invalid flag label %q", req.Label)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range []string{flagImageDir, flagOutputDir} {
		if err := os.MkdirAll(filepath.Join(f.dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create flag directory: %w", err)
		}
	}

	entry := &FlagEntry{
		ID:        uuid.NewString(),
		Languages: req.Languages,
		Label:     req.Label,
		FlaggedAt: f.now().UTC(),
	}
	entry.Image = filepath.Join(flagImageDir, entry.ID+filepath.Ext(req.ImagePath))
	if err := results.CopyFile(req.ImagePath, filepath.Join(f.dir, entry.Image)); err != nil {
		return nil, fmt.Errorf("failed to copy flagged image: %w", err)
	}
	if req.ResultPath != "" {
		entry.Result = filepath.Join(flagOutputDir, entry.ID+resultSuffix)
		if err := results.CopyFile(req.ResultPath, filepath.Join(f.dir, entry.Result)); err != nil {
			return nil, fmt.Errorf("failed to copy flagged result: %w", err)
		}
	}

	records := req.Records
	if records == nil {
		records = []ocr.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	entry.Records = filepath.Join(flagOutputDir, entry.ID+".json")
	if err := os.WriteFile(filepath.Join(f.dir, entry.Records), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save flagged records: %w", err)
	}

	file, err := os.OpenFile(f.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open flag log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(file)
	if info.Size() == 0 {
		w.Write(flagHeader)
	}
	w.Write([]string{
		filepath.ToSlash(entry.Image),
		filepath.ToSlash(entry.Result),
		filepath.ToSlash(entry.Records),
		strings.Join(entry.Languages, ","),
		entry.Label,
		entry.FlaggedAt.Format(time.RFC3339),
	})
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write flag log: %w", err)
	}
	return entry, nil
}
